// Package connector defines the record-system connector port (interface).
//
// The schema of the external record system is unknown and varies between
// deployments, so the port commits only to the Task and Report shapes,
// never to column names, transport, or authentication. Concrete connectors
// (demo, postgres, hmsrest) are selected at construction time.
package connector

import (
	"context"
	"errors"

	"github.com/openhms/diagbridge/internal/domain/finding"
	"github.com/openhms/diagbridge/internal/domain/task"
)

// Sentinel errors for the connector taxonomy. Implementations wrap these so
// the orchestrator can classify failures with errors.Is.
var (
	// ErrConnection indicates the session to the record system could not be
	// established or re-validated. Transient: retried on the next cycle.
	ErrConnection = errors.New("record system connection failed")

	// ErrFetch indicates a pending-task query failed. Transient: the cycle
	// yields an empty batch and the poller retries after a cooldown.
	ErrFetch = errors.New("record system fetch failed")

	// ErrWrite indicates a findings write-back failed. Task-scoped: the
	// caller marks the task FAILED and moves on; no retry inside the call.
	ErrWrite = errors.New("record system write failed")
)

// Connector is the port interface for one external hospital record system.
type Connector interface {
	// Connect establishes or re-validates a session. Idempotent. A failure
	// is returned as a wrapped ErrConnection, never a panic.
	Connect(ctx context.Context) error

	// FetchPendingTasks returns the current batch of PENDING tasks, bounded
	// to an implementation-defined page size. Ordering carries no meaning.
	// No work (or no configured backend) yields an empty slice, not an error.
	FetchPendingTasks(ctx context.Context) ([]task.Task, error)

	// UpdateResult writes findings for one task back to the record system.
	// Safe to call once per task per cycle; repeated calls for the same ID
	// overwrite rather than duplicate.
	UpdateResult(ctx context.Context, taskID string, report *finding.Report) error
}
