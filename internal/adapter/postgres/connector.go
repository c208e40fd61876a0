package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openhms/diagbridge/internal/domain"
	"github.com/openhms/diagbridge/internal/domain/finding"
	"github.com/openhms/diagbridge/internal/domain/task"
	"github.com/openhms/diagbridge/internal/port/connector"
)

// Connector implements connector.Connector against the diagnostic_tasks
// table owned by the record system's PostgreSQL instance.
type Connector struct {
	pool      *pgxpool.Pool
	batchSize int
}

// NewConnector creates a SQL-backed connector reading batches of at most
// batchSize pending tasks per fetch.
func NewConnector(pool *pgxpool.Pool, batchSize int) *Connector {
	return &Connector{pool: pool, batchSize: batchSize}
}

// Connect re-validates the session with a ping. Idempotent.
func (c *Connector) Connect(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", connector.ErrConnection, err)
	}
	return nil
}

// FetchPendingTasks returns at most batchSize tasks with status PENDING.
func (c *Connector) FetchPendingTasks(ctx context.Context) ([]task.Task, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id, patient_id, artifact_ref, kind, status, metadata
		 FROM diagnostic_tasks WHERE status = 'PENDING' LIMIT $1`, c.batchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", connector.ErrFetch, err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		var (
			id       int64
			t        task.Task
			kind     string
			status   string
			metadata []byte
		)
		if err := rows.Scan(&id, &t.PatientID, &t.ArtifactRef, &kind, &status, &metadata); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", connector.ErrFetch, err)
		}
		t.ID = strconv.FormatInt(id, 10)
		t.Kind = task.ParseKind(kind)
		t.Status = task.Status(status)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata: %v", connector.ErrFetch, err)
			}
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", connector.ErrFetch, err)
	}
	return tasks, nil
}

// UpdateResult overwrites the findings column and advances the status.
// Declined reports are written back too so operators can see the reason.
func (c *Connector) UpdateResult(ctx context.Context, taskID string, report *finding.Report) error {
	findings, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("%w: marshal findings: %v", connector.ErrWrite, err)
	}

	status := task.StatusCompleted
	if report.Declined() {
		status = task.StatusFailed
	}

	tag, err := c.pool.Exec(ctx,
		`UPDATE diagnostic_tasks SET findings = $2, status = $3, updated_at = now()
		 WHERE id = $1::bigint`, taskID, findings, string(status))
	if err != nil {
		return fmt.Errorf("%w: %w", connector.ErrWrite, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: task %s: %w", connector.ErrWrite, taskID, domain.ErrNotFound)
	}
	return nil
}
