// Package demo provides offline reference implementations of the connector
// and analyzer ports. They run without any external service and exist so an
// unconfigured environment still exercises the full pipeline end to end.
package demo

import (
	"context"
	"sync"

	"github.com/openhms/diagbridge/internal/domain/finding"
	"github.com/openhms/diagbridge/internal/domain/task"
)

// Connector is the disconnected reference connector. Fetch always returns
// the same single pending task; results are recorded in memory.
type Connector struct {
	mu      sync.Mutex
	results map[string]*finding.Report
}

// NewConnector creates the demo connector.
func NewConnector() *Connector {
	return &Connector{results: make(map[string]*finding.Report)}
}

// Connect is a no-op; the demo connector has no backend session.
func (c *Connector) Connect(_ context.Context) error {
	return nil
}

// FetchPendingTasks returns the canonical demo batch: exactly one XRAY task.
func (c *Connector) FetchPendingTasks(_ context.Context) ([]task.Task, error) {
	return []task.Task{
		{
			ID:          "101",
			PatientID:   "P-505",
			ArtifactRef: "/var/hospital_data/patient_505_chest_xray.jpg",
			Kind:        task.KindXRay,
			Status:      task.StatusPending,
		},
	}, nil
}

// UpdateResult records findings in memory. Repeated calls for the same ID
// overwrite the previous report.
func (c *Connector) UpdateResult(_ context.Context, taskID string, report *finding.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[taskID] = report
	return nil
}

// Result returns the last report written for a task, if any.
func (c *Connector) Result(taskID string) (*finding.Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[taskID]
	return r, ok
}
