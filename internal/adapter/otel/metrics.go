package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "diagbridge"

// Metrics holds all diagbridge metric instruments.
type Metrics struct {
	PollCycles      metric.Int64Counter
	TasksCompleted  metric.Int64Counter
	TasksFailed     metric.Int64Counter
	TasksSkipped    metric.Int64Counter
	AnalyzeDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.PollCycles, err = meter.Int64Counter("diagbridge.poll.cycles",
		metric.WithDescription("Number of completed poll cycles"))
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("diagbridge.tasks.completed",
		metric.WithDescription("Number of tasks analyzed and written back"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("diagbridge.tasks.failed",
		metric.WithDescription("Number of tasks that failed analysis or write-back"))
	if err != nil {
		return nil, err
	}

	m.TasksSkipped, err = meter.Int64Counter("diagbridge.tasks.skipped",
		metric.WithDescription("Number of tasks skipped by the dedup policy"))
	if err != nil {
		return nil, err
	}

	m.AnalyzeDuration, err = meter.Float64Histogram("diagbridge.analyze.duration_seconds",
		metric.WithDescription("Analysis duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
