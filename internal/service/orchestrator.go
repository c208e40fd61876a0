package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	dbotel "github.com/openhms/diagbridge/internal/adapter/otel"
	"github.com/openhms/diagbridge/internal/adapter/ws"
	"github.com/openhms/diagbridge/internal/config"
	"github.com/openhms/diagbridge/internal/domain/finding"
	"github.com/openhms/diagbridge/internal/domain/task"
	"github.com/openhms/diagbridge/internal/port/analyzer"
	"github.com/openhms/diagbridge/internal/port/cache"
	"github.com/openhms/diagbridge/internal/port/connector"
	"github.com/openhms/diagbridge/internal/port/messagequeue"
)

// dedupKeyPrefix namespaces dispatched-task markers in the cache.
const dedupKeyPrefix = "dispatched:"

const tracerName = "diagbridge"

// Orchestrator drives the diagnostic pipeline: it polls the record system
// for pending tasks, routes each through the analyzer, and writes findings
// back. It is the only writer of task status and the only caller of
// UpdateResult on the polling path; manual submissions construct their own
// Task and never share mutable state with the loop.
type Orchestrator struct {
	conn connector.Connector
	an   analyzer.Analyzer
	cfg  config.Poller

	queue   messagequeue.Queue // optional: findings events
	hub     *ws.Hub            // optional: live feed
	dedup   cache.Cache        // optional: cross-cycle dedup policy
	metrics *dbotel.Metrics    // optional

	running atomic.Bool // single active poll loop invariant
}

// NewOrchestrator creates an orchestrator over the given connector and analyzer.
func NewOrchestrator(conn connector.Connector, an analyzer.Analyzer, cfg config.Poller) *Orchestrator {
	return &Orchestrator{conn: conn, an: an, cfg: cfg}
}

// SetQueue attaches a findings event queue. Publishing is best-effort.
func (o *Orchestrator) SetQueue(q messagequeue.Queue) { o.queue = q }

// SetHub attaches the websocket live feed. Broadcasting is best-effort.
func (o *Orchestrator) SetHub(h *ws.Hub) { o.hub = h }

// SetDedupCache attaches the cache backing the cross-cycle dedup policy.
// Without a cache (or with dedup disabled in config) every fetched task is
// dispatched, matching connectors that flip status on write-back.
func (o *Orchestrator) SetDedupCache(c cache.Cache) { o.dedup = c }

// SetMetrics attaches telemetry instruments.
func (o *Orchestrator) SetMetrics(m *dbotel.Metrics) { o.metrics = m }

// Running reports whether the poll loop is currently active.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// PendingTasks returns the connector's current pending batch verbatim,
// without mutating any status. Backs the read-only queue endpoint.
func (o *Orchestrator) PendingTasks(ctx context.Context) ([]task.Task, error) {
	return o.conn.FetchPendingTasks(ctx)
}

// Run executes the poll loop until ctx is cancelled. Only one loop may be
// active at a time; a second call returns immediately.
func (o *Orchestrator) Run(ctx context.Context) {
	if !o.running.CompareAndSwap(false, true) {
		slog.Warn("poll loop already running, ignoring duplicate start")
		return
	}
	defer o.running.Store(false)

	// Warmup lets collaborators (DB, queue) finish their own startup.
	if !sleepCtx(ctx, o.cfg.Warmup) {
		return
	}

	if err := o.conn.Connect(ctx); err != nil {
		// Retryable: the connector re-validates on later calls.
		slog.Error("record system connect failed", "error", err)
	}

	slog.Info("poll loop started", "interval", o.cfg.Interval)

	for {
		if ctx.Err() != nil {
			slog.Info("poll loop stopped")
			return
		}

		delay := o.runCycle(ctx)

		if !sleepCtx(ctx, delay) {
			slog.Info("poll loop stopped")
			return
		}
	}
}

// runCycle performs one fetch-dispatch pass and returns how long to sleep
// before the next one.
func (o *Orchestrator) runCycle(ctx context.Context) time.Duration {
	tasks, err := o.conn.FetchPendingTasks(ctx)
	if err != nil {
		slog.Error("fetch pending tasks failed", "error", err)
		return o.cfg.Interval + o.cfg.Cooldown
	}

	for i := range tasks {
		// Shutdown is observed between tasks, not only between cycles:
		// a single analysis may be long-running.
		if ctx.Err() != nil {
			return o.cfg.Interval
		}
		o.dispatch(ctx, &tasks[i])
	}

	if o.metrics != nil {
		o.metrics.PollCycles.Add(ctx, 1)
	}
	return o.cfg.Interval
}

// dispatch runs one task through analysis and write-back. Failures are
// task-scoped: they are logged and never interrupt the rest of the batch.
// The in-flight Analyze/UpdateResult pair is shielded from cancellation so
// shutdown never abandons a half-written task.
func (o *Orchestrator) dispatch(ctx context.Context, t *task.Task) {
	if o.skipDuplicate(ctx, t) {
		return
	}

	flight := context.WithoutCancel(ctx)
	flight, span := otel.Tracer(tracerName).Start(flight, "dispatch",
		trace.WithAttributes(
			attribute.String("task.id", t.ID),
			attribute.String("task.kind", string(t.Kind)),
		))
	defer span.End()

	t.Status = task.StatusInProgress
	slog.Info("processing task", "task_id", t.ID, "patient_id", t.PatientID, "kind", t.Kind)

	start := time.Now()
	report, err := o.an.Analyze(flight, t.ArtifactRef, t.Kind)
	o.recordAnalyzeDuration(flight, t.Kind, time.Since(start))

	if err != nil {
		t.Status = task.StatusFailed
		slog.Error("analysis failed", "task_id", t.ID, "kind", t.Kind, "error", err)
		o.publishFailed(flight, t, err.Error())
		o.countFailed(flight)
		return
	}

	if err := o.conn.UpdateResult(flight, t.ID, report); err != nil {
		t.Status = task.StatusFailed
		// The findings exist in memory only: the record system never saw
		// them, so an operator has to reconcile from this log line.
		slog.Error("findings write-back failed, findings lost",
			"task_id", t.ID, "patient_id", t.PatientID, "error", err)
		o.publishFailed(flight, t, err.Error())
		o.countFailed(flight)
		return
	}

	if report.Declined() {
		t.Status = task.StatusFailed
		slog.Warn("analysis declined artifact", "task_id", t.ID, "kind", t.Kind, "reason", report.Error)
	} else {
		t.Status = task.StatusCompleted
	}

	o.markDispatched(flight, t.ID)
	o.publishCompleted(flight, t, report)

	if o.metrics != nil && !report.Declined() {
		o.metrics.TasksCompleted.Add(flight, 1, metric.WithAttributes(
			attribute.String("kind", string(t.Kind)),
		))
	}
}

// ProcessOne analyzes a single externally supplied task outside the polling
// cadence and returns findings synchronously. Write-back is best-effort: the
// task may not exist in the record system at all.
func (o *Orchestrator) ProcessOne(ctx context.Context, t *task.Task) (*finding.Report, error) {
	t.Status = task.StatusInProgress

	start := time.Now()
	report, err := o.an.Analyze(ctx, t.ArtifactRef, t.Kind)
	o.recordAnalyzeDuration(ctx, t.Kind, time.Since(start))

	if err != nil {
		t.Status = task.StatusFailed
		o.countFailed(ctx)
		return nil, err
	}

	if report.Declined() {
		t.Status = task.StatusFailed
	} else {
		t.Status = task.StatusCompleted
	}

	if err := o.conn.UpdateResult(ctx, t.ID, report); err != nil {
		slog.Warn("manual submission write-back skipped", "task_id", t.ID, "error", err)
	}

	o.publishCompleted(ctx, t, report)
	return report, nil
}

// skipDuplicate applies the cross-cycle dedup policy. A task counts as a
// duplicate only if a marker from an earlier successful dispatch is still
// live; failed dispatches leave no marker so a re-surfaced task is retried.
func (o *Orchestrator) skipDuplicate(ctx context.Context, t *task.Task) bool {
	if !o.cfg.Dedup.Enabled || o.dedup == nil {
		return false
	}
	_, seen, err := o.dedup.Get(ctx, dedupKeyPrefix+t.ID)
	if err != nil {
		slog.Warn("dedup lookup failed", "task_id", t.ID, "error", err)
		return false
	}
	if seen {
		slog.Debug("skipping recently dispatched task", "task_id", t.ID)
		if o.metrics != nil {
			o.metrics.TasksSkipped.Add(ctx, 1)
		}
	}
	return seen
}

func (o *Orchestrator) markDispatched(ctx context.Context, taskID string) {
	if !o.cfg.Dedup.Enabled || o.dedup == nil {
		return
	}
	if err := o.dedup.Set(ctx, dedupKeyPrefix+taskID, []byte{1}, o.cfg.Dedup.TTL); err != nil {
		slog.Warn("dedup marker failed", "task_id", taskID, "error", err)
	}
}

func (o *Orchestrator) publishCompleted(ctx context.Context, t *task.Task, report *finding.Report) {
	payload := messagequeue.FindingsPayload{
		TaskID:    t.ID,
		PatientID: t.PatientID,
		Kind:      string(t.Kind),
		Status:    string(t.Status),
		Report:    report,
	}

	o.publish(ctx, messagequeue.SubjectFindingsCompleted, payload)
	o.broadcast(ctx, ws.EventTaskCompleted, payload)

	if report.Urgency == finding.UrgencyHigh {
		o.publish(ctx, messagequeue.SubjectFindingsUrgent, payload)
		o.broadcast(ctx, ws.EventUrgentFinding, payload)
	}
}

func (o *Orchestrator) publishFailed(ctx context.Context, t *task.Task, reason string) {
	payload := messagequeue.FindingsPayload{
		TaskID:    t.ID,
		PatientID: t.PatientID,
		Kind:      string(t.Kind),
		Status:    string(t.Status),
		Reason:    reason,
	}
	o.publish(ctx, messagequeue.SubjectFindingsFailed, payload)
	o.broadcast(ctx, ws.EventTaskFailed, payload)
}

func (o *Orchestrator) publish(ctx context.Context, subject string, payload messagequeue.FindingsPayload) {
	if o.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal findings event", "error", err)
		return
	}
	if err := o.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("findings event publish failed", "subject", subject, "error", err)
	}
}

func (o *Orchestrator) broadcast(ctx context.Context, eventType string, payload messagequeue.FindingsPayload) {
	if o.hub == nil {
		return
	}
	o.hub.Broadcast(ctx, eventType, payload)
}

func (o *Orchestrator) recordAnalyzeDuration(ctx context.Context, kind task.Kind, d time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.AnalyzeDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("kind", string(kind)),
	))
}

func (o *Orchestrator) countFailed(ctx context.Context) {
	if o.metrics != nil {
		o.metrics.TasksFailed.Add(ctx, 1)
	}
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
