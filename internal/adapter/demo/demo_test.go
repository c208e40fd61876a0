package demo

import (
	"context"
	"testing"

	"github.com/openhms/diagbridge/internal/domain/finding"
	"github.com/openhms/diagbridge/internal/domain/task"
	"github.com/openhms/diagbridge/internal/port/analyzer"
)

func TestConnectorFetchIsDeterministic(t *testing.T) {
	c := NewConnector()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	batch, err := c.FetchPendingTasks(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected exactly 1 task, got %d", len(batch))
	}

	got := batch[0]
	if got.ID != "101" {
		t.Errorf("expected id 101, got %s", got.ID)
	}
	if got.PatientID != "P-505" {
		t.Errorf("expected patient P-505, got %s", got.PatientID)
	}
	if got.Kind != task.KindXRay {
		t.Errorf("expected kind XRAY, got %s", got.Kind)
	}
	if got.Status != task.StatusPending {
		t.Errorf("expected status PENDING, got %s", got.Status)
	}
}

func TestConnectorUpdateResultOverwrites(t *testing.T) {
	c := NewConnector()

	first := &finding.Report{Summary: "first pass", Urgency: finding.UrgencyLow}
	second := &finding.Report{Summary: "second pass", Urgency: finding.UrgencyHigh}

	if err := c.UpdateResult(context.Background(), "101", first); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := c.UpdateResult(context.Background(), "101", second); err != nil {
		t.Fatalf("repeat update: %v", err)
	}

	got, ok := c.Result("101")
	if !ok {
		t.Fatal("expected a stored result")
	}
	if got.Summary != "second pass" {
		t.Fatalf("expected overwrite, got %q", got.Summary)
	}
}

func TestAnalyzerKnownKinds(t *testing.T) {
	a := NewAnalyzer()

	xray, err := a.Analyze(context.Background(), "/tmp/scan.jpg", task.KindXRay)
	if err != nil {
		t.Fatalf("xray analyze: %v", err)
	}
	if xray.Declined() {
		t.Fatalf("xray should not decline: %q", xray.Error)
	}
	if xray.Confidence < 0 || xray.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", xray.Confidence)
	}
	if xray.Urgency != finding.UrgencyLow {
		t.Fatalf("expected LOW urgency, got %s", xray.Urgency)
	}
	if xray.Confidence != 0.98 {
		t.Fatalf("expected confidence 0.98, got %f", xray.Confidence)
	}

	report, err := a.Analyze(context.Background(), "/tmp/labs.pdf", task.KindReport)
	if err != nil {
		t.Fatalf("report analyze: %v", err)
	}
	if report.Urgency != finding.UrgencyMedium {
		t.Fatalf("expected MEDIUM urgency, got %s", report.Urgency)
	}
	if len(report.Abnormalities) != 1 || report.Abnormalities[0] != "Anemia (Mild)" {
		t.Fatalf("unexpected abnormalities: %v", report.Abnormalities)
	}
}

func TestAnalyzerDeclinesUnknownKinds(t *testing.T) {
	a := NewAnalyzer()

	for _, kind := range []task.Kind{task.KindCT, task.KindECG, task.KindUnknown} {
		rep, err := a.Analyze(context.Background(), "/tmp/file", kind)
		if err != nil {
			t.Fatalf("analyze %s: unexpected error %v", kind, err)
		}
		if !rep.Declined() {
			t.Fatalf("expected %s to be declined", kind)
		}
		if rep.Error != analyzer.ErrUnknownFileType {
			t.Fatalf("expected %q, got %q", analyzer.ErrUnknownFileType, rep.Error)
		}
	}
}

func TestAnalyzerHonorsCancelledContext(t *testing.T) {
	a := NewAnalyzer()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Analyze(ctx, "/tmp/scan.jpg", task.KindXRay); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
