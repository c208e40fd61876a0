package service

import (
	"context"
	"testing"
	"time"
)

func TestLifecycleStartStop(t *testing.T) {
	conn := &mockConnector{}
	cfg := pollerConfig()
	cfg.Interval = time.Millisecond
	l := NewLifecycle(NewOrchestrator(conn, &mockAnalyzer{}, cfg))

	if l.Alive() {
		t.Fatal("not started yet")
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for conn.fetchCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("loop never polled")
		}
		time.Sleep(time.Millisecond)
	}
	if !l.Alive() {
		t.Fatal("expected alive while loop runs")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if l.Alive() {
		t.Fatal("expected stopped after Stop returns")
	}

	fetched := conn.fetchCount()
	time.Sleep(20 * time.Millisecond)
	if conn.fetchCount() != fetched {
		t.Fatal("loop kept polling after Stop")
	}
}

func TestLifecycleDoubleStart(t *testing.T) {
	cfg := pollerConfig()
	cfg.Warmup = time.Hour
	l := NewLifecycle(NewOrchestrator(&mockConnector{}, &mockAnalyzer{}, cfg))

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := l.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestLifecycleStopBeforeStart(t *testing.T) {
	l := NewLifecycle(NewOrchestrator(&mockConnector{}, &mockAnalyzer{}, pollerConfig()))
	if err := l.Stop(context.Background()); err != nil {
		t.Fatalf("stop on idle lifecycle: %v", err)
	}
}

func TestLifecycleRestart(t *testing.T) {
	cfg := pollerConfig()
	cfg.Interval = time.Millisecond
	conn := &mockConnector{}
	l := NewLifecycle(NewOrchestrator(conn, &mockAnalyzer{}, cfg))

	for i := 0; i < 2; i++ {
		if err := l.Start(context.Background()); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.Stop(ctx); err != nil {
			cancel()
			t.Fatalf("stop %d: %v", i, err)
		}
		cancel()
	}
}
