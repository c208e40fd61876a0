package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Lifecycle owns the background execution context of the poll loop. It
// replaces a process-global "worker running" flag with an explicit
// start/stop/is-alive surface that gets injected where needed.
type Lifecycle struct {
	orch *Orchestrator

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	alive  atomic.Bool
}

// NewLifecycle creates a controller for the given orchestrator.
func NewLifecycle(orch *Orchestrator) *Lifecycle {
	return &Lifecycle{orch: orch}
}

// Start launches exactly one background goroutine running the poll loop.
// Calling Start while the loop is alive is an error.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.alive.Load() {
		return errors.New("poll loop already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.alive.Store(true)

	go func() {
		defer func() {
			l.alive.Store(false)
			close(l.done)
		}()
		l.orch.Run(runCtx)
	}()

	slog.Info("background worker started")
	return nil
}

// Stop signals the loop to stop accepting new cycles and waits for the
// in-flight dispatch to finish. ctx bounds how long Stop waits.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		slog.Info("background worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Alive reports whether the background loop is currently running.
func (l *Lifecycle) Alive() bool {
	return l.alive.Load()
}
