// Package control exposes the five worker actions spec §6's "Control
// surface (external collaborator)" section names — status, start, stop,
// rebuild-read-model, rebuild-event-store — as plain Go methods. Protocol
// framing (HTTP, RPC, CLI) is explicitly the calling collaborator's
// concern, per spec §1/§6; this package stops at the method boundary.
//
// Grounded on the teacher's pkg/runner (Runner/Service/Logger): Worker
// plays the role a single runner.Service would play if registered with a
// runner.Runner, generalized from "one arbitrary long-running service" to
// this module's specific five-action surface, since spec §6 names exactly
// those five actions rather than an open-ended service lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Status is the worker's reported lifecycle state.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
)

// RebuildFunc runs one rebuild pass to completion. Typically a
// (*rebuild.Rebuilder).Run call closed over its dependencies, or a
// caller-supplied projection rebuild for RebuildReadModel.
type RebuildFunc func(ctx context.Context) error

// Worker is the control surface's backing implementation.
type Worker struct {
	mu     sync.Mutex
	status Status
	logger *slog.Logger

	rebuildEventStore RebuildFunc
	rebuildReadModel  RebuildFunc

	rebuildMu sync.Mutex
}

// New constructs a Worker. Either RebuildFunc may be nil, in which case
// the corresponding action fails with an explanatory error instead of
// panicking — a deployment that never registered a read-model rebuild
// hook should get a clear error, not a nil dereference.
func New(logger *slog.Logger, rebuildEventStore, rebuildReadModel RebuildFunc) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		status:            StatusStopped,
		logger:            logger,
		rebuildEventStore: rebuildEventStore,
		rebuildReadModel:  rebuildReadModel,
	}
}

// Status reports the worker's current lifecycle state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Start marks the worker as accepting work. Starting an already-running
// worker is a no-op.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == StatusRunning {
		return nil
	}
	w.status = StatusRunning
	w.logger.Info("worker started")
	return nil
}

// Stop marks the worker as no longer accepting new work. Stopping an
// already-stopped worker is a no-op. It does not interrupt a rebuild
// already in flight; callers that need cancellation should cancel the
// context they passed to the rebuild call.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == StatusStopped {
		return nil
	}
	w.status = StatusStopped
	w.logger.Info("worker stopped")
	return nil
}

// RebuildEventStore runs the registered event-store rebuild to completion
// (spec §4.9). Only one rebuild (of either kind) may run at a time.
func (w *Worker) RebuildEventStore(ctx context.Context) error {
	return w.runRebuild(ctx, "rebuild-event-store", w.rebuildEventStore)
}

// RebuildReadModel runs the registered read-model rebuild to completion.
// spec.md itself defines only the event-store rebuilder (spec §4.9); a
// read-model/projection rebuild is this module's own downstream consumer
// concern, so Worker only provides the hook — callers wire in whatever
// projection-rebuild logic their read model needs.
func (w *Worker) RebuildReadModel(ctx context.Context) error {
	return w.runRebuild(ctx, "rebuild-read-model", w.rebuildReadModel)
}

func (w *Worker) runRebuild(ctx context.Context, action string, fn RebuildFunc) error {
	if fn == nil {
		return fmt.Errorf("eventcore: %s has no rebuild function registered", action)
	}
	if !w.rebuildMu.TryLock() {
		return fmt.Errorf("eventcore: a rebuild is already in progress")
	}
	defer w.rebuildMu.Unlock()

	w.logger.Info("rebuild started", slog.String("action", action))
	if err := fn(ctx); err != nil {
		w.logger.Error("rebuild failed", slog.String("action", action), slog.String("error", err.Error()))
		return fmt.Errorf("eventcore: %s: %w", action, err)
	}
	w.logger.Info("rebuild finished", slog.String("action", action))
	return nil
}
