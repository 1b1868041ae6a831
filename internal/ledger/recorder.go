// Package ledger turns lifecycle events into ledger records without
// blocking the operations that produce them. Actions go onto a queue;
// a worker pool drains them into the ledger capability.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"securesign/internal/lifecycle"
	"securesign/pkg/domain"
	"securesign/pkg/queue"
)

// Recorder enqueues ledger actions and runs the consuming workers.
// With no queue configured it records synchronously, best effort.
type Recorder struct {
	queue   queue.Queue
	ledger  lifecycle.Ledger
	logger  *slog.Logger
	workers int
}

// NewRecorder wires a recorder. q may be nil for synchronous mode.
func NewRecorder(q queue.Queue, l lifecycle.Ledger, logger *slog.Logger, workers int) *Recorder {
	if workers <= 0 {
		workers = 2
	}
	return &Recorder{queue: q, ledger: l, logger: logger, workers: workers}
}

// Enqueue hands the action to the queue, or records it immediately when
// no queue is configured. A synchronous failure is logged, not returned:
// ledger recording never fails the producing operation.
func (r *Recorder) Enqueue(ctx context.Context, action domain.LedgerAction) error {
	if r.queue == nil {
		if _, err := r.ledger.Record(action); err != nil {
			r.logger.Warn("ledger record failed",
				"action", string(action.ActionType),
				"document_id", action.DocumentID,
				"error", err)
		}
		return nil
	}
	if err := r.queue.Enqueue(ctx, action); err != nil {
		return fmt.Errorf("enqueue ledger action: %w", err)
	}
	return nil
}

// Run starts the worker pool and blocks until ctx is canceled. A no-op
// when no queue is configured.
func (r *Recorder) Run(ctx context.Context) error {
	if r.queue == nil {
		<-ctx.Done()
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		worker := i
		g.Go(func() error {
			logger := r.logger.With("worker", worker)
			err := r.queue.Consume(ctx, func(ctx context.Context, action domain.LedgerAction) error {
				hash, err := r.ledger.Record(action)
				if err != nil {
					logger.Warn("ledger record failed",
						"action", string(action.ActionType),
						"document_id", action.DocumentID,
						"error", err)
					return err
				}
				logger.Debug("ledger action recorded",
					"action", string(action.ActionType),
					"document_id", action.DocumentID,
					"hash", hash)
				return nil
			})
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("ledger worker %d: %w", worker, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close shuts down the underlying queue.
func (r *Recorder) Close() error {
	if r.queue == nil {
		return nil
	}
	return r.queue.Close()
}
