package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"securesign/pkg/domain"
)

func newTestQueue(t *testing.T, maxRetries int) *RedisQueue {
	t.Helper()
	redis := miniredis.RunT(t)
	q, err := NewRedisQueue(RedisQueueConfig{
		Addr:       redis.Addr(),
		Stream:     "test:ledger",
		Group:      "test-recorders",
		Consumer:   "test-consumer",
		MaxRetries: maxRetries,
		Block:      20 * time.Millisecond,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func sampleAction(docID string) domain.LedgerAction {
	return domain.LedgerAction{
		ActionType: domain.ActionSign,
		UserID:     "user-1",
		DocumentID: docID,
		Timestamp:  time.Now().UTC(),
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEnqueueThenConsume(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Enqueue(ctx, sampleAction("doc-1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got := make(chan domain.LedgerAction, 1)
	go func() {
		_ = q.Consume(ctx, func(ctx context.Context, action domain.LedgerAction) error {
			got <- action
			return nil
		})
	}()

	select {
	case action := <-got:
		if action.DocumentID != "doc-1" || action.ActionType != domain.ActionSign {
			t.Fatalf("unexpected action: %+v", action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestFailedJobIsRetried(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Enqueue(ctx, sampleAction("doc-retry")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var calls atomic.Int32
	go func() {
		_ = q.Consume(ctx, func(ctx context.Context, action domain.LedgerAction) error {
			if calls.Add(1) == 1 {
				return errors.New("transient failure")
			}
			return nil
		})
	}()

	waitFor(t, 2*time.Second, func() bool { return calls.Load() >= 2 })
}

func TestJobDroppedAfterMaxRetries(t *testing.T) {
	q := newTestQueue(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Enqueue(ctx, sampleAction("doc-poison")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var calls atomic.Int32
	go func() {
		_ = q.Consume(ctx, func(ctx context.Context, action domain.LedgerAction) error {
			calls.Add(1)
			return errors.New("permanent failure")
		})
	}()

	waitFor(t, 2*time.Second, func() bool { return calls.Load() >= 2 })
	// Give the consumer a chance to (incorrectly) deliver again.
	time.Sleep(100 * time.Millisecond)
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", n)
	}
}

func TestConsumeStopsOnContextCancel(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, func(ctx context.Context, action domain.LedgerAction) error {
			return nil
		})
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}
