package queue

import (
	"context"

	"securesign/pkg/domain"
)

// Handler processes one dequeued ledger action. A nil return acknowledges
// the job; an error schedules a retry until the backend's attempt limit.
type Handler func(ctx context.Context, action domain.LedgerAction) error

// Queue decouples ledger recording from the lifecycle operations that
// produce the actions. Backends: Redis streams and AMQP.
type Queue interface {
	Enqueue(ctx context.Context, action domain.LedgerAction) error
	// Consume blocks, delivering jobs to handler until ctx is done.
	Consume(ctx context.Context, handler Handler) error
	Close() error
}
