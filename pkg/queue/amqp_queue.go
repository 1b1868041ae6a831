package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"securesign/pkg/domain"
)

// AMQPQueue carries ledger actions over a durable RabbitMQ queue.
// Redelivered messages that fail again are dropped rather than looped.
type AMQPQueue struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
}

// NewAMQPQueue dials the broker and declares the durable queue.
func NewAMQPQueue(url, queueName string) (*AMQPQueue, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("amqp url required")
	}
	if strings.TrimSpace(queueName) == "" {
		queueName = "securesign.ledger"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPQueue{conn: conn, channel: channel, queueName: queueName}, nil
}

// Enqueue publishes an action as a persistent JSON message.
func (q *AMQPQueue) Enqueue(ctx context.Context, action domain.LedgerAction) error {
	data, err := json.Marshal(action)
	if err != nil {
		return err
	}
	return q.channel.PublishWithContext(ctx, "", q.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         data,
	})
}

// Consume delivers queued actions to handler until ctx is done. A first
// failure requeues the message; a failure on redelivery drops it.
func (q *AMQPQueue) Consume(ctx context.Context, handler Handler) error {
	deliveries, err := q.channel.Consume(q.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			var action domain.LedgerAction
			if err := json.Unmarshal(msg.Body, &action); err != nil {
				_ = msg.Nack(false, false)
				continue
			}
			if err := handler(ctx, action); err != nil {
				_ = msg.Nack(false, !msg.Redelivered)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}

// Close shuts down the channel and connection.
func (q *AMQPQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
