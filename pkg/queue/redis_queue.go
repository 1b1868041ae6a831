package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"securesign/internal/util"
	"securesign/pkg/domain"
)

// RedisQueue carries ledger actions over a Redis stream with a consumer
// group, at-least-once delivery and bounded retries.
type RedisQueue struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	maxRetries int
	block      time.Duration
	claimIdle  time.Duration
	retryDelay time.Duration
	maxLen     int64
	once       sync.Once
}

// RedisQueueConfig configures the stream queue. Zero values fall back to
// working defaults.
type RedisQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
}

// NewRedisQueue builds the stream-backed queue.
func NewRedisQueue(cfg RedisQueueConfig) (*RedisQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "securesign:ledger"
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "recorders"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisQueue{
		client:     redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:     stream,
		group:      group,
		consumer:   consumer,
		maxRetries: maxRetries,
		block:      block,
		claimIdle:  claimIdle,
		retryDelay: retryDelay,
		maxLen:     maxLen,
	}, nil
}

// Enqueue appends an action to the stream.
func (q *RedisQueue) Enqueue(ctx context.Context, action domain.LedgerAction) error {
	data, err := json.Marshal(action)
	if err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"action":   string(data),
			"attempts": "0",
		},
	}).Err()
}

// Consume reads the stream until ctx is done. Failed jobs are requeued
// with an incremented attempt counter and dropped past maxRetries.
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	q.ensureGroup(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if msgs, err := q.claimPending(ctx); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    10,
			Block:    q.block,
		}).Result()
		if err != nil {
			if err == redis.Nil || errors.Is(err, context.Canceled) {
				continue
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

// Close releases the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		// BUSYGROUP means the group already exists; any other error will
		// surface on the first XReadGroup.
		_ = q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	})
}

func (q *RedisQueue) claimPending(ctx context.Context) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	raw, _ := msg.Values["action"].(string)
	if raw == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	var action domain.LedgerAction
	if err := json.Unmarshal([]byte(raw), &action); err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	attempts := 0
	if s, ok := msg.Values["attempts"].(string); ok {
		attempts, _ = strconv.Atoi(s)
	}
	if err := handler(ctx, action); err == nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if attempts+1 >= q.maxRetries {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if q.retryDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
	q.requeueAndAck(ctx, msg.ID, raw, attempts+1)
}

func (q *RedisQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisQueue) requeueAndAck(ctx context.Context, msgID, raw string, attempts int) {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"action":   raw,
			"attempts": strconv.Itoa(attempts),
		},
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, _ = pipe.Exec(ctx)
}
