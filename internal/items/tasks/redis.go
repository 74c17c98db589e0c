package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/degrade"
)

// pollTimeout bounds one BRPOP so consumers notice cancellation.
const pollTimeout = time.Second

// listClient is the subset of the redis client the list broker uses.
type listClient interface {
	LPush(ctx context.Context, key string, values ...any) error
	BRPop(ctx context.Context, timeout time.Duration, key string) ([]byte, error)
	LLen(ctx context.Context, key string) (int64, error)
	Close() error
}

// RedisBroker keeps tasks in a Redis list: producers LPUSH and consumers
// BRPOP, so the list is FIFO.
type RedisBroker struct {
	client  listClient
	key     string
	timeout time.Duration
	backoff time.Duration
	logger  *slog.Logger
}

func NewRedisBroker(client listClient, queue string, timeout time.Duration) *RedisBroker {
	return &RedisBroker{
		client:  client,
		key:     queue,
		timeout: timeout,
		backoff: 500 * time.Millisecond,
		logger:  slog.Default().With("component", "task-broker", "broker", "redis", "queue", queue),
	}
}

func (b *RedisBroker) Enqueue(ctx context.Context, t Task) degrade.Result {
	return enqueue(ctx, b.timeout, b.logger, t, func(ctx context.Context, data []byte) error {
		return b.client.LPush(ctx, b.key, data)
	})
}

func (b *RedisBroker) Consume(ctx context.Context, handle HandlerFunc) error {
	b.logger.Info("consumer started")
	for {
		data, err := b.client.BRPop(ctx, pollTimeout, b.key)
		if ctx.Err() != nil {
			b.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		}
		if err != nil {
			b.logger.Error("failed to pop task", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(b.backoff):
			}
			continue
		}
		if data == nil {
			continue
		}
		t, err := Decode(data)
		if err != nil {
			b.logger.Error("dropping malformed task", "error", err, "payload_size", len(data))
			continue
		}
		deliver(ctx, b.logger, handle, t)
	}
}

func (b *RedisBroker) Depth(ctx context.Context) (int64, error) {
	return b.client.LLen(ctx, b.key)
}

func (b *RedisBroker) Kind() Kind { return KindRedis }

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
