package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/degrade"
)

// ErrQueueFull is reported when the in-process queue has no free slot.
var ErrQueueFull = errors.New("queue full")

// ErrBrokerClosed is reported for enqueues after Close.
var ErrBrokerClosed = errors.New("broker closed")

// MemoryBroker is a bounded in-process queue for tests and single-process
// development. Tasks are lost when the process exits.
type MemoryBroker struct {
	queue   chan Task
	done    chan struct{}
	once    sync.Once
	timeout time.Duration
	logger  *slog.Logger
}

func NewMemoryBroker(capacity int, timeout time.Duration) *MemoryBroker {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryBroker{
		queue:   make(chan Task, capacity),
		done:    make(chan struct{}),
		timeout: timeout,
		logger:  slog.Default().With("component", "task-broker", "broker", "memory"),
	}
}

func (b *MemoryBroker) Enqueue(ctx context.Context, t Task) degrade.Result {
	return enqueue(ctx, b.timeout, b.logger, t, func(context.Context, []byte) error {
		select {
		case <-b.done:
			return ErrBrokerClosed
		default:
		}
		select {
		case b.queue <- t:
			return nil
		default:
			return ErrQueueFull
		}
	})
}

func (b *MemoryBroker) Consume(ctx context.Context, handle HandlerFunc) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.done:
			return nil
		case t := <-b.queue:
			deliver(ctx, b.logger, handle, t)
		}
	}
}

func (b *MemoryBroker) Depth(context.Context) (int64, error) {
	return int64(len(b.queue)), nil
}

func (b *MemoryBroker) Kind() Kind { return KindMemory }

// Close stops consumers and rejects further enqueues. Queued tasks are
// dropped.
func (b *MemoryBroker) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}
