// Package tasks hands enrichment work from the API to the worker through a
// broker. Dispatch is fire-and-forget: a broker failure is an absorbed fault,
// never an error on the write path.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/degrade"
	"github.com/google/uuid"
)

// TaskEnrichItem names the enrichment task. Its single argument is the item id.
const TaskEnrichItem = "worker.tasks.enrich_item"

// Task is the message placed on the queue.
type Task struct {
	ID         string    `json:"id"`
	Name       string    `json:"task"`
	Args       []string  `json:"args"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewEnrichTask builds the enrichment task for one item.
func NewEnrichTask(itemID uuid.UUID) Task {
	return Task{
		ID:         uuid.NewString(),
		Name:       TaskEnrichItem,
		Args:       []string{itemID.String()},
		EnqueuedAt: time.Now().UTC(),
	}
}

// Encode serialises the task for the wire.
func (t Task) Encode() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encoding task %s: %w", t.ID, err)
	}
	return data, nil
}

// Decode parses a task read from a broker.
func Decode(data []byte) (Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("decoding task: %w", err)
	}
	if t.Name == "" {
		return Task{}, fmt.Errorf("decoding task: missing name")
	}
	return t, nil
}

// HandlerFunc processes one dequeued task. Sources log a returned error and
// move on; tasks are not redelivered.
type HandlerFunc func(ctx context.Context, t Task) error

// Dispatcher enqueues tasks.
type Dispatcher interface {
	Enqueue(ctx context.Context, t Task) degrade.Result
}

// Source delivers tasks to a handler until ctx is cancelled.
type Source interface {
	Consume(ctx context.Context, handle HandlerFunc) error
}

// DepthReader reports how many tasks are waiting.
type DepthReader interface {
	Depth(ctx context.Context) (int64, error)
}

// Broker is one queue backend seen from both sides.
type Broker interface {
	Dispatcher
	Source
	DepthReader
	Kind() Kind
	Close() error
}

// Kind selects a broker variant.
type Kind int

const (
	KindMemory Kind = iota
	KindRedis
	KindKafka
)

func (k Kind) String() string {
	switch k {
	case KindMemory:
		return "memory"
	case KindRedis:
		return "redis"
	case KindKafka:
		return "kafka"
	default:
		return "unknown"
	}
}

// ParseKind picks the broker variant from the scheme of a broker URL.
func ParseKind(url string) (Kind, error) {
	switch {
	case strings.HasPrefix(url, "memory://"):
		return KindMemory, nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return KindRedis, nil
	case strings.HasPrefix(url, "kafka://"):
		return KindKafka, nil
	}
	return 0, fmt.Errorf("unsupported broker url %q", url)
}
