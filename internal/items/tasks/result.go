package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/degrade"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/redis"
	"github.com/puzpuzpuz/xsync/v3"
)

const resultStep = "tasks.result"

// Status is the final state of a processed task.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// TaskResult is what the worker records after handling a task.
type TaskResult struct {
	TaskID     string    `json:"task_id"`
	Name       string    `json:"task"`
	Args       []string  `json:"args"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// ResultStore keeps task outcomes for a limited time.
type ResultStore interface {
	Record(ctx context.Context, r TaskResult) degrade.Result
	Lookup(ctx context.Context, taskID string) (*TaskResult, bool, error)
	Close() error
}

// OpenResults builds the result backend named by cfg.ResultURL. An empty URL
// disables result recording.
func OpenResults(cfg config.BrokerConfig) (ResultStore, error) {
	switch {
	case cfg.ResultURL == "":
		return NopResults{}, nil
	case strings.HasPrefix(cfg.ResultURL, "memory://"):
		return NewMemoryResults(cfg.ResultTTL), nil
	case strings.HasPrefix(cfg.ResultURL, "redis://"), strings.HasPrefix(cfg.ResultURL, "rediss://"):
		client, err := pkgredis.NewClient(cfg.ResultURL, pkgredis.Options{SkipPing: true})
		if err != nil {
			return nil, fmt.Errorf("creating redis result backend: %w", err)
		}
		return NewRedisResults(client, cfg.ResultTTL), nil
	}
	return nil, fmt.Errorf("unsupported result backend url %q", cfg.ResultURL)
}

func resultKey(taskID string) string {
	return "task-result:" + taskID
}

// NopResults discards every result.
type NopResults struct{}

func (NopResults) Record(context.Context, TaskResult) degrade.Result { return degrade.OK(resultStep) }

func (NopResults) Lookup(context.Context, string) (*TaskResult, bool, error) {
	return nil, false, nil
}

func (NopResults) Close() error { return nil }

type storedResult struct {
	result    TaskResult
	expiresAt time.Time
}

// MemoryResults keeps results in process and expires them lazily on lookup.
type MemoryResults struct {
	entries *xsync.MapOf[string, storedResult]
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryResults(ttl time.Duration) *MemoryResults {
	return &MemoryResults{
		entries: xsync.NewMapOf[string, storedResult](),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryResults) Record(_ context.Context, r TaskResult) degrade.Result {
	m.entries.Store(r.TaskID, storedResult{result: r, expiresAt: m.now().Add(m.ttl)})
	return degrade.OK(resultStep)
}

func (m *MemoryResults) Lookup(_ context.Context, taskID string) (*TaskResult, bool, error) {
	s, ok := m.entries.Load(taskID)
	if !ok {
		return nil, false, nil
	}
	if m.ttl > 0 && !m.now().Before(s.expiresAt) {
		m.entries.Delete(taskID)
		return nil, false, nil
	}
	r := s.result
	return &r, true, nil
}

func (m *MemoryResults) Close() error { return nil }

type kvClient interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEX(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// RedisResults stores each result as JSON under task-result:<id> with SETEX.
type RedisResults struct {
	client kvClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisResults(client kvClient, ttl time.Duration) *RedisResults {
	return &RedisResults{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "task-results", "backend", "redis"),
	}
}

func (r *RedisResults) Record(ctx context.Context, res TaskResult) degrade.Result {
	data, err := json.Marshal(res)
	if err == nil {
		err = r.client.SetEX(ctx, resultKey(res.TaskID), data, r.ttl)
	}
	if err != nil {
		out := degrade.Fault(resultStep, fmt.Errorf("recording result of %s: %w", res.TaskID, err))
		out.Log(r.logger, "task result not recorded", "task_id", res.TaskID)
		return out
	}
	return degrade.OK(resultStep)
}

func (r *RedisResults) Lookup(ctx context.Context, taskID string) (*TaskResult, bool, error) {
	data, err := r.client.Get(ctx, resultKey(taskID))
	if pkgredis.IsNilError(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading result of %s: %w", taskID, err)
	}
	var res TaskResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("decoding result of %s: %w", taskID, err)
	}
	return &res, true, nil
}

func (r *RedisResults) Close() error {
	return r.client.Close()
}
