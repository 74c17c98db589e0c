// Package cache is the read-through cache in front of the item store. Lookups
// never fail: a backend fault is reported as a miss so the caller falls back
// to the store, and writes are best-effort.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/degrade"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/metrics"
)

// Kind selects a cache variant.
type Kind int

const (
	KindMemory Kind = iota
	KindRedis
)

func (k Kind) String() string {
	switch k {
	case KindMemory:
		return "memory"
	case KindRedis:
		return "redis"
	default:
		return "unknown"
	}
}

// ParseKind picks the variant from the scheme of a cache URL.
func ParseKind(url string) (Kind, error) {
	switch {
	case strings.HasPrefix(url, "memory://"):
		return KindMemory, nil
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return KindRedis, nil
	}
	return 0, fmt.Errorf("unsupported cache url %q", url)
}

// Result is the outcome of one lookup. Value is nil unless Hit is true. Fault
// holds a backend error that was absorbed and turned into a miss.
type Result struct {
	Value []byte
	Hit   bool
	Fault error
}

// Backend is implemented by every cache variant. Implementations are safe for
// concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) Result
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) degrade.Result
	Kind() Kind
	Close() error
}

// New builds the variant named by cfg.URL. m may be nil.
func New(cfg config.CacheConfig, m *metrics.Metrics) (Backend, error) {
	kind, err := ParseKind(cfg.URL)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindRedis:
		return NewRedis(cfg, m)
	default:
		return NewMemory(), nil
	}
}

func miss(err error) Result {
	return Result{Fault: err}
}

func hit(value []byte) Result {
	return Result{Value: value, Hit: true}
}
