package cache

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/degrade"
	"github.com/puzpuzpuz/xsync/v3"
)

// Memory is an in-process cache for tests and single-process development.
// Entries never expire; the ttl passed to Set is ignored.
type Memory struct {
	entries *xsync.MapOf[string, []byte]
}

func NewMemory() *Memory {
	return &Memory{entries: xsync.NewMapOf[string, []byte]()}
}

func (m *Memory) Get(_ context.Context, key string) Result {
	v, ok := m.entries.Load(key)
	if !ok {
		return Result{}
	}
	return hit(v)
}

func (m *Memory) Set(_ context.Context, key string, value []byte, _ time.Duration) degrade.Result {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries.Store(key, stored)
	return degrade.OK("cache.set")
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	return m.entries.Size()
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Kind() Kind { return KindMemory }

func (m *Memory) Close() error {
	m.entries.Clear()
	return nil
}
