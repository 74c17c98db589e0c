package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/degrade"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/resilience"
)

const breakerName = "cache-redis"

// remote is the subset of the redis client the cache needs.
type remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEX(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// Redis stores projections with SET EX so Redis enforces the TTL. Calls go
// through a circuit breaker; while it is open every lookup is a miss.
type Redis struct {
	client  remote
	breaker *resilience.CircuitBreaker
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedis connects lazily: the process starts even when Redis is down and
// the cache degrades to misses until it comes back.
func NewRedis(cfg config.CacheConfig, m *metrics.Metrics) (*Redis, error) {
	client, err := pkgredis.NewClient(cfg.URL, pkgredis.Options{
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		SkipPing:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating redis cache: %w", err)
	}
	return newRedis(client, cfg.Timeout, m), nil
}

func newRedis(client remote, timeout time.Duration, m *metrics.Metrics) *Redis {
	cbCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
	}
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(resilience.StateClosed))
		cbCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	breaker := resilience.NewCircuitBreaker(breakerName, cbCfg)
	breaker.IsNeutral = pkgredis.IsNilError
	return &Redis{
		client:  client,
		breaker: breaker,
		timeout: timeout,
		logger:  slog.Default().With("component", "item-cache", "cache", "redis"),
	}
}

func (r *Redis) Get(ctx context.Context, key string) Result {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var data []byte
	err := r.breaker.Execute(func() error {
		var err error
		data, err = r.client.Get(ctx, key)
		return err
	})
	if pkgredis.IsNilError(err) {
		return Result{}
	}
	if err != nil {
		r.logger.Warn("cache get failed, treating as miss", "key", key, "error", err)
		return miss(fmt.Errorf("cache get %s: %w", key, err))
	}
	return hit(data)
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) degrade.Result {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	err := r.breaker.Execute(func() error {
		return r.client.SetEX(ctx, key, value, ttl)
	})
	if err != nil {
		res := degrade.Fault("cache.set", fmt.Errorf("cache set %s: %w", key, err))
		res.Log(r.logger, "cache set failed", "key", key)
		return res
	}
	return degrade.OK("cache.set")
}

// State exposes the breaker state for health reporting.
func (r *Redis) State() resilience.State {
	return r.breaker.GetState()
}

// Ping checks Redis directly, bypassing the breaker.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.client.Ping(ctx)
}

func (r *Redis) Kind() Kind { return KindRedis }

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
