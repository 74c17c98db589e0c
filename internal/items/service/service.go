// Package service orchestrates item writes and reads. Writes persist the item
// and then hand enrichment to the task queue; reads go cache first and fall
// back to the store. Cache, broker and queue-depth failures are absorbed and
// reported alongside the result, never as the operation's error.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/degrade"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/cache"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/tasks"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Store is the durable side of the service.
type Store interface {
	Create(ctx context.Context, name string, description *string) (*items.Item, error)
	GetByID(ctx context.Context, id uuid.UUID) (*items.Item, error)
}

// DepthRefresher republishes the queue depth after a dispatch.
type DepthRefresher interface {
	Refresh(ctx context.Context) (int64, degrade.Result)
}

// Options tunes a Service.
type Options struct {
	CacheTTL           time.Duration
	MaxConcurrentStore int
	// FillTimeout bounds a shared miss fill, which runs detached from any
	// single caller's context.
	FillTimeout time.Duration
}

// WriteResult is a created item plus any absorbed auxiliary faults.
type WriteResult struct {
	Item   *items.Item
	Faults []degrade.Result
}

// ReadResult carries the item and its JSON projection. Body is the cached
// bytes on a hit and the freshly encoded projection on a miss.
type ReadResult struct {
	Item   *items.Item
	Body   []byte
	Cached bool
	Faults []degrade.Result
}

type Service struct {
	store      Store
	cache      cache.Backend
	dispatcher tasks.Dispatcher
	probe      DepthRefresher
	metrics    *metrics.Metrics
	ttl        time.Duration
	fillLimit  time.Duration
	slots      *semaphore.Weighted
	reads      singleflight.Group
	logger     *slog.Logger
}

// New wires a Service. m may be nil.
func New(store Store, c cache.Backend, d tasks.Dispatcher, probe DepthRefresher, m *metrics.Metrics, opts Options) *Service {
	if opts.MaxConcurrentStore <= 0 {
		opts.MaxConcurrentStore = 32
	}
	if opts.FillTimeout <= 0 {
		opts.FillTimeout = 5 * time.Second
	}
	return &Service{
		store:      store,
		cache:      c,
		dispatcher: d,
		probe:      probe,
		metrics:    m,
		ttl:        opts.CacheTTL,
		fillLimit:  opts.FillTimeout,
		slots:      semaphore.NewWeighted(int64(opts.MaxConcurrentStore)),
		logger:     slog.Default().With("component", "item-service"),
	}
}

// Write validates and persists a new item, then enqueues its enrichment and
// refreshes the queue depth. Only validation and storage failures are errors.
func (s *Service) Write(ctx context.Context, in items.CreateItem) (res WriteResult, err error) {
	ctx, span := tracing.Start(ctx, "items.write")
	defer func() { tracing.End(span, err) }()

	if err := validator.ValidateCreate(&in); err != nil {
		return WriteResult{}, err
	}

	var item *items.Item
	err = s.withSlot(ctx, func() error {
		var err error
		item, err = s.store.Create(ctx, in.Name, in.Description)
		return err
	})
	if err != nil {
		return WriteResult{}, err
	}
	span.SetAttributes(attribute.String("item.id", item.ID.String()))

	log := logger.FromContext(ctx).With("component", "item-service", "item_id", item.ID)
	dispatched := s.dispatcher.Enqueue(ctx, tasks.NewEnrichTask(item.ID))
	_, depth := s.probe.Refresh(ctx)

	res = WriteResult{Item: item, Faults: degrade.Faults(dispatched, depth)}
	for _, f := range res.Faults {
		f.Log(log, "item created with degraded side effect")
	}
	log.Info("item created", "enqueued", !dispatched.Degraded())
	return res, nil
}

// Read returns one item, from the cache when possible. A malformed id fails
// before any backend is touched.
func (s *Service) Read(ctx context.Context, rawID string) (res ReadResult, err error) {
	id, err := items.ParseID(rawID)
	if err != nil {
		return ReadResult{}, err
	}

	ctx, span := tracing.Start(ctx, "items.read", attribute.String("item.id", id.String()))
	defer func() { tracing.End(span, err) }()

	key := items.CacheKey(id)
	kind := s.cache.Kind().String()
	var faults []degrade.Result

	lookup := s.cache.Get(ctx, key)
	if lookup.Hit {
		item, decodeErr := items.DecodeProjection(lookup.Value)
		if decodeErr == nil {
			s.countHit(kind)
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return ReadResult{Item: item, Body: lookup.Value, Cached: true}, nil
		}
		lookup = cache.Result{Fault: decodeErr}
	}
	if lookup.Fault != nil {
		faults = append(faults, degrade.Fault("cache.get", lookup.Fault))
	}
	s.countMiss(kind)
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// The fill outlives the caller that started it; every caller waits
	// under its own context.
	shared := s.reads.DoChan(key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fillLimit)
		defer cancel()
		return s.fill(fillCtx, id, key)
	})
	var filled fillResult
	select {
	case r := <-shared:
		if r.Err != nil {
			return ReadResult{}, r.Err
		}
		filled = r.Val.(fillResult)
	case <-ctx.Done():
		return ReadResult{}, apperrors.Storage("reading item", ctx.Err())
	}
	faults = append(faults, degrade.Faults(filled.set)...)
	for _, f := range faults {
		f.Log(logger.FromContext(ctx), "item read with degraded cache", "item_id", id)
	}
	return ReadResult{Item: filled.item, Body: filled.body, Faults: faults}, nil
}

type fillResult struct {
	item *items.Item
	body []byte
	set  degrade.Result
}

// fill loads id from the store and populates the cache. Concurrent misses on
// one key share a single fill.
func (s *Service) fill(ctx context.Context, id uuid.UUID, key string) (fillResult, error) {
	var item *items.Item
	err := s.withSlot(ctx, func() error {
		var err error
		item, err = s.store.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return fillResult{}, err
	}
	body, err := item.Projection()
	if err != nil {
		return fillResult{}, fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}
	return fillResult{item: item, body: body, set: s.cache.Set(ctx, key, body, s.ttl)}, nil
}

// withSlot runs fn holding one store slot. Failing to get a slot before ctx
// ends is a storage error.
func (s *Service) withSlot(ctx context.Context, fn func() error) error {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return apperrors.Storage("waiting for store slot", err)
	}
	defer s.slots.Release(1)
	return fn()
}

func (s *Service) countHit(kind string) {
	if s.metrics != nil {
		s.metrics.CacheHit(kind)
	}
}

func (s *Service) countMiss(kind string) {
	if s.metrics != nil {
		s.metrics.CacheMiss(kind)
	}
}
