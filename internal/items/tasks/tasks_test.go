package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeList mimics LPUSH/BRPOP/LLEN on one list.
type fakeList struct {
	mu    sync.Mutex
	items [][]byte
	fail  error
	block bool
}

func (f *fakeList) LPush(ctx context.Context, _ string, values ...any) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	for _, v := range values {
		f.items = append([][]byte{v.([]byte)}, f.items...)
	}
	return nil
}

func (f *fakeList) BRPop(ctx context.Context, _ time.Duration, _ string) ([]byte, error) {
	f.mu.Lock()
	if n := len(f.items); n > 0 {
		v := f.items[n-1]
		f.items = f.items[:n-1]
		f.mu.Unlock()
		return v, nil
	}
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (f *fakeList) LLen(context.Context, string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return 0, f.fail
	}
	return int64(len(f.items)), nil
}

func (f *fakeList) Close() error { return nil }

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  time.Duration
	fail error
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (f *fakeKV) SetEX(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.data[key] = value
	f.ttl = ttl
	return nil
}

func (f *fakeKV) Close() error { return nil }

type failingDepth struct{ err error }

func (f failingDepth) Depth(context.Context) (int64, error) { return 0, f.err }

func TestParseKind(t *testing.T) {
	for url, want := range map[string]Kind{
		"memory://":                KindMemory,
		"redis://localhost:6379/1": KindRedis,
		"rediss://host:6380/1":     KindRedis,
		"kafka://localhost:9092":   KindKafka,
	} {
		got, err := ParseKind(url)
		require.NoError(t, err, url)
		assert.Equal(t, want, got, url)
	}
	_, err := ParseKind("amqp://localhost")
	assert.Error(t, err)
}

func TestParseKafkaURL(t *testing.T) {
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, parseKafkaURL("kafka://k1:9092, k2:9092/"))
	assert.Empty(t, parseKafkaURL("kafka://"))
}

func TestOpenVariants(t *testing.T) {
	b, err := Open(config.BrokerConfig{URL: "memory://", Queue: "q", MemoryCapacity: 4})
	require.NoError(t, err)
	assert.Equal(t, KindMemory, b.Kind())
	require.NoError(t, b.Close())

	b, err = Open(config.BrokerConfig{URL: "kafka://localhost:9092", Queue: "q", ConsumerGroup: "g"})
	require.NoError(t, err)
	assert.Equal(t, KindKafka, b.Kind())
	require.NoError(t, b.Close())

	_, err = Open(config.BrokerConfig{URL: "kafka://", Queue: "q"})
	assert.Error(t, err)
}

func TestEnrichTaskEncoding(t *testing.T) {
	id := uuid.New()
	task := NewEnrichTask(id)
	assert.Equal(t, TaskEnrichItem, task.Name)
	assert.Equal(t, []string{id.String()}, task.Args)

	data, err := task.Encode()
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, task.ID, decoded.ID)
	assert.Equal(t, task.Args, decoded.Args)

	_, err = Decode([]byte(`{"args":["x"]}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestMemoryBrokerDeliversInOrder(t *testing.T) {
	b := NewMemoryBroker(8, time.Second)
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, second := NewEnrichTask(uuid.New()), NewEnrichTask(uuid.New())
	assert.False(t, b.Enqueue(ctx, first).Degraded())
	assert.False(t, b.Enqueue(ctx, second).Degraded())

	depth, err := b.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	got := make(chan Task, 2)
	go b.Consume(ctx, func(_ context.Context, t Task) error {
		got <- t
		return errors.New("ignored")
	})
	assert.Equal(t, first.ID, (<-got).ID)
	assert.Equal(t, second.ID, (<-got).ID)
}

func TestMemoryBrokerFullAndClosed(t *testing.T) {
	b := NewMemoryBroker(1, 0)
	ctx := context.Background()

	assert.False(t, b.Enqueue(ctx, NewEnrichTask(uuid.New())).Degraded())
	res := b.Enqueue(ctx, NewEnrichTask(uuid.New()))
	assert.True(t, res.Degraded())
	assert.ErrorIs(t, res.Err, ErrQueueFull)

	require.NoError(t, b.Close())
	res = b.Enqueue(ctx, NewEnrichTask(uuid.New()))
	assert.ErrorIs(t, res.Err, ErrBrokerClosed)
	assert.NoError(t, b.Consume(ctx, func(context.Context, Task) error { return nil }))
}

func TestRedisBrokerFIFOAndMalformed(t *testing.T) {
	list := &fakeList{}
	b := NewRedisBroker(list, "enrichment", time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, second := NewEnrichTask(uuid.New()), NewEnrichTask(uuid.New())
	require.False(t, b.Enqueue(ctx, first).Degraded())
	require.NoError(t, list.LPush(ctx, "enrichment", []byte("garbage")))
	require.False(t, b.Enqueue(ctx, second).Degraded())

	depth, err := b.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), depth)

	got := make(chan Task, 3)
	done := make(chan error, 1)
	go func() {
		done <- b.Consume(ctx, func(_ context.Context, t Task) error {
			got <- t
			return nil
		})
	}()
	assert.Equal(t, first.ID, (<-got).ID)
	assert.Equal(t, second.ID, (<-got).ID)

	cancel()
	assert.NoError(t, <-done)
	assert.Empty(t, got)
}

func TestRedisBrokerFaults(t *testing.T) {
	list := &fakeList{fail: errors.New("connection refused")}
	b := NewRedisBroker(list, "enrichment", time.Second)

	res := b.Enqueue(context.Background(), NewEnrichTask(uuid.New()))
	assert.True(t, res.Degraded())
	assert.Equal(t, enqueueStep, res.Step)

	slow := NewRedisBroker(&fakeList{block: true}, "enrichment", 20*time.Millisecond)
	start := time.Now()
	res = slow.Enqueue(context.Background(), NewEnrichTask(uuid.New()))
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProbeRefresh(t *testing.T) {
	m := metrics.New(nil)
	b := NewMemoryBroker(8, 0)
	b.Enqueue(context.Background(), NewEnrichTask(uuid.New()))
	b.Enqueue(context.Background(), NewEnrichTask(uuid.New()))

	depth, res := NewProbe(b, m, time.Second).Refresh(context.Background())
	assert.False(t, res.Degraded())
	assert.Equal(t, int64(2), depth)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueueDepth))

	_, res = NewProbe(failingDepth{errors.New("down")}, m, time.Second).Refresh(context.Background())
	assert.True(t, res.Degraded())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueueDepth), "failed refresh leaves the gauge alone")
}

func TestProbeRunStopsOnCancel(t *testing.T) {
	m := metrics.New(nil)
	b := NewMemoryBroker(8, 0)
	b.Enqueue(context.Background(), NewEnrichTask(uuid.New()))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewProbe(b, m, 0).Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return testutil.ToFloat64(m.QueueDepth) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestMemoryResultsExpire(t *testing.T) {
	r := NewMemoryResults(time.Minute)
	now := time.Now()
	r.now = func() time.Time { return now }
	ctx := context.Background()

	r.Record(ctx, TaskResult{TaskID: "t1", Status: StatusSuccess})
	got, ok, err := r.Lookup(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, got.Status)

	now = now.Add(2 * time.Minute)
	_, ok, _ = r.Lookup(ctx, "t1")
	assert.False(t, ok)
}

func TestRedisResults(t *testing.T) {
	kv := &fakeKV{data: map[string][]byte{}}
	r := NewRedisResults(kv, 24*time.Hour)
	ctx := context.Background()

	res := r.Record(ctx, TaskResult{TaskID: "t1", Status: StatusFailure, Error: "boom"})
	assert.False(t, res.Degraded())
	assert.Equal(t, 24*time.Hour, kv.ttl)
	assert.Contains(t, kv.data, "task-result:t1")

	got, ok, err := r.Lookup(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "boom", got.Error)

	_, ok, err = r.Lookup(ctx, "missing")
	assert.NoError(t, err)
	assert.False(t, ok)

	kv.fail = errors.New("readonly")
	assert.True(t, r.Record(ctx, TaskResult{TaskID: "t2"}).Degraded())
}

func TestOpenResults(t *testing.T) {
	r, err := OpenResults(config.BrokerConfig{})
	require.NoError(t, err)
	assert.IsType(t, NopResults{}, r)

	r, err = OpenResults(config.BrokerConfig{ResultURL: "memory://", ResultTTL: time.Hour})
	require.NoError(t, err)
	assert.IsType(t, &MemoryResults{}, r)

	_, err = OpenResults(config.BrokerConfig{ResultURL: "db+sqlite://"})
	assert.Error(t, err)
}
