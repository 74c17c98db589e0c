package enrichment

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/tasks"
	apperrors "github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type enrichment struct {
	text string
	at   time.Time
}

type fakeStore struct {
	mu      sync.Mutex
	known   map[uuid.UUID]bool
	written map[uuid.UUID][]enrichment
	fail    error
}

func newFakeStore(ids ...uuid.UUID) *fakeStore {
	s := &fakeStore{known: map[uuid.UUID]bool{}, written: map[uuid.UUID][]enrichment{}}
	for _, id := range ids {
		s.known[id] = true
	}
	return s
}

func (f *fakeStore) UpdateEnrichment(_ context.Context, id uuid.UUID, text string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return false, apperrors.Storage("updating enrichment", f.fail)
	}
	if !f.known[id] {
		return false, nil
	}
	f.written[id] = append(f.written[id], enrichment{text, at})
	return true, nil
}

func (f *fakeStore) count(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written[id])
}

func newTestWorker(store Store) (*Worker, *tasks.MemoryResults, *metrics.Metrics) {
	results := tasks.NewMemoryResults(time.Hour)
	m := metrics.New(nil)
	return NewWorker(store, results, m, 0), results, m
}

func TestEnrichWritesTextAndTimestampTogether(t *testing.T) {
	id := uuid.New()
	store := newFakeStore(id)
	w, _, _ := newTestWorker(store)
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 890, time.FixedZone("X", 3600))
	w.now = func() time.Time { return fixed }

	require.NoError(t, w.Enrich(context.Background(), id.String()))

	got := store.written[id]
	require.Len(t, got, 1)
	assert.Equal(t, "Enriched at 2026-03-04T04:06:07.00000089Z", got[0].text)
	assert.Equal(t, time.UTC, got[0].at.Location())
	assert.True(t, fixed.Equal(got[0].at))
}

func TestEnrichTwiceOverwrites(t *testing.T) {
	id := uuid.New()
	store := newFakeStore(id)
	w, _, _ := newTestWorker(store)

	require.NoError(t, w.Enrich(context.Background(), id.String()))
	require.NoError(t, w.Enrich(context.Background(), id.String()))
	assert.Equal(t, 2, store.count(id), "each run issues one full overwrite")
}

func TestEnrichHonoursCancellation(t *testing.T) {
	id := uuid.New()
	store := newFakeStore(id)
	w := NewWorker(store, nil, nil, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := w.Enrich(ctx, id.String())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, store.count(id))
}

func TestHandleOutcomes(t *testing.T) {
	known := uuid.New()
	tests := []struct {
		name       string
		task       tasks.Task
		storeErr   error
		wantErr    bool
		wantLabel  string
		wantStatus tasks.Status
	}{
		{"success", tasks.NewEnrichTask(known), nil, false, outcomeSuccess, tasks.StatusSuccess},
		{"missing item", tasks.NewEnrichTask(uuid.New()), nil, false, outcomeNotFound, tasks.StatusFailure},
		{"malformed id", tasks.Task{ID: "t-bad", Name: tasks.TaskEnrichItem, Args: []string{"nope"}}, nil, false, outcomeInvalid, tasks.StatusFailure},
		{"no args", tasks.Task{ID: "t-none", Name: tasks.TaskEnrichItem}, nil, false, outcomeInvalid, tasks.StatusFailure},
		{"unknown task", tasks.Task{ID: "t-other", Name: "worker.tasks.other", Args: []string{known.String()}}, nil, false, outcomeUnknown, tasks.StatusFailure},
		{"storage failure", tasks.NewEnrichTask(known), errors.New("db down"), true, outcomeFailure, tasks.StatusFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(known)
			store.fail = tt.storeErr
			w, results, m := newTestWorker(store)

			err := w.Handle(context.Background(), tt.task)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrStorage)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues(tt.wantLabel)))
			assert.Equal(t, 1, testutil.CollectAndCount(m.TaskDuration))

			res, ok, err := results.Lookup(context.Background(), tt.task.ID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, res.Status)
			if tt.wantStatus == tasks.StatusFailure {
				assert.NotEmpty(t, res.Error)
			}
		})
	}
}

func TestDispatchRejectsWrongArgCount(t *testing.T) {
	w, _, _ := newTestWorker(newFakeStore())
	err := w.dispatch(context.Background(), tasks.Task{ID: "t-two", Name: tasks.TaskEnrichItem, Args: []string{"a", "b"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
}

func TestRunnerDrainsQueue(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	store := newFakeStore(ids...)
	w, _, m := newTestWorker(store)
	broker := tasks.NewMemoryBroker(8, time.Second)
	defer broker.Close()
	for _, id := range ids {
		require.False(t, broker.Enqueue(context.Background(), tasks.NewEnrichTask(id)).Degraded())
	}

	ctx, cancel := context.WithCancel(context.Background())
	runner := NewRunner(broker, w, RunnerOptions{
		Concurrency:   2,
		TaskTimeout:   time.Second,
		Probe:         tasks.NewProbe(broker, m, time.Second),
		DepthInterval: 5 * time.Millisecond,
	})
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	assert.Eventually(t, func() bool {
		for _, id := range ids {
			if store.count(id) != 1 {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return testutil.ToFloat64(m.QueueDepth) == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues(outcomeSuccess)))
}
