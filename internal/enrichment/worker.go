// Package enrichment is the consumer side of the task queue. A Worker
// enriches one item per task and a Runner feeds it from a broker.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/tasks"
	apperrors "github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ErrUnknownTask is returned for a task name this worker does not handle.
var ErrUnknownTask = errors.New("unknown task")

// Task outcome labels for enrichment_tasks_total.
const (
	outcomeSuccess  = "success"
	outcomeNotFound = "not_found"
	outcomeInvalid  = "invalid"
	outcomeFailure  = "failure"
	outcomeUnknown  = "unknown"
)

// Store is the part of the item store the worker writes through.
type Store interface {
	UpdateEnrichment(ctx context.Context, id uuid.UUID, text string, at time.Time) (bool, error)
}

type Worker struct {
	store   Store
	results tasks.ResultStore
	metrics *metrics.Metrics
	work    time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewWorker creates a Worker that spends work on each item before writing
// its enrichment. results and m may be nil.
func NewWorker(store Store, results tasks.ResultStore, m *metrics.Metrics, work time.Duration) *Worker {
	if results == nil {
		results = tasks.NopResults{}
	}
	return &Worker{
		store:   store,
		results: results,
		metrics: m,
		work:    work,
		now:     time.Now,
		logger:  slog.Default().With("component", "enrichment-worker"),
	}
}

// Enrich computes and stores the enrichment of one item. Running it again
// overwrites the previous result.
func (w *Worker) Enrich(ctx context.Context, rawID string) (err error) {
	id, err := items.ParseID(rawID)
	if err != nil {
		return err
	}
	ctx, span := tracing.Start(ctx, "enrichment.enrich", attribute.String("item.id", id.String()))
	defer func() {
		if errors.Is(err, apperrors.ErrItemNotFound) {
			tracing.End(span, nil)
			return
		}
		tracing.End(span, err)
	}()

	if w.work > 0 {
		timer := time.NewTimer(w.work)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("enriching item %s: %w", id, ctx.Err())
		case <-timer.C:
		}
	}

	at := w.now().UTC()
	text := "Enriched at " + at.Format(time.RFC3339Nano)
	updated, err := w.store.UpdateEnrichment(ctx, id, text, at)
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("enriching item %s: %w", id, apperrors.ErrItemNotFound)
	}
	return nil
}

// Handle runs one dequeued task and records its outcome. Malformed ids,
// missing items and unknown task names are logged and acknowledged; only
// storage failures are returned.
func (w *Worker) Handle(ctx context.Context, t tasks.Task) error {
	start := time.Now()
	log := w.logger.With("task_id", t.ID, "task", t.Name, "args", t.Args)

	err := w.dispatch(ctx, t)
	outcome := classify(err)
	if w.metrics != nil {
		w.metrics.TasksTotal.WithLabelValues(outcome).Inc()
		w.metrics.TaskDuration.Observe(time.Since(start).Seconds())
	}

	result := tasks.TaskResult{
		TaskID:     t.ID,
		Name:       t.Name,
		Args:       t.Args,
		Status:     tasks.StatusSuccess,
		FinishedAt: w.now().UTC(),
	}
	if err != nil {
		result.Status = tasks.StatusFailure
		result.Error = err.Error()
	}
	w.results.Record(context.WithoutCancel(ctx), result)

	switch outcome {
	case outcomeSuccess:
		log.Info("item enriched", "duration", time.Since(start))
		return nil
	case outcomeFailure:
		return err
	default:
		log.Warn("task dropped", "reason", outcome, "error", err)
		return nil
	}
}

func (w *Worker) dispatch(ctx context.Context, t tasks.Task) error {
	if t.Name != tasks.TaskEnrichItem {
		return fmt.Errorf("%w: %s", ErrUnknownTask, t.Name)
	}
	if len(t.Args) != 1 {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s expects one argument, got %d", t.Name, len(t.Args))
	}
	return w.Enrich(ctx, t.Args[0])
}

func classify(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrUnknownTask):
		return outcomeUnknown
	case errors.Is(err, apperrors.ErrInvalidInput):
		return outcomeInvalid
	case errors.Is(err, apperrors.ErrItemNotFound):
		return outcomeNotFound
	default:
		return outcomeFailure
	}
}
