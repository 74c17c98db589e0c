package enrichment

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/tasks"
	"golang.org/x/sync/errgroup"
)

// RunnerOptions tunes a Runner.
type RunnerOptions struct {
	Concurrency   int
	TaskTimeout   time.Duration
	Probe         *tasks.Probe
	DepthInterval time.Duration
}

// Runner pulls tasks from a Source with a fixed number of consumers.
type Runner struct {
	source tasks.Source
	worker *Worker
	opts   RunnerOptions
	logger *slog.Logger
}

func NewRunner(source tasks.Source, worker *Worker, opts RunnerOptions) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Runner{
		source: source,
		worker: worker,
		opts:   opts,
		logger: slog.Default().With("component", "enrichment-runner"),
	}
}

// Run blocks until ctx is cancelled or a consumer fails.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("enrichment runner starting", "concurrency", r.opts.Concurrency)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.opts.Concurrency; i++ {
		g.Go(func() error {
			return r.source.Consume(ctx, r.handle)
		})
	}
	if r.opts.Probe != nil && r.opts.DepthInterval > 0 {
		g.Go(func() error {
			r.opts.Probe.Run(ctx, r.opts.DepthInterval)
			return nil
		})
	}
	err := g.Wait()
	r.logger.Info("enrichment runner stopped")
	return err
}

func (r *Runner) handle(ctx context.Context, t tasks.Task) error {
	if r.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.TaskTimeout)
		defer cancel()
	}
	return r.worker.Handle(ctx, t)
}
