package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/degrade"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/resilience"
)

const probeStep = "tasks.depth"

// Probe publishes the queue depth to the worker_queue_depth gauge. A failed
// or slow read leaves the gauge at its last value; Refresh never waits longer
// than the probe timeout.
type Probe struct {
	reader  DepthReader
	metrics *metrics.Metrics
	timeout time.Duration
	logger  *slog.Logger
}

func NewProbe(reader DepthReader, m *metrics.Metrics, timeout time.Duration) *Probe {
	return &Probe{
		reader:  reader,
		metrics: m,
		timeout: timeout,
		logger:  slog.Default().With("component", "queue-depth-probe"),
	}
}

// Refresh reads the depth once and updates the gauge.
func (p *Probe) Refresh(ctx context.Context) (int64, degrade.Result) {
	depth, err := resilience.Call(ctx, p.timeout, "queue depth", p.reader.Depth)
	if err != nil {
		res := degrade.Fault(probeStep, fmt.Errorf("reading queue depth: %w", err))
		res.Log(p.logger, "queue depth refresh failed")
		return 0, res
	}
	if p.metrics != nil {
		p.metrics.SetQueueDepth(depth)
	}
	return depth, degrade.OK(probeStep)
}

// Run refreshes on every tick until ctx is cancelled. interval <= 0 returns
// immediately.
func (p *Probe) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}
