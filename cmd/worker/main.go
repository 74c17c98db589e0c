// Command worker consumes enrichment tasks from the configured broker and
// writes the results back to PostgreSQL. Prometheus metrics are served on
// metrics.port.
//
// Usage:
//
//	go run ./cmd/worker [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/enrichment"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/store"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/tasks"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format,
		"service", cfg.Service.Name+"-worker",
		"environment", cfg.Service.Environment,
	)

	broker, err := tasks.Open(cfg.Broker)
	if err != nil {
		slog.Error("failed to open broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()
	if broker.Kind() == tasks.KindMemory {
		slog.Error("memory:// broker is in-process only; run the api with it instead")
		os.Exit(1)
	}
	slog.Info("starting enrichment worker",
		"broker", broker.Kind(),
		"queue", cfg.Broker.Queue,
		"concurrency", cfg.Worker.Concurrency,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcCfg := cfg.Service
	svcCfg.Name += "-worker"
	tp, err := tracing.Init(ctx, svcCfg, cfg.Tracing)
	if err != nil {
		slog.Error("failed to initialise tracing", "error", err)
		os.Exit(1)
	}
	defer tp.Shutdown(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, m)
		defer shutdownMetrics(context.Background())
	}

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	itemStore := store.New(db, m, cfg.Postgres.QueryTimeout)
	if err := itemStore.Migrate(ctx); err != nil {
		slog.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	results, err := tasks.OpenResults(cfg.Broker)
	if err != nil {
		slog.Error("failed to open result backend", "error", err)
		os.Exit(1)
	}
	defer results.Close()

	worker := enrichment.NewWorker(itemStore, results, m, cfg.Worker.SimulatedWork)
	runner := enrichment.NewRunner(broker, worker, enrichment.RunnerOptions{
		Concurrency:   cfg.Worker.Concurrency,
		TaskTimeout:   cfg.Worker.TaskTimeout,
		Probe:         tasks.NewProbe(broker, m, cfg.Broker.EnqueueTimeout),
		DepthInterval: cfg.Broker.DepthInterval,
	})
	if err := runner.Run(ctx); err != nil {
		slog.Error("worker error", "error", err)
	}
	slog.Info("enrichment worker stopped")
}
