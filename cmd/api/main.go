// Command api starts the item HTTP service.
//
// It serves POST /items and GET /items/{id}, reading through the configured
// cache and handing enrichment to the task queue. GET /health, /health/live,
// /health/ready and /metrics are served on the same port. With a memory://
// broker the enrichment worker runs inside this process.
//
// Usage:
//
//	go run ./cmd/api [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/enrichment"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/cache"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/handler"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/service"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/store"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/items/tasks"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/middleware"
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
		"service", cfg.Service.Name,
		"environment", cfg.Service.Environment,
	)
	slog.Info("starting item service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(ctx, cfg.Service, cfg.Tracing)
	if err != nil {
		slog.Error("failed to initialise tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	itemStore := store.New(db, m, cfg.Postgres.QueryTimeout)
	if err := itemStore.Migrate(ctx); err != nil {
		slog.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	itemCache, err := cache.New(cfg.Cache, m)
	if err != nil {
		slog.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	defer itemCache.Close()
	slog.Info("cache ready", "backend", itemCache.Kind(), "ttl", cfg.Cache.TTL())

	broker, err := tasks.Open(cfg.Broker)
	if err != nil {
		slog.Error("failed to open broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()
	slog.Info("task broker ready", "broker", broker.Kind(), "queue", cfg.Broker.Queue)

	probe := tasks.NewProbe(broker, m, cfg.Broker.EnqueueTimeout)
	if depth, res := probe.Refresh(ctx); !res.Degraded() {
		slog.Info("initial queue depth", "depth", depth)
	}
	go probe.Run(ctx, cfg.Broker.DepthInterval)

	if broker.Kind() == tasks.KindMemory || cfg.Worker.Embedded {
		results, err := tasks.OpenResults(cfg.Broker)
		if err != nil {
			slog.Error("failed to open result backend", "error", err)
			os.Exit(1)
		}
		defer results.Close()
		worker := enrichment.NewWorker(itemStore, results, m, cfg.Worker.SimulatedWork)
		runner := enrichment.NewRunner(broker, worker, enrichment.RunnerOptions{
			Concurrency: cfg.Worker.Concurrency,
			TaskTimeout: cfg.Worker.TaskTimeout,
		})
		go func() {
			if err := runner.Run(ctx); err != nil {
				slog.Error("embedded worker stopped", "error", err)
			}
		}()
		slog.Info("embedded enrichment worker started", "concurrency", cfg.Worker.Concurrency)
	}

	svc := service.New(itemStore, itemCache, broker, probe, m, service.Options{
		CacheTTL:           cfg.Cache.TTL(),
		MaxConcurrentStore: cfg.Server.MaxConcurrentStore,
		FillTimeout:        cfg.Postgres.QueryTimeout,
	})
	h := handler.New(svc)

	checker := health.NewChecker()
	checker.Register("postgres", health.Critical(db.Ping))
	if p, ok := itemCache.(interface{ Ping(context.Context) error }); ok {
		checker.Register("cache", health.Auxiliary(p.Ping))
	}
	checker.Register("broker", health.Auxiliary(func(ctx context.Context) error {
		_, err := broker.Depth(ctx)
		return err
	}))

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", m.Handler())

	var root http.Handler = mux
	root = middleware.Timeout(cfg.Server.RequestTimeout)(root)
	root = middleware.AccessLog(root)
	root = middleware.Metrics(m)(root)
	root = middleware.RequestID(root)
	root = middleware.Tracing(tp.Tracer())(root)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("item service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("item service stopped")
}
