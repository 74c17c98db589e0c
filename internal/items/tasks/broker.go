package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/degrade"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/redis"
)

const enqueueStep = "tasks.enqueue"

// Open builds the broker named by cfg.URL. Network brokers connect lazily so
// the API can accept writes while the broker is down.
func Open(cfg config.BrokerConfig) (Broker, error) {
	kind, err := ParseKind(cfg.URL)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindRedis:
		client, err := pkgredis.NewClient(cfg.URL, pkgredis.Options{SkipPing: true})
		if err != nil {
			return nil, fmt.Errorf("creating redis broker: %w", err)
		}
		return NewRedisBroker(client, cfg.Queue, cfg.EnqueueTimeout), nil
	case KindKafka:
		brokers := parseKafkaURL(cfg.URL)
		if len(brokers) == 0 {
			return nil, fmt.Errorf("kafka broker url %q lists no hosts", cfg.URL)
		}
		return NewKafkaBroker(brokers, cfg.Queue, cfg.ConsumerGroup, cfg.EnqueueTimeout), nil
	default:
		return NewMemoryBroker(cfg.MemoryCapacity, cfg.EnqueueTimeout), nil
	}
}

// parseKafkaURL splits "kafka://h1:9092,h2:9092" into broker addresses.
func parseKafkaURL(url string) []string {
	var out []string
	for _, h := range strings.Split(strings.TrimPrefix(url, "kafka://"), ",") {
		h = strings.TrimSpace(strings.TrimSuffix(h, "/"))
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}

// enqueue bounds push by timeout and folds any failure into a fault.
func enqueue(ctx context.Context, timeout time.Duration, logger *slog.Logger, t Task, push func(context.Context, []byte) error) degrade.Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	data, err := t.Encode()
	if err == nil {
		err = push(ctx, data)
	}
	if err != nil {
		res := degrade.Fault(enqueueStep, fmt.Errorf("enqueue %s: %w", t.Name, err))
		res.Log(logger, "task dispatch failed", "task_id", t.ID, "args", t.Args)
		return res
	}
	logger.Debug("task enqueued", "task_id", t.ID, "task", t.Name, "args", t.Args)
	return degrade.OK(enqueueStep)
}

// deliver runs handle for one task, logging rather than returning its error.
func deliver(ctx context.Context, logger *slog.Logger, handle HandlerFunc, t Task) {
	if err := handle(ctx, t); err != nil {
		logger.Error("task handler failed", "task_id", t.ID, "task", t.Name, "error", err)
	}
}
