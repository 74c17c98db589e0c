package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/internal/degrade"
	"github.com/Adithya-Monish-Kumar-K/item-enrichment-service/pkg/kafka"
)

// KafkaBroker publishes tasks to a topic named after the queue and consumes
// them in a consumer group. Depth is the group's uncommitted lag.
type KafkaBroker struct {
	brokers  []string
	topic    string
	group    string
	producer *kafka.Producer
	lag      *kafka.LagReader
	timeout  time.Duration
	logger   *slog.Logger
}

func NewKafkaBroker(brokers []string, topic, group string, timeout time.Duration) *KafkaBroker {
	return &KafkaBroker{
		brokers:  brokers,
		topic:    topic,
		group:    group,
		producer: kafka.NewProducer(brokers, topic),
		lag:      kafka.NewLagReader(brokers, topic, group),
		timeout:  timeout,
		logger:   slog.Default().With("component", "task-broker", "broker", "kafka", "topic", topic),
	}
}

func (b *KafkaBroker) Enqueue(ctx context.Context, t Task) degrade.Result {
	key := t.ID
	if len(t.Args) > 0 {
		key = t.Args[0]
	}
	return enqueue(ctx, b.timeout, b.logger, t, func(ctx context.Context, _ []byte) error {
		return b.producer.Publish(ctx, kafka.Event{Key: key, Value: t})
	})
}

// Consume joins the group with its own reader. Every delivered message is
// committed, including malformed ones and ones whose handler failed.
func (b *KafkaBroker) Consume(ctx context.Context, handle HandlerFunc) error {
	consumer := kafka.NewConsumer(b.brokers, b.topic, b.group, func(ctx context.Context, _ []byte, value []byte) error {
		t, err := kafka.DecodeJSON[Task](value)
		if err != nil || t.Name == "" {
			b.logger.Error("dropping malformed task", "error", err, "payload_size", len(value))
			return nil
		}
		deliver(ctx, b.logger, handle, t)
		return nil
	})
	return consumer.Start(ctx)
}

func (b *KafkaBroker) Depth(ctx context.Context) (int64, error) {
	return b.lag.Lag(ctx)
}

func (b *KafkaBroker) Kind() Kind { return KindKafka }

func (b *KafkaBroker) Close() error {
	return b.producer.Close()
}
