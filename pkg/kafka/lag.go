package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// LagReader reports how many messages of a topic a consumer group has not
// committed yet.
type LagReader struct {
	client *kafka.Client
	topic  string
	group  string
}

func NewLagReader(brokers []string, topic, group string) *LagReader {
	return &LagReader{
		client: &kafka.Client{Addr: kafka.TCP(brokers...)},
		topic:  topic,
		group:  group,
	}
}

// Lag sums end offset minus committed offset over all partitions. A partition
// the group never committed counts from its first offset.
func (l *LagReader) Lag(ctx context.Context) (int64, error) {
	meta, err := l.client.Metadata(ctx, &kafka.MetadataRequest{Topics: []string{l.topic}})
	if err != nil {
		return 0, fmt.Errorf("fetching metadata for %s: %w", l.topic, err)
	}
	var partitions []int
	for _, t := range meta.Topics {
		if t.Name != l.topic {
			continue
		}
		if t.Error != nil {
			return 0, fmt.Errorf("topic %s: %w", l.topic, t.Error)
		}
		for _, p := range t.Partitions {
			partitions = append(partitions, p.ID)
		}
	}
	if len(partitions) == 0 {
		return 0, nil
	}

	requests := make([]kafka.OffsetRequest, 0, len(partitions))
	for _, p := range partitions {
		requests = append(requests, kafka.FirstOffsetOf(p), kafka.LastOffsetOf(p))
	}
	offsets, err := l.client.ListOffsets(ctx, &kafka.ListOffsetsRequest{
		Topics: map[string][]kafka.OffsetRequest{l.topic: requests},
	})
	if err != nil {
		return 0, fmt.Errorf("listing offsets for %s: %w", l.topic, err)
	}

	committed, err := l.client.OffsetFetch(ctx, &kafka.OffsetFetchRequest{
		GroupID: l.group,
		Topics:  map[string][]int{l.topic: partitions},
	})
	if err != nil {
		return 0, fmt.Errorf("fetching committed offsets for %s: %w", l.group, err)
	}
	if committed.Error != nil {
		return 0, fmt.Errorf("fetching committed offsets for %s: %w", l.group, committed.Error)
	}
	commitByPartition := make(map[int]int64, len(partitions))
	for _, p := range committed.Topics[l.topic] {
		commitByPartition[p.Partition] = p.CommittedOffset
	}

	var lag int64
	for _, p := range offsets.Topics[l.topic] {
		if p.Error != nil {
			return 0, fmt.Errorf("partition %d offsets: %w", p.Partition, p.Error)
		}
		start, ok := commitByPartition[p.Partition]
		if !ok || start < 0 {
			start = p.FirstOffset
		}
		if d := p.LastOffset - start; d > 0 {
			lag += d
		}
	}
	return lag, nil
}
