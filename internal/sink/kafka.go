package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/config"
)

// Kafka publishes items as JSON, keyed by source so one source's activity
// stays ordered within a partition.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(conf config.KafkaConf) *Kafka {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(conf.Brokers...),
		Topic:                  conf.Topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &Kafka{writer: writer}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Publish(ctx context.Context, it activity.Item) error {
	value, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("marshal item %s: %w", it.ID, err)
	}
	msg := kafka.Message{
		Key:   []byte(it.Source),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(it.Kind)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
