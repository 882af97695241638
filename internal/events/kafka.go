package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Kafka publishes events to a Kafka cluster, one topic per event type,
// prefixed so multiple deployments can share a cluster.
type Kafka struct {
	client *kgo.Client
	prefix string
	logger *slog.Logger
}

// NewKafka connects to the brokers and makes sure every event topic exists.
func NewKafka(ctx context.Context, brokers []string, topicPrefix string, logger *slog.Logger) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopics(ctx, client, topicPrefix); err != nil {
		client.Close()
		return nil, err
	}

	return &Kafka{client: client, prefix: topicPrefix, logger: logger}, nil
}

func ensureTopics(ctx context.Context, client *kgo.Client, prefix string) error {
	adm := kadm.NewClient(client)
	topics := make([]string, 0, len(Topics()))
	for _, t := range Topics() {
		topics = append(topics, prefix+"."+t)
	}
	resp, err := adm.CreateTopics(ctx, 3, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, res := range resp.Sorted() {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", res.Topic, res.Err)
		}
	}
	return nil
}

func (k *Kafka) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", event.Topic(), err)
	}

	record := &kgo.Record{
		Topic: k.prefix + "." + event.Topic(),
		Key:   []byte(event.Key()),
		Value: payload,
	}

	result := k.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", record.Topic, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	k.client.Close()
	return nil
}
