package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/AdaptLabsAI/irisync/pkg/logging"
)

const defaultTopic = "sync_events"

// Publisher is what the sync engine depends on. A nil-safe no-op
// implementation backs deployments without Kafka.
type Publisher interface {
	Publish(ctx context.Context, ev *SyncEvent) error
	Close() error
}

// KafkaPublisher publishes sync events through franz-go.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger logging.Logger
}

// NewKafkaPublisher connects to the brokers and returns a publisher on the
// sync_events topic.
func NewKafkaPublisher(brokers []string, logger logging.Logger) (*KafkaPublisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("irisync"),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaPublisher{
		client: client,
		topic:  defaultTopic,
		logger: logger,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev *SyncEvent) error {
	if ev == nil {
		return fmt.Errorf("event cannot be nil")
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.EventID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(ev.EventType)},
			{Key: "source", Value: []byte(ev.Source)},
		},
	}
	if ev.OrgID != "" {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: "org_id", Value: []byte(ev.OrgID)})
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("failed to produce event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.client.Close()
	return nil
}

// Client exposes the underlying kgo client for health checks.
func (p *KafkaPublisher) Client() *kgo.Client {
	return p.client
}

// NopPublisher drops every event. Used when no brokers are configured and
// in tests that do not assert on events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *SyncEvent) error { return nil }
func (NopPublisher) Close() error                              { return nil }
