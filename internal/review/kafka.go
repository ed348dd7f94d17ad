package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"calsync/internal/calendar/reconcile"
)

// message is the wire format consumed by the review queue.
type message struct {
	RunID     uuid.UUID `json:"run_id"`
	JobName   string    `json:"job_name"`
	Identity  string    `json:"identity"`
	Title     string    `json:"title"`
	Detail    string    `json:"detail"`
	FlaggedAt time.Time `json:"flagged_at"`
}

// KafkaPublisher publishes corrections to a Kafka topic, keyed by event
// identity so all corrections for one event land in the same partition.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// KafkaOption configures a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

func WithLogger(logger *slog.Logger) KafkaOption {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

// NewKafka connects to the brokers and makes sure the topic exists.
func NewKafka(ctx context.Context, brokers []string, topic string, opts ...KafkaOption) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}

	p := &KafkaPublisher{
		client: client,
		topic:  topic,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ensureTopic creates the topic if missing. Racing creators are fine, the
// broker reports "already exists" which we treat as success.
func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 3, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("ensure topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("ensure topic %s: %w", topic, resp.Err)
	}
	return nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, runID uuid.UUID, jobName string, corrections []reconcile.Correction) error {
	if len(corrections) == 0 {
		return nil
	}

	now := time.Now().UTC()
	records := make([]*kgo.Record, 0, len(corrections))
	for _, c := range corrections {
		payload, err := json.Marshal(message{
			RunID:     runID,
			JobName:   jobName,
			Identity:  c.Identity,
			Title:     c.Title,
			Detail:    c.Detail,
			FlaggedAt: now,
		})
		if err != nil {
			return fmt.Errorf("marshal correction %s: %w", c.Identity, err)
		}
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(c.Identity),
			Value: payload,
		})
	}

	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("publish %d corrections: %w", len(records), err)
	}
	p.logger.Info("published corrections for review",
		"run_id", runID, "count", len(records))
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
