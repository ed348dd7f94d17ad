//go:build integration

package review

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"calsync/internal/calendar/reconcile"
	"calsync/pkg/testutil/containers"
)

const reviewTopic = "calendar.corrections"

type KafkaPublisherSuite struct {
	suite.Suite
	broker    *containers.RedpandaContainer
	publisher *KafkaPublisher
	ctx       context.Context
}

func TestKafkaPublisherSuite(t *testing.T) {
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.ctx = context.Background()
	s.broker = containers.NewRedpandaContainer(s.T())

	publisher, err := NewKafka(s.ctx, s.broker.Brokers, reviewTopic)
	s.Require().NoError(err)
	s.publisher = publisher
}

func (s *KafkaPublisherSuite) TearDownSuite() {
	if s.publisher != nil {
		s.publisher.Close()
	}
}

func (s *KafkaPublisherSuite) TestTopicCreationIsIdempotent() {
	// A second publisher racing on the same topic must treat "already
	// exists" as success.
	second, err := NewKafka(s.ctx, s.broker.Brokers, reviewTopic)
	s.Require().NoError(err)
	second.Close()
}

func (s *KafkaPublisherSuite) TestPublishRoundTrip() {
	runID := uuid.New()
	corrections := []reconcile.Correction{
		{
			Identity: "011c336bf1ddc06c",
			Title:    "Rate Decision",
			Detail:   "scheduled_utc 2025-03-10T13:00:00Z -> 2025-03-10T14:00:00Z (source_timezone UTC)",
		},
		{
			Identity: "7f3a9d2c41b0e8aa",
			Title:    "CPI y/y",
			Detail:   "importance medium -> high",
		},
	}
	s.Require().NoError(s.publisher.Publish(s.ctx, runID, "daily-window", corrections))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker.Brokers...),
		kgo.ConsumeTopics(reviewTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	got := make(map[string]message, len(corrections))
	for len(got) < len(corrections) {
		fetches := consumer.PollFetches(fetchCtx)
		s.Require().Empty(fetches.Errors())
		fetches.EachRecord(func(r *kgo.Record) {
			var m message
			s.Require().NoError(json.Unmarshal(r.Value, &m))
			got[string(r.Key)] = m
		})
	}

	first := got["011c336bf1ddc06c"]
	s.Equal(runID, first.RunID)
	s.Equal("daily-window", first.JobName)
	s.Equal("Rate Decision", first.Title)
	s.Contains(first.Detail, "scheduled_utc")
	s.False(first.FlaggedAt.IsZero())

	s.Equal("CPI y/y", got["7f3a9d2c41b0e8aa"].Title)
}

func (s *KafkaPublisherSuite) TestEmptyBatchIsANoop() {
	s.Require().NoError(s.publisher.Publish(s.ctx, uuid.New(), "daily-window", nil))
}
