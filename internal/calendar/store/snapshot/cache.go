// Package snapshot caches the latest observed state per event identity in
// Redis. Downstream dashboards poll it instead of hitting PostgreSQL on
// every refresh. The cache is advisory: every write-through failure is
// logged and swallowed, the database row is always the source of truth.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"calsync/internal/calendar/models"
	"calsync/pkg/platform/sentinel"
)

const keyPrefix = "calsync:event:"

// entry is the cached projection of an event.
type entry struct {
	Identity       string    `json:"identity"`
	Title          string    `json:"title"`
	Currency       string    `json:"currency"`
	ScheduledUTC   time.Time `json:"scheduled_utc"`
	Importance     string    `json:"importance"`
	ObservedValue  *string   `json:"observed_value"`
	ObservedStatus *string   `json:"observed_status"`
	ForecastValue  *string   `json:"forecast_value"`
	PriorValue     *string   `json:"prior_value"`
	CachedAt       time.Time `json:"cached_at"`
}

// Cache is a Redis-backed latest-observed projection. A nil *Cache is valid
// and does nothing, so callers never branch on whether Redis is configured.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithTTL overrides the default 48h entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// New wraps an existing Redis client. The client lifecycle is managed by the
// caller.
func New(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{
		client: client,
		ttl:    48 * time.Hour,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store writes the events through to Redis with a pipeline. Failures are
// logged, never returned.
func (c *Cache) Store(ctx context.Context, events []*models.Event) {
	if c == nil || c.client == nil || len(events) == 0 {
		return
	}

	now := time.Now().UTC()
	pipe := c.client.Pipeline()
	for _, ev := range events {
		e := entry{
			Identity:      ev.Identity,
			Title:         ev.Title,
			Currency:      ev.Currency,
			ScheduledUTC:  ev.ScheduledUTC.UTC(),
			Importance:    string(ev.Importance),
			ObservedValue: ev.ObservedValue,
			ForecastValue: ev.ForecastValue,
			PriorValue:    ev.PriorValue,
			CachedAt:      now,
		}
		if ev.ObservedStatus != nil {
			s := string(*ev.ObservedStatus)
			e.ObservedStatus = &s
		}
		payload, err := json.Marshal(e)
		if err != nil {
			c.logger.Warn("snapshot marshal failed", "identity", ev.Identity, "error", err)
			continue
		}
		pipe.Set(ctx, keyPrefix+ev.Identity, payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("snapshot write-through failed", "count", len(events), "error", err)
	}
}

// Get returns the cached projection or sentinel.ErrNotFound.
func (c *Cache) Get(ctx context.Context, identity string) (*models.Event, error) {
	if c == nil || c.client == nil {
		return nil, sentinel.ErrNotFound
	}

	payload, err := c.client.Get(ctx, keyPrefix+identity).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot get %s: %w", identity, err)
	}

	var e entry
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("snapshot decode %s: %w", identity, err)
	}

	ev := &models.Event{
		Identity:      e.Identity,
		Title:         e.Title,
		Currency:      e.Currency,
		ScheduledUTC:  e.ScheduledUTC,
		Importance:    models.Importance(e.Importance),
		ObservedValue: e.ObservedValue,
		ForecastValue: e.ForecastValue,
		PriorValue:    e.PriorValue,
	}
	if e.ObservedStatus != nil {
		s := models.ObservedStatus(*e.ObservedStatus)
		ev.ObservedStatus = &s
	}
	return ev, nil
}
