// Package reconcile merges batches of normalized events into the event store.
// It deduplicates within the batch first, then drives the store's atomic
// insert-or-merge per identity, so the same batch can be replayed any number
// of times and two overlapping sessions converge to the same rows.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"calsync/internal/calendar/metrics"
	"calsync/internal/calendar/models"
	"calsync/internal/calendar/store/event"
	"calsync/pkg/platform/sentinel"
)

const defaultConcurrency = 8

// Correction is a field-level change on an existing identity that needs
// human review before it is trusted.
type Correction struct {
	Identity string `json:"identity"`
	Title    string `json:"title"`
	Detail   string `json:"detail"`
}

// Result aggregates one batch reconciliation. Failures holds one detail line
// per rejected record for the audit trail.
type Result struct {
	Counts      models.SessionCounts
	Corrections []Correction
	Failures    []string
}

// Engine reconciles normalized events against the store.
type Engine struct {
	store       event.Store
	logger      *slog.Logger
	metrics     *metrics.Metrics
	concurrency int
	retryWait   backoff.BackOff
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithConcurrency bounds the number of in-flight store writes.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New constructs an Engine.
func New(store event.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		logger:      slog.Default(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile merges the batch into the store. Record-local failures are
// counted as rejected and logged, never returned; the error return is
// reserved for context cancellation and non-retryable store failures.
func (e *Engine) Reconcile(ctx context.Context, events []*models.Event) (Result, error) {
	deduped := dedupe(events)

	var (
		mu     sync.Mutex
		result Result
	)
	result.Counts.Seen = len(events)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, ev := range deduped {
		g.Go(func() error {
			merged, err := e.upsertWithRetry(gctx, ev)
			if err != nil {
				if gctx.Err() != nil || !errors.Is(err, sentinel.ErrUnavailable) {
					return err
				}
				// Retry budget spent. One stubborn record degrades to
				// rejected; the rest of the batch keeps flowing.
				e.logger.Error("event store still unavailable, rejecting record",
					"identity", ev.Identity, "error", err)
				mu.Lock()
				result.Counts.Rejected++
				result.Failures = append(result.Failures, err.Error())
				mu.Unlock()
				e.metrics.IncrementRecord(string(ev.OriginScope), "rejected")
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			switch merged.Outcome {
			case models.MergeInserted:
				result.Counts.Inserted++
			case models.MergeUpdated:
				result.Counts.Updated++
			case models.MergeUnchanged:
				result.Counts.Unchanged++
			}
			for _, detail := range merged.Corrections {
				result.Corrections = append(result.Corrections, Correction{
					Identity: ev.Identity,
					Title:    ev.Title,
					Detail:   detail,
				})
			}
			e.metrics.IncrementRecord(string(ev.OriginScope), string(merged.Outcome))
			e.metrics.AddCorrections(len(merged.Corrections))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("reconcile batch: %w", err)
	}

	sort.Slice(result.Corrections, func(i, j int) bool {
		return result.Corrections[i].Identity < result.Corrections[j].Identity
	})
	sort.Strings(result.Failures)
	for _, c := range result.Corrections {
		e.logger.Warn("merge correction flagged",
			"identity", c.Identity,
			"title", c.Title,
			"detail", c.Detail,
		)
	}
	return result, nil
}

// upsertWithRetry retries transient store outages with capped exponential
// backoff. An exhausted budget surfaces ErrUnavailable to the caller;
// anything else is permanent.
func (e *Engine) upsertWithRetry(ctx context.Context, ev *models.Event) (models.MergeResult, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(50*time.Millisecond),
			backoff.WithMaxInterval(time.Second),
		), 3), ctx)

	var merged models.MergeResult
	operation := func() error {
		var err error
		merged, err = e.store.UpsertMerge(ctx, ev)
		if err == nil {
			return nil
		}
		if errors.Is(err, sentinel.ErrUnavailable) {
			e.logger.Warn("event store unavailable, retrying",
				"identity", ev.Identity, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(operation, policy); err != nil {
		return models.MergeResult{}, fmt.Errorf("merge event %s: %w", ev.Identity, err)
	}
	return merged, nil
}

// dedupe collapses records sharing an identity into one event per identity,
// applying the same non-destructive policy the store applies. Later records
// win on conflicts, mirroring top-to-bottom page order.
func dedupe(events []*models.Event) []*models.Event {
	byIdentity := make(map[string]*models.Event, len(events))
	var order []string
	for _, ev := range events {
		stored, ok := byIdentity[ev.Identity]
		if !ok {
			copied := *ev
			byIdentity[ev.Identity] = &copied
			order = append(order, ev.Identity)
			continue
		}
		models.MergeInto(stored, ev, stored.LastModifiedAt)
	}

	out := make([]*models.Event, 0, len(order))
	for _, identity := range order {
		out = append(out, byIdentity[identity])
	}
	return out
}
