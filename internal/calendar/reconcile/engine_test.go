package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"calsync/internal/calendar/models"
	"calsync/internal/calendar/store/event"
	"calsync/pkg/platform/sentinel"
)

type EngineSuite struct {
	suite.Suite
	store  *event.InMemoryStore
	engine *Engine
	ctx    context.Context
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.store = event.NewInMemory()
	s.engine = New(s.store, WithConcurrency(4))
	s.ctx = context.Background()
}

func makeEvent(title string, scheduled time.Time, mutate func(*models.Event)) *models.Event {
	ev := &models.Event{
		Identity:        models.EventIdentity(title, "USD", scheduled),
		Title:           title,
		Currency:        "USD",
		ScheduledUTC:    scheduled,
		HasSpecificTime: true,
		SourceTimezone:  "UTC",
		Importance:      models.ImportanceMedium,
		OriginScope:     models.CadenceDaily,
	}
	if mutate != nil {
		mutate(ev)
	}
	return ev
}

func (s *EngineSuite) TestFreshBatchInsertsEverything() {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	batch := []*models.Event{
		makeEvent("CPI y/y", day.Add(8*time.Hour), nil),
		makeEvent("Retail Sales", day.Add(12*time.Hour), nil),
		makeEvent("Rate Decision", day.Add(18*time.Hour), nil),
	}

	result, err := s.engine.Reconcile(s.ctx, batch)
	s.Require().NoError(err)
	s.Equal(3, result.Counts.Seen)
	s.Equal(3, result.Counts.Inserted)
	s.Zero(result.Counts.Updated)
	s.Zero(result.Counts.Unchanged)
	s.Empty(result.Corrections)
	s.Equal(3, s.store.Len())
}

func (s *EngineSuite) TestReplayIsIdempotent() {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	batch := []*models.Event{
		makeEvent("CPI y/y", day.Add(8*time.Hour), nil),
		makeEvent("Retail Sales", day.Add(12*time.Hour), nil),
	}

	_, err := s.engine.Reconcile(s.ctx, batch)
	s.Require().NoError(err)

	replay, err := s.engine.Reconcile(s.ctx, batch)
	s.Require().NoError(err)
	s.Equal(2, replay.Counts.Unchanged)
	s.Zero(replay.Counts.Inserted)
	s.Zero(replay.Counts.Updated)
	s.Equal(2, s.store.Len())
}

func (s *EngineSuite) TestInBatchDuplicatesCollapse() {
	scheduled := time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC)
	observed := "227K"

	// The same release appears twice in one scrape: once without and once
	// with the observed value. One row must come out, holding the value.
	batch := []*models.Event{
		makeEvent("Non-Farm Payrolls", scheduled, nil),
		makeEvent("Non-Farm Payrolls", scheduled, func(ev *models.Event) {
			ev.ObservedValue = &observed
		}),
	}

	result, err := s.engine.Reconcile(s.ctx, batch)
	s.Require().NoError(err)
	s.Equal(2, result.Counts.Seen)
	s.Equal(1, result.Counts.Inserted)
	s.Equal(1, s.store.Len())

	stored, err := s.store.GetByIdentity(s.ctx, batch[0].Identity)
	s.Require().NoError(err)
	s.Require().NotNil(stored.ObservedValue)
	s.Equal("227K", *stored.ObservedValue)
}

func (s *EngineSuite) TestCorrectionsAreSurfaced() {
	scheduled := time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC)
	original := makeEvent("Rate Decision", scheduled, nil)
	_, err := s.engine.Reconcile(s.ctx, []*models.Event{original})
	s.Require().NoError(err)

	revised := makeEvent("Rate Decision", scheduled, func(ev *models.Event) {
		ev.ScheduledUTC = scheduled.Add(time.Hour)
		ev.Identity = original.Identity
	})

	result, err := s.engine.Reconcile(s.ctx, []*models.Event{revised})
	s.Require().NoError(err)
	s.Equal(1, result.Counts.Updated)
	s.Require().Len(result.Corrections, 1)
	s.Equal(original.Identity, result.Corrections[0].Identity)
	s.Contains(result.Corrections[0].Detail, "scheduled_utc")
}

// flakyStore fails a fixed number of times before delegating.
type flakyStore struct {
	event.Store
	mu       sync.Mutex
	failures int
	attempts int
}

func (f *flakyStore) UpsertMerge(ctx context.Context, ev *models.Event) (models.MergeResult, error) {
	f.mu.Lock()
	f.attempts++
	shouldFail := f.failures > 0
	if shouldFail {
		f.failures--
	}
	f.mu.Unlock()

	if shouldFail {
		return models.MergeResult{}, sentinel.ErrUnavailable
	}
	return f.Store.UpsertMerge(ctx, ev)
}

func TestReconcileRetriesTransientOutages(t *testing.T) {
	inner := event.NewInMemory()
	flaky := &flakyStore{Store: inner, failures: 2}
	engine := New(flaky, WithConcurrency(1))

	ev := makeEvent("CPI y/y", time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC), nil)
	result, err := engine.Reconcile(context.Background(), []*models.Event{ev})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts.Inserted)
	assert.Equal(t, 3, flaky.attempts)
}

func TestExhaustedRetriesRejectTheRecord(t *testing.T) {
	flaky := &flakyStore{Store: event.NewInMemory(), failures: 10}
	engine := New(flaky, WithConcurrency(1))

	ev := makeEvent("CPI y/y", time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC), nil)
	result, err := engine.Reconcile(context.Background(), []*models.Event{ev})
	require.NoError(t, err)
	assert.Zero(t, result.Counts.Inserted)
	assert.Equal(t, 1, result.Counts.Rejected)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], ev.Identity)
	assert.Equal(t, 4, flaky.attempts)
}

// unreachableIdentityStore refuses one identity and delegates the rest.
type unreachableIdentityStore struct {
	event.Store
	identity string
}

func (u *unreachableIdentityStore) UpsertMerge(ctx context.Context, ev *models.Event) (models.MergeResult, error) {
	if ev.Identity == u.identity {
		return models.MergeResult{}, sentinel.ErrUnavailable
	}
	return u.Store.UpsertMerge(ctx, ev)
}

func TestOneUnavailableRecordDoesNotAbortTheBatch(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	stubborn := makeEvent("Retail Sales", day.Add(12*time.Hour), nil)
	healthy := makeEvent("CPI y/y", day.Add(8*time.Hour), nil)

	inner := event.NewInMemory()
	engine := New(&unreachableIdentityStore{Store: inner, identity: stubborn.Identity},
		WithConcurrency(2))

	result, err := engine.Reconcile(context.Background(), []*models.Event{stubborn, healthy})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts.Inserted)
	assert.Equal(t, 1, result.Counts.Rejected)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], stubborn.Identity)
	assert.Equal(t, 1, inner.Len())

	stored, err := inner.GetByIdentity(context.Background(), healthy.Identity)
	require.NoError(t, err)
	assert.Equal(t, "CPI y/y", stored.Title)
}

// brokenStore always fails with a non-retryable error.
type brokenStore struct {
	event.Store
}

func (b *brokenStore) UpsertMerge(context.Context, *models.Event) (models.MergeResult, error) {
	return models.MergeResult{}, errors.New("constraint violated")
}

func TestReconcilePermanentErrorFailsFast(t *testing.T) {
	engine := New(&brokenStore{}, WithConcurrency(1))

	ev := makeEvent("CPI y/y", time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC), nil)
	_, err := engine.Reconcile(context.Background(), []*models.Event{ev})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint violated")
}
