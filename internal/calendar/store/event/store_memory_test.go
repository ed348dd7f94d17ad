package event

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"calsync/internal/calendar/models"
	"calsync/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	now   time.Time
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.now = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	s.store = NewInMemory(WithClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) event(title string, scheduled time.Time) *models.Event {
	return &models.Event{
		Identity:        models.EventIdentity(title, "USD", scheduled),
		Title:           title,
		Currency:        "USD",
		ScheduledUTC:    scheduled,
		HasSpecificTime: true,
		SourceTimezone:  "UTC",
		Importance:      models.ImportanceHigh,
		OriginScope:     models.CadenceMonthly,
	}
}

func (s *MemoryStoreSuite) TestInsertThenGet() {
	ev := s.event("Non-Farm Payrolls", time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC))

	result, err := s.store.UpsertMerge(s.ctx, ev)
	s.Require().NoError(err)
	s.Equal(models.MergeInserted, result.Outcome)

	stored, err := s.store.GetByIdentity(s.ctx, ev.Identity)
	s.Require().NoError(err)
	s.Equal(ev.Title, stored.Title)
	s.Equal(s.now, stored.LastModifiedAt)
}

func (s *MemoryStoreSuite) TestGetUnknownIdentity() {
	_, err := s.store.GetByIdentity(s.ctx, "deadbeefdeadbeef")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestReplayIsIdempotent() {
	ev := s.event("CPI y/y", time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC))

	first, err := s.store.UpsertMerge(s.ctx, ev)
	s.Require().NoError(err)
	s.Equal(models.MergeInserted, first.Outcome)

	second, err := s.store.UpsertMerge(s.ctx, ev)
	s.Require().NoError(err)
	s.Equal(models.MergeUnchanged, second.Outcome)
	s.Empty(second.Corrections)
	s.Equal(1, s.store.Len())
}

func (s *MemoryStoreSuite) TestObservedValueNeverRegresses() {
	scheduled := time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC)
	released := s.event("Non-Farm Payrolls", scheduled)
	observed := "227K"
	released.ObservedValue = &observed

	_, err := s.store.UpsertMerge(s.ctx, released)
	s.Require().NoError(err)

	// A later scrape of a stale page has no observed value.
	stale := s.event("Non-Farm Payrolls", scheduled)
	result, err := s.store.UpsertMerge(s.ctx, stale)
	s.Require().NoError(err)
	s.Equal(models.MergeUnchanged, result.Outcome)

	stored, err := s.store.GetByIdentity(s.ctx, released.Identity)
	s.Require().NoError(err)
	s.Require().NotNil(stored.ObservedValue)
	s.Equal("227K", *stored.ObservedValue)
}

func (s *MemoryStoreSuite) TestSessionOrderIsCommutative() {
	scheduled := time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC)
	observed := "227K"
	forecast := "220K"

	monthly := s.event("Non-Farm Payrolls", scheduled)
	monthly.ForecastValue = &forecast
	realtime := s.event("Non-Farm Payrolls", scheduled)
	realtime.ObservedValue = &observed
	realtime.OriginScope = models.CadenceRealtime

	// Order one.
	a := NewInMemory(WithClock(func() time.Time { return s.now }))
	_, err := a.UpsertMerge(s.ctx, copyOf(monthly))
	s.Require().NoError(err)
	_, err = a.UpsertMerge(s.ctx, copyOf(realtime))
	s.Require().NoError(err)

	// Order two.
	b := NewInMemory(WithClock(func() time.Time { return s.now }))
	_, err = b.UpsertMerge(s.ctx, copyOf(realtime))
	s.Require().NoError(err)
	_, err = b.UpsertMerge(s.ctx, copyOf(monthly))
	s.Require().NoError(err)

	fromA, err := a.GetByIdentity(s.ctx, monthly.Identity)
	s.Require().NoError(err)
	fromB, err := b.GetByIdentity(s.ctx, monthly.Identity)
	s.Require().NoError(err)

	s.Require().NotNil(fromA.ObservedValue)
	s.Require().NotNil(fromB.ObservedValue)
	s.Equal(*fromA.ObservedValue, *fromB.ObservedValue)
	s.Require().NotNil(fromA.ForecastValue)
	s.Require().NotNil(fromB.ForecastValue)
	s.Equal(*fromA.ForecastValue, *fromB.ForecastValue)
}

func (s *MemoryStoreSuite) TestScheduleChangeIsFlagged() {
	scheduled := time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC)
	original := s.event("Rate Decision", scheduled)
	_, err := s.store.UpsertMerge(s.ctx, original)
	s.Require().NoError(err)

	revised := s.event("Rate Decision", scheduled)
	revised.Identity = original.Identity
	revised.ScheduledUTC = scheduled.Add(time.Hour)

	result, err := s.store.UpsertMerge(s.ctx, revised)
	s.Require().NoError(err)
	s.Equal(models.MergeUpdated, result.Outcome)
	s.Require().Len(result.Corrections, 1)
	s.Contains(result.Corrections[0], "scheduled_utc")
}

func (s *MemoryStoreSuite) TestListScheduledBetween() {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	early := s.event("Early", day.Add(8*time.Hour))
	late := s.event("Late", day.Add(20*time.Hour))
	nextDay := s.event("Next", day.Add(26*time.Hour))

	for _, ev := range []*models.Event{late, nextDay, early} {
		_, err := s.store.UpsertMerge(s.ctx, ev)
		s.Require().NoError(err)
	}

	got, err := s.store.ListScheduledBetween(s.ctx, day, day.Add(24*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("Early", got[0].Title)
	s.Equal("Late", got[1].Title)
}

func copyOf(ev *models.Event) *models.Event {
	copied := *ev
	return &copied
}
