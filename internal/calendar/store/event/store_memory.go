package event

import (
	"context"
	"sort"
	"sync"
	"time"

	"calsync/internal/calendar/models"
	"calsync/pkg/platform/sentinel"
)

// InMemoryStore keeps events in a mutex-guarded map. It backs unit tests and
// single-process deployments; production uses PostgresStore.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string]*models.Event
	clock  func() time.Time
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithClock sets the write-timestamp source for testability.
func WithClock(clock func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewInMemory creates an empty in-memory event store.
func NewInMemory(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		events: make(map[string]*models.Event),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) UpsertMerge(ctx context.Context, incoming *models.Event) (models.MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	stored, exists := s.events[incoming.Identity]
	if !exists {
		fresh := *incoming
		fresh.LastModifiedAt = now
		s.events[incoming.Identity] = &fresh
		return models.MergeResult{Outcome: models.MergeInserted}, nil
	}

	changed, corrections := models.MergeInto(stored, incoming, now)
	if !changed {
		return models.MergeResult{Outcome: models.MergeUnchanged}, nil
	}
	return models.MergeResult{Outcome: models.MergeUpdated, Corrections: corrections}, nil
}

func (s *InMemoryStore) GetByIdentity(ctx context.Context, identity string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.events[identity]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (s *InMemoryStore) ListScheduledBetween(ctx context.Context, from, to time.Time) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Event
	for _, stored := range s.events {
		if stored.ScheduledUTC.Before(from) || !stored.ScheduledUTC.Before(to) {
			continue
		}
		copied := *stored
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledUTC.Before(out[j].ScheduledUTC)
	})
	return out, nil
}

// Len reports the number of stored identities. Test helper.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
