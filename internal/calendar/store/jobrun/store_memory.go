package jobrun

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"calsync/internal/calendar/models"
	"calsync/pkg/platform/sentinel"
)

// InMemoryStore keeps run records in a mutex-guarded map. Backs unit tests
// and single-process deployments.
type InMemoryStore struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]*models.JobRun
	clock func() time.Time
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithClock sets the timestamp source for testability.
func WithClock(clock func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewInMemory creates an empty in-memory run store.
func NewInMemory(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		runs:  make(map[uuid.UUID]*models.JobRun),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Begin(ctx context.Context, run *models.JobRun) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *run
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.StartedAt.IsZero() {
		stored.StartedAt = s.clock().UTC()
	}
	stored.Status = models.RunStatusRunning
	stored.FinishedAt = nil
	s.runs[stored.ID] = &stored
	return stored.ID, nil
}

func (s *InMemoryStore) Finalize(ctx context.Context, id uuid.UUID, counts models.SessionCounts, status models.RunStatus, detail []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Status.Terminal() {
		return sentinel.ErrInvalidState
	}
	if !status.Terminal() {
		return sentinel.ErrInvalidState
	}

	now := s.clock().UTC()
	stored.Counts = counts
	stored.Status = status
	stored.FinishedAt = &now
	stored.FailureDetail = append([]string(nil), detail...)
	return nil
}

func (s *InMemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*models.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.runs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *stored
	copied.FailureDetail = append([]string(nil), stored.FailureDetail...)
	return &copied, nil
}

func (s *InMemoryStore) ListRecent(ctx context.Context, jobName string, limit int) ([]*models.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.JobRun
	for _, stored := range s.runs {
		if jobName != "" && stored.JobName != jobName {
			continue
		}
		copied := *stored
		copied.FailureDetail = append([]string(nil), stored.FailureDetail...)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
