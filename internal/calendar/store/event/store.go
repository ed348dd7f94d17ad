// Package event persists canonical calendar events keyed by their
// deduplication identity. Both implementations expose the same atomic
// insert-or-merge primitive so concurrent sessions racing on one identity
// converge without application-level locking.
package event

import (
	"context"
	"time"

	"calsync/internal/calendar/models"
)

// Store is the persistence port the reconciliation engine works against.
type Store interface {
	// UpsertMerge atomically inserts the event or merges it into the stored
	// row under the non-destructive policy. Losing a race on the identity
	// constraint is resolved inside this call, never surfaced.
	UpsertMerge(ctx context.Context, event *models.Event) (models.MergeResult, error)

	// GetByIdentity returns the stored event or sentinel.ErrNotFound.
	GetByIdentity(ctx context.Context, identity string) (*models.Event, error)

	// ListScheduledBetween returns events with scheduled_utc in [from, to),
	// ordered by scheduled_utc. Serves downstream range consumers.
	ListScheduledBetween(ctx context.Context, from, to time.Time) ([]*models.Event, error)
}
