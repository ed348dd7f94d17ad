// Package jobrun persists the audit trail of scraping sessions. Every
// session gets exactly one row, opened before any event processing and
// finalized exactly once on every path, aborts included.
package jobrun

import (
	"context"

	"github.com/google/uuid"

	"calsync/internal/calendar/models"
)

// Store is the audit-log port used by the session runner.
type Store interface {
	// Begin records a running session and returns its run ID.
	Begin(ctx context.Context, run *models.JobRun) (uuid.UUID, error)

	// Finalize closes the run with its counts and terminal status. A run
	// that is already terminal returns sentinel.ErrInvalidState; finalized
	// rows are never mutated again.
	Finalize(ctx context.Context, id uuid.UUID, counts models.SessionCounts, status models.RunStatus, detail []string) error

	// GetByID returns the run or sentinel.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.JobRun, error)

	// ListRecent returns the most recently started runs, newest first,
	// optionally filtered by job name.
	ListRecent(ctx context.Context, jobName string, limit int) ([]*models.JobRun, error)
}
