package jobrun

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"calsync/internal/calendar/models"
	"calsync/pkg/platform/sentinel"
)

// PostgresStore persists run records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed run store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Begin(ctx context.Context, run *models.JobRun) (uuid.UUID, error) {
	id := run.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, job_name, cadence, window_descriptor, started_at, status)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()), 'running')`,
		id, run.JobName, string(run.Cadence), run.WindowDescriptor,
		nullTime(run.StartedAt),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin run %s: %w", run.JobName, classify(err))
	}
	return id, nil
}

// Finalize closes the run. The WHERE status = 'running' guard makes finalize
// a compare-and-swap: a second finalize matches zero rows and is reported as
// ErrInvalidState instead of silently rewriting a closed audit record.
func (s *PostgresStore) Finalize(ctx context.Context, id uuid.UUID, counts models.SessionCounts, status models.RunStatus, detail []string) error {
	if !status.Terminal() {
		return sentinel.ErrInvalidState
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET
			finished_at       = now(),
			status            = $2,
			records_seen      = $3,
			records_inserted  = $4,
			records_updated   = $5,
			records_unchanged = $6,
			records_rejected  = $7,
			failure_detail    = $8
		WHERE id = $1 AND status = 'running'`,
		id, string(status),
		counts.Seen, counts.Inserted, counts.Updated, counts.Unchanged, counts.Rejected,
		pq.Array(detail),
	)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", id, classify(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", id, err)
	}
	if affected == 0 {
		if _, err := s.GetByID(ctx, id); errors.Is(err, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

const selectColumns = `
	id, job_name, cadence, window_descriptor, started_at, finished_at, status,
	records_seen, records_inserted, records_updated, records_unchanged,
	records_rejected, failure_detail
`

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*models.JobRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM sync_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get run %s: %w", id, classify(err))
	}
	return run, nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, jobName string, limit int) ([]*models.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM sync_runs
		WHERE ($1 = '' OR job_name = $1)
		ORDER BY started_at DESC
		LIMIT $2`, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", classify(err))
	}
	defer rows.Close()

	var out []*models.JobRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", classify(err))
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.JobRun, error) {
	var (
		run      models.JobRun
		finished sql.NullTime
		detail   pq.StringArray
	)
	err := row.Scan(
		&run.ID, &run.JobName, &run.Cadence, &run.WindowDescriptor,
		&run.StartedAt, &finished, &run.Status,
		&run.Counts.Seen, &run.Counts.Inserted, &run.Counts.Updated,
		&run.Counts.Unchanged, &run.Counts.Rejected,
		&detail,
	)
	if err != nil {
		return nil, err
	}
	run.StartedAt = run.StartedAt.UTC()
	if finished.Valid {
		t := finished.Time.UTC()
		run.FinishedAt = &t
	}
	run.FailureDetail = []string(detail)
	return &run, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23":
			return fmt.Errorf("%w: %s", sentinel.ErrConflict, pqErr.Message)
		case "08", "53", "57":
			return fmt.Errorf("%w: %s", sentinel.ErrUnavailable, pqErr.Message)
		}
	}
	return err
}
