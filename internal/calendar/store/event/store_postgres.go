package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"calsync/internal/calendar/models"
	"calsync/pkg/platform/sentinel"
)

// PostgresStore persists events in PostgreSQL. The unique constraint on
// identity plus ON CONFLICT upsert gives the atomic insert-or-merge the
// concurrency model requires; racing sessions never see a duplicate row and
// never need a lock.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed event store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// upsertQuery merges in SQL so the whole decision is one atomic statement.
// COALESCE implements the non-destructive policy (null incoming never wins),
// the DO UPDATE WHERE guard turns no-op merges into zero touched rows, and
// the existing CTE snapshots the pre-merge row so correction flags can be
// computed without a second round trip.
const upsertQuery = `
WITH existing AS (
	SELECT title, scheduled_utc, importance
	FROM calendar_events
	WHERE identity = $1
), upsert AS (
	INSERT INTO calendar_events (
		identity, title, currency, scheduled_utc, has_specific_time,
		display_date, display_time, source_timezone, importance,
		observed_value, observed_status, forecast_value, prior_value,
		origin_scope, last_modified_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
	ON CONFLICT (identity) DO UPDATE SET
		observed_value    = COALESCE(EXCLUDED.observed_value,  calendar_events.observed_value),
		observed_status   = COALESCE(EXCLUDED.observed_status, calendar_events.observed_status),
		forecast_value    = COALESCE(EXCLUDED.forecast_value,  calendar_events.forecast_value),
		prior_value       = COALESCE(EXCLUDED.prior_value,     calendar_events.prior_value),
		importance        = CASE WHEN EXCLUDED.importance <> 'unknown'
		                         THEN EXCLUDED.importance
		                         ELSE calendar_events.importance END,
		title             = EXCLUDED.title,
		scheduled_utc     = EXCLUDED.scheduled_utc,
		has_specific_time = EXCLUDED.has_specific_time,
		display_date      = EXCLUDED.display_date,
		display_time      = EXCLUDED.display_time,
		source_timezone   = EXCLUDED.source_timezone,
		origin_scope      = EXCLUDED.origin_scope,
		last_modified_at  = now()
	WHERE (
		COALESCE(EXCLUDED.observed_value,  calendar_events.observed_value)  IS DISTINCT FROM calendar_events.observed_value OR
		COALESCE(EXCLUDED.observed_status, calendar_events.observed_status) IS DISTINCT FROM calendar_events.observed_status OR
		COALESCE(EXCLUDED.forecast_value,  calendar_events.forecast_value)  IS DISTINCT FROM calendar_events.forecast_value OR
		COALESCE(EXCLUDED.prior_value,     calendar_events.prior_value)     IS DISTINCT FROM calendar_events.prior_value OR
		(EXCLUDED.importance <> 'unknown' AND EXCLUDED.importance IS DISTINCT FROM calendar_events.importance) OR
		EXCLUDED.title IS DISTINCT FROM calendar_events.title OR
		EXCLUDED.scheduled_utc IS DISTINCT FROM calendar_events.scheduled_utc
	)
	RETURNING (xmax = 0) AS inserted
)
SELECT
	(SELECT inserted FROM upsert)            AS inserted,
	EXISTS (SELECT 1 FROM upsert)            AS touched,
	(SELECT title FROM existing)             AS prev_title,
	(SELECT scheduled_utc FROM existing)     AS prev_scheduled,
	(SELECT importance FROM existing)        AS prev_importance
`

func (s *PostgresStore) UpsertMerge(ctx context.Context, incoming *models.Event) (models.MergeResult, error) {
	var (
		inserted       sql.NullBool
		touched        bool
		prevTitle      sql.NullString
		prevScheduled  sql.NullTime
		prevImportance sql.NullString
	)
	err := s.db.QueryRowContext(ctx, upsertQuery,
		incoming.Identity,
		incoming.Title,
		incoming.Currency,
		incoming.ScheduledUTC.UTC(),
		incoming.HasSpecificTime,
		incoming.DisplayDate,
		incoming.DisplayTime,
		incoming.SourceTimezone,
		string(incoming.Importance),
		nullString(incoming.ObservedValue),
		nullStatus(incoming.ObservedStatus),
		nullString(incoming.ForecastValue),
		nullString(incoming.PriorValue),
		string(incoming.OriginScope),
	).Scan(&inserted, &touched, &prevTitle, &prevScheduled, &prevImportance)
	if err != nil {
		return models.MergeResult{}, fmt.Errorf("upsert event %s: %w", incoming.Identity, classify(err))
	}

	if !touched {
		return models.MergeResult{Outcome: models.MergeUnchanged}, nil
	}
	if inserted.Valid && inserted.Bool {
		return models.MergeResult{Outcome: models.MergeInserted}, nil
	}

	// The existing snapshot and the upsert see the same statement snapshot,
	// so prev_* is only missing when a concurrent insert won the race; the
	// merge itself is still correct, just unflagged.
	var corrections []string
	if prevScheduled.Valid && !prevScheduled.Time.UTC().Equal(incoming.ScheduledUTC.UTC()) {
		corrections = append(corrections, fmt.Sprintf(
			"scheduled_utc %s -> %s (source_timezone %s)",
			prevScheduled.Time.UTC().Format(time.RFC3339),
			incoming.ScheduledUTC.UTC().Format(time.RFC3339),
			incoming.SourceTimezone,
		))
	}
	if prevTitle.Valid && prevTitle.String != incoming.Title {
		corrections = append(corrections, fmt.Sprintf(
			"title %q -> %q", prevTitle.String, incoming.Title))
	}
	if prevImportance.Valid &&
		prevImportance.String != string(models.ImportanceUnknown) &&
		incoming.Importance != models.ImportanceUnknown &&
		prevImportance.String != string(incoming.Importance) {
		corrections = append(corrections, fmt.Sprintf(
			"importance %s -> %s", prevImportance.String, incoming.Importance))
	}

	return models.MergeResult{Outcome: models.MergeUpdated, Corrections: corrections}, nil
}

const selectColumns = `
	identity, title, currency, scheduled_utc, has_specific_time,
	display_date, display_time, source_timezone, importance,
	observed_value, observed_status, forecast_value, prior_value,
	origin_scope, last_modified_at
`

func (s *PostgresStore) GetByIdentity(ctx context.Context, identity string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM calendar_events WHERE identity = $1`, identity)
	stored, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get event %s: %w", identity, classify(err))
	}
	return stored, nil
}

func (s *PostgresStore) ListScheduledBetween(ctx context.Context, from, to time.Time) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+`
		 FROM calendar_events
		 WHERE scheduled_utc >= $1 AND scheduled_utc < $2
		 ORDER BY scheduled_utc`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", classify(err))
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		stored, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", classify(err))
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		stored   models.Event
		observed sql.NullString
		status   sql.NullString
		forecast sql.NullString
		prior    sql.NullString
	)
	err := row.Scan(
		&stored.Identity, &stored.Title, &stored.Currency,
		&stored.ScheduledUTC, &stored.HasSpecificTime,
		&stored.DisplayDate, &stored.DisplayTime, &stored.SourceTimezone,
		&stored.Importance,
		&observed, &status, &forecast, &prior,
		&stored.OriginScope, &stored.LastModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	stored.ScheduledUTC = stored.ScheduledUTC.UTC()
	if observed.Valid {
		stored.ObservedValue = &observed.String
	}
	if status.Valid {
		st := models.ObservedStatus(status.String)
		stored.ObservedStatus = &st
	}
	if forecast.Valid {
		stored.ForecastValue = &forecast.String
	}
	if prior.Valid {
		stored.PriorValue = &prior.String
	}
	return &stored, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullStatus(value *models.ObservedStatus) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*value), Valid: true}
}

// classify maps driver errors onto sentinels so callers can pick a retry
// strategy without importing pq.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23": // integrity constraint violation
			return fmt.Errorf("%w: %s", sentinel.ErrConflict, pqErr.Message)
		case "08", "53", "57": // connection, resources, operator intervention
			return fmt.Errorf("%w: %s", sentinel.ErrUnavailable, pqErr.Message)
		}
	}
	return err
}
