// Package session runs one scraping session end to end: open the audit
// record, verify the source timezone, normalize the raw rows, reconcile
// them into the store, and finalize the audit record on every path.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"calsync/internal/calendar/metrics"
	"calsync/internal/calendar/models"
	"calsync/internal/calendar/normalize"
	"calsync/internal/calendar/reconcile"
	"calsync/internal/calendar/store/jobrun"
	"calsync/internal/calendar/store/snapshot"
	"calsync/internal/calendar/timezone"
	"calsync/internal/review"
)

// ErrTimezoneUnverified aborts a session before any event is touched. The
// page's timezone signals were missing, disallowed, or disagreed, so every
// derived timestamp would be suspect.
var ErrTimezoneUnverified = errors.New("source timezone unverified")

// Request describes one scraping session.
type Request struct {
	JobName          string
	Cadence          models.Cadence
	WindowDescriptor string
	Records          []models.RawRecord
	Signals          []timezone.Signal
}

// Result summarizes a finished session.
type Result struct {
	RunID       uuid.UUID
	Status      models.RunStatus
	Counts      models.SessionCounts
	Corrections []reconcile.Correction
	Rejections  []*models.NormalizationError
}

// Runner executes sessions. All collaborators are fixed at construction;
// Run is safe for concurrent use.
type Runner struct {
	verifier  *timezone.Verifier
	normalize *normalize.Normalizer
	engine    *reconcile.Engine
	runs      jobrun.Store
	snapshots *snapshot.Cache
	reviews   review.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	clock     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithSnapshotCache enables the latest-observed write-through.
func WithSnapshotCache(cache *snapshot.Cache) Option {
	return func(r *Runner) {
		r.snapshots = cache
	}
}

// WithReviewPublisher routes correction flags to the review queue.
func WithReviewPublisher(p review.Publisher) Option {
	return func(r *Runner) {
		if p != nil {
			r.reviews = p
		}
	}
}

// WithClock sets the time source for testability.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// New constructs a Runner.
func New(verifier *timezone.Verifier, normalizer *normalize.Normalizer, engine *reconcile.Engine, runs jobrun.Store, opts ...Option) *Runner {
	r := &Runner{
		verifier:  verifier,
		normalize: normalizer,
		engine:    engine,
		runs:      runs,
		reviews:   review.Noop{},
		logger:    slog.Default(),
		tracer:    otel.Tracer("calsync/session"),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one session. Record-local problems (unparseable rows, merge
// corrections) are reported inside the Result, never as an error. The error
// return means the session as a whole did not complete: the timezone gate
// failed, the store was unreachable, or the audit record could not be
// written.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	start := r.clock()
	ctx, span := r.tracer.Start(ctx, "session.Run", trace.WithAttributes(
		attribute.String("job.name", req.JobName),
		attribute.String("job.cadence", string(req.Cadence)),
		attribute.Int("records.seen", len(req.Records)),
	))
	defer span.End()

	if !req.Cadence.IsValid() {
		return Result{}, fmt.Errorf("run session %s: invalid cadence %q", req.JobName, req.Cadence)
	}

	runID, err := r.runs.Begin(ctx, &models.JobRun{
		JobName:          req.JobName,
		Cadence:          req.Cadence,
		WindowDescriptor: req.WindowDescriptor,
		StartedAt:        start.UTC(),
	})
	if err != nil {
		span.SetStatus(codes.Error, "audit begin failed")
		return Result{}, fmt.Errorf("run session %s: begin audit: %w", req.JobName, err)
	}

	logger := r.logger.With("run_id", runID, "job", req.JobName)
	counts := models.SessionCounts{Seen: len(req.Records)}

	verified := r.verifier.Verify(req.Signals)
	if !verified.OK {
		r.metrics.IncrementVerificationFailure()
		logger.Error("timezone verification failed, aborting session",
			"reasons", verified.Reasons)
		r.finalize(ctx, logger, runID, counts, models.RunStatusAborted, verified.Reasons)
		r.observeSession(req.JobName, string(models.RunStatusAborted), start)
		span.SetStatus(codes.Error, "timezone unverified")
		return Result{RunID: runID, Status: models.RunStatusAborted, Counts: counts},
			fmt.Errorf("run session %s: %w: %v", req.JobName, ErrTimezoneUnverified, verified.Reasons)
	}
	span.SetAttributes(attribute.String("source.timezone", verified.Timezone))

	batch, err := r.normalize.NormalizeAll(req.Records, verified)
	if err != nil {
		r.finalize(ctx, logger, runID, counts, models.RunStatusFailed, []string{err.Error()})
		r.observeSession(req.JobName, string(models.RunStatusFailed), start)
		span.SetStatus(codes.Error, "normalize failed")
		return Result{RunID: runID, Status: models.RunStatusFailed, Counts: counts},
			fmt.Errorf("run session %s: normalize: %w", req.JobName, err)
	}

	for _, ev := range batch.Events {
		ev.OriginScope = req.Cadence
	}

	counts.Rejected = len(batch.Errors)
	var detail []string
	for _, rejection := range batch.Errors {
		r.metrics.IncrementRejection(string(rejection.Reason))
		logger.Warn("record rejected", "reason", rejection.Reason, "detail", rejection.Error())
		detail = append(detail, rejection.Error())
	}

	merged, err := r.engine.Reconcile(ctx, batch.Events)
	if err != nil {
		r.finalize(ctx, logger, runID, counts, models.RunStatusFailed, append(detail, err.Error()))
		r.observeSession(req.JobName, string(models.RunStatusFailed), start)
		span.SetStatus(codes.Error, "reconcile failed")
		return Result{RunID: runID, Status: models.RunStatusFailed, Counts: counts},
			fmt.Errorf("run session %s: %w", req.JobName, err)
	}
	counts.Inserted = merged.Counts.Inserted
	counts.Updated = merged.Counts.Updated
	counts.Unchanged = merged.Counts.Unchanged
	counts.Rejected += merged.Counts.Rejected
	detail = append(detail, merged.Failures...)

	r.snapshots.Store(ctx, batch.Events)
	if len(merged.Corrections) > 0 {
		if err := r.reviews.Publish(ctx, runID, req.JobName, merged.Corrections); err != nil {
			// The corrections are already persisted and logged; losing the
			// queue notification is not worth failing the session.
			logger.Warn("review publish failed", "error", err)
		}
	}

	r.finalize(ctx, logger, runID, counts, models.RunStatusSucceeded, detail)
	r.observeSession(req.JobName, string(models.RunStatusSucceeded), start)
	span.SetAttributes(
		attribute.Int("records.inserted", counts.Inserted),
		attribute.Int("records.updated", counts.Updated),
		attribute.Int("records.unchanged", counts.Unchanged),
		attribute.Int("records.rejected", counts.Rejected),
		attribute.Int("corrections", len(merged.Corrections)),
	)

	logger.Info("session complete",
		"seen", counts.Seen,
		"inserted", counts.Inserted,
		"updated", counts.Updated,
		"unchanged", counts.Unchanged,
		"rejected", counts.Rejected,
		"corrections", len(merged.Corrections),
	)
	return Result{
		RunID:       runID,
		Status:      models.RunStatusSucceeded,
		Counts:      counts,
		Corrections: merged.Corrections,
		Rejections:  batch.Errors,
	}, nil
}

// finalize closes the audit record. A failure here is logged loudly; the
// session outcome is already decided and must be returned to the caller.
func (r *Runner) finalize(ctx context.Context, logger *slog.Logger, runID uuid.UUID, counts models.SessionCounts, status models.RunStatus, detail []string) {
	if err := r.runs.Finalize(ctx, runID, counts, status, detail); err != nil {
		logger.Error("finalize audit record failed", "status", status, "error", err)
	}
}

func (r *Runner) observeSession(job, status string, start time.Time) {
	r.metrics.IncrementSession(job, status)
	r.metrics.ObserveSessionLatency(job, r.clock().Sub(start))
}
