// Package handler wires the ingestion endpoints to the session runner and
// the read-side stores.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"calsync/internal/calendar/models"
	"calsync/internal/calendar/session"
	"calsync/internal/calendar/store/event"
	"calsync/internal/calendar/store/jobrun"
	"calsync/pkg/platform/httputil"
)

// SessionRunner executes one scraping session end to end.
type SessionRunner interface {
	Run(ctx context.Context, req session.Request) (session.Result, error)
}

// Handler serves the calendar ingestion API.
type Handler struct {
	runner SessionRunner
	events event.Store
	runs   jobrun.Store
	logger *slog.Logger
	clock  func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithClock sets the time source for testability.
func WithClock(clock func() time.Time) Option {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// New constructs a Handler.
func New(runner SessionRunner, events event.Store, runs jobrun.Store, opts ...Option) *Handler {
	h := &Handler{
		runner: runner,
		events: events,
		runs:   runs,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the ingestion endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/sessions", h.HandleRunSession)
	r.Get("/v1/events", h.HandleListEvents)
	r.Get("/v1/events/{identity}", h.HandleGetEvent)
	r.Get("/v1/runs", h.HandleListRuns)
	r.Get("/v1/runs/{id}", h.HandleGetRun)
}

// HandleRunSession handles POST /v1/sessions.
func (h *Handler) HandleRunSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := h.clock()

	req, err := httputil.Decode[RunSessionRequest](r)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.runner.Run(ctx, req.ToSession())
	if err != nil {
		if errors.Is(err, session.ErrTimezoneUnverified) {
			// The run aborted before touching any event; the audit record
			// carries the reasons. 422 tells the scheduler not to retry
			// blindly.
			httputil.WriteJSON(w, http.StatusUnprocessableEntity, FromResult(result))
			return
		}
		h.logger.ErrorContext(ctx, "session failed",
			"job", req.JobName,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "session accepted",
		"job", req.JobName,
		"run_id", result.RunID,
		"duration_ms", h.clock().Sub(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromResult(result))
}

// HandleListEvents handles GET /v1/events.
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	from, to, err := parseWindow(r.URL.Query().Get("from"), r.URL.Query().Get("to"), h.clock())
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := h.events.ListScheduledBetween(ctx, from, to)
	if err != nil {
		h.logger.ErrorContext(ctx, "list events failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	if events == nil {
		events = []*models.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListEventsResponse{Events: events})
}

// HandleGetEvent handles GET /v1/events/{identity}.
func (h *Handler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stored, err := h.events.GetByIdentity(ctx, chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stored)
}

// HandleListRuns handles GET /v1/runs.
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	runs, err := h.runs.ListRecent(ctx, r.URL.Query().Get("job"), limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "list runs failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	if runs == nil {
		runs = []*models.JobRun{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListRunsResponse{Runs: runs})
}

// HandleGetRun handles GET /v1/runs/{id}.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteBadRequest(w, "invalid run id")
		return
	}

	run, err := h.runs.GetByID(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}
