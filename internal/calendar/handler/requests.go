package handler

import (
	"fmt"
	"time"

	"calsync/internal/calendar/models"
	"calsync/internal/calendar/session"
	"calsync/internal/calendar/timezone"
)

// RunSessionRequest is the wire form of one session submission. The
// page-retrieval collaborator posts the scraped rows together with the
// timezone signals it captured from the page.
type RunSessionRequest struct {
	JobName          string             `json:"job_name"`
	Cadence          string             `json:"cadence"`
	WindowDescriptor string             `json:"window_descriptor"`
	Records          []models.RawRecord `json:"records"`
	Signals          []SignalRequest    `json:"signals"`
}

// SignalRequest is one timezone observation from the page.
type SignalRequest struct {
	Method string `json:"method"`
	Value  string `json:"value"`
}

// Validate checks the request before it reaches the runner.
func (r RunSessionRequest) Validate() error {
	if r.JobName == "" {
		return fmt.Errorf("job_name is required")
	}
	if !models.Cadence(r.Cadence).IsValid() {
		return fmt.Errorf("cadence must be one of monthly, daily, realtime")
	}
	return nil
}

// ToSession converts the wire request to the runner's form.
func (r RunSessionRequest) ToSession() session.Request {
	signals := make([]timezone.Signal, 0, len(r.Signals))
	for _, s := range r.Signals {
		signals = append(signals, timezone.Signal{Method: s.Method, Value: s.Value})
	}
	return session.Request{
		JobName:          r.JobName,
		Cadence:          models.Cadence(r.Cadence),
		WindowDescriptor: r.WindowDescriptor,
		Records:          r.Records,
		Signals:          signals,
	}
}

// parseWindow reads the from/to query pair, defaulting to the next 7 days.
func parseWindow(fromRaw, toRaw string, now time.Time) (time.Time, time.Time, error) {
	from := now.UTC().Truncate(24 * time.Hour)
	to := from.Add(7 * 24 * time.Hour)

	if fromRaw != "" {
		parsed, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from %q: %w", fromRaw, err)
		}
		from = parsed.UTC()
	}
	if toRaw != "" {
		parsed, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to %q: %w", toRaw, err)
		}
		to = parsed.UTC()
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must be after from")
	}
	return from, to, nil
}
