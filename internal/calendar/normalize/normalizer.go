package normalize

import (
	"fmt"
	"strings"
	"time"

	"calsync/internal/calendar/models"
	"calsync/internal/calendar/timezone"
)

// Normalizer maps raw scraped records into canonical Events for one verified
// session. It is pure: no clock reads, no I/O, no shared state.
type Normalizer struct {
	policy timezone.Policy
}

// New builds a normalizer over the deployment's timezone policy. The policy
// is only consulted to resolve the verified identity's conversion rules.
func New(policy timezone.Policy) *Normalizer {
	return &Normalizer{policy: policy}
}

// Batch holds the outcome of normalizing one session's records. Failed
// records travel alongside the events so the session can count and log them
// without aborting.
type Batch struct {
	Events []*models.Event
	Errors []*models.NormalizationError
}

// NormalizeAll maps every record independently. Ordering of the output
// follows the input; per-record failures never stop the batch.
func (n *Normalizer) NormalizeAll(records []models.RawRecord, verified timezone.VerificationResult) (Batch, error) {
	if !verified.OK {
		return Batch{}, fmt.Errorf("refusing to normalize an unverified session")
	}
	loc, err := n.policy.Location(verified.Timezone)
	if err != nil {
		return Batch{}, fmt.Errorf("resolve verified timezone: %w", err)
	}

	var batch Batch
	for _, record := range records {
		event, nerr := n.normalize(record, verified.Timezone, loc)
		if nerr != nil {
			batch.Errors = append(batch.Errors, nerr)
			continue
		}
		batch.Events = append(batch.Events, event)
	}
	return batch, nil
}

func (n *Normalizer) normalize(record models.RawRecord, tzIdentity string, loc *time.Location) (*models.Event, *models.NormalizationError) {
	title := strings.TrimSpace(record.Title)
	currency := strings.ToUpper(strings.TrimSpace(record.Currency))
	if title == "" || currency == "" {
		return nil, &models.NormalizationError{
			Reason: models.ReasonMissingRequiredField,
			Detail: "title and currency are required",
			Record: record,
		}
	}

	displayDate, err := time.Parse("2006-01-02", strings.TrimSpace(record.DisplayDate))
	if err != nil {
		return nil, &models.NormalizationError{
			Reason: models.ReasonUnparseableDate,
			Detail: fmt.Sprintf("display date %q is not YYYY-MM-DD", record.DisplayDate),
			Record: record,
		}
	}

	hour, minute, timed, ok := parseClock(record.DisplayTime)
	if !ok {
		return nil, &models.NormalizationError{
			Reason: models.ReasonUnparseableTime,
			Detail: fmt.Sprintf("display time %q matches no known shape", record.DisplayTime),
			Record: record,
		}
	}

	var scheduled time.Time
	if timed {
		scheduled = toUTC(displayDate, hour, minute, loc)
	} else {
		// Untimed rows pin to start of the display day in UTC so range
		// queries still find them; HasSpecificTime marks the sentinel.
		scheduled = time.Date(displayDate.Year(), displayDate.Month(), displayDate.Day(), 0, 0, 0, 0, time.UTC)
	}

	observed := cleanDisplay(record.ObservedDisplay)
	prior := cleanDisplay(record.PriorDisplay)

	return &models.Event{
		Identity:        models.EventIdentity(title, currency, scheduled),
		Title:           title,
		Currency:        currency,
		ScheduledUTC:    scheduled,
		HasSpecificTime: timed,
		DisplayDate:     strings.TrimSpace(record.DisplayDate),
		DisplayTime:     strings.TrimSpace(record.DisplayTime),
		SourceTimezone:  tzIdentity,
		Importance:      ClassifyImportance(record.ImportanceLabel),
		ObservedValue:   observed,
		ObservedStatus:  deriveObservedStatus(observed, prior),
		ForecastValue:   cleanDisplay(record.ForecastDisplay),
		PriorValue:      prior,
	}, nil
}
