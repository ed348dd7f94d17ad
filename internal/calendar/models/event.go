package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Cadence is the scheduling tier a scraping session belongs to.
type Cadence string

const (
	CadenceMonthly  Cadence = "monthly"
	CadenceDaily    Cadence = "daily"
	CadenceRealtime Cadence = "realtime"
)

func (c Cadence) IsValid() bool {
	switch c {
	case CadenceMonthly, CadenceDaily, CadenceRealtime:
		return true
	}
	return false
}

// Importance is the coarse impact classification of a calendar event.
type Importance string

const (
	ImportanceHigh    Importance = "high"
	ImportanceMedium  Importance = "medium"
	ImportanceLow     Importance = "low"
	ImportanceUnknown Importance = "unknown"
)

// ObservedStatus qualifies a released observed value against the prior value.
type ObservedStatus string

const (
	ObservedBetter    ObservedStatus = "better"
	ObservedWorse     ObservedStatus = "worse"
	ObservedUnchanged ObservedStatus = "unchanged"
)

// RawRecord is one scraped calendar row as handed over by the page-retrieval
// collaborator. All fields are display strings; nothing is trusted yet.
type RawRecord struct {
	DisplayDate     string `json:"display_date"` // YYYY-MM-DD
	DisplayTime     string `json:"display_time"` // "8:30am", "13:30", "All Day", ...
	Currency        string `json:"currency"`
	ImportanceLabel string `json:"importance_label"`
	Title           string `json:"title"`
	ObservedDisplay string `json:"observed_display"`
	ForecastDisplay string `json:"forecast_display"`
	PriorDisplay    string `json:"prior_display"`
}

// Event is the canonical, persisted form of one real-world scheduled release.
//
// Invariants:
//   - Identity is unique across all sessions and cadences
//   - ObservedValue only ever transitions nil → non-nil, never back
//   - ScheduledUTC is a real instant; all-day and tentative rows carry the
//     start-of-day sentinel with HasSpecificTime=false
type Event struct {
	Identity        string    `json:"identity"`
	Title           string    `json:"title"`
	Currency        string    `json:"currency"`
	ScheduledUTC    time.Time `json:"scheduled_utc"`
	HasSpecificTime bool      `json:"has_specific_time"`

	// DisplayDate and DisplayTime are the raw page values, kept for audit
	// alongside the typed ScheduledUTC.
	DisplayDate    string          `json:"display_date"`
	DisplayTime    string          `json:"display_time"`
	SourceTimezone string          `json:"source_timezone"`
	Importance     Importance      `json:"importance"`
	ObservedValue  *string         `json:"observed_value"`
	ObservedStatus *ObservedStatus `json:"observed_status"`
	ForecastValue  *string         `json:"forecast_value"`
	PriorValue     *string         `json:"prior_value"`
	OriginScope    Cadence         `json:"origin_scope"`
	LastModifiedAt time.Time       `json:"last_modified_at"`
}

// EventIdentity derives the deduplication key for one real-world event:
// the same title, currency, and UTC calendar date must always map to the
// same identity no matter which session scraped it.
func EventIdentity(title, currency string, utcDate time.Time) string {
	content := fmt.Sprintf("%s|%s|%s",
		NormalizeTitle(title),
		strings.ToUpper(strings.TrimSpace(currency)),
		utcDate.UTC().Format("2006-01-02"),
	)
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// NormalizeTitle strips the cosmetic variance repeated scrapes introduce
// (case, padding, doubled spaces) so identity hashing stays stable.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(title))), " ")
}

// NormalizationReason tags why a single raw record could not be normalized.
type NormalizationReason string

const (
	ReasonUnparseableTime      NormalizationReason = "unparseable_time"
	ReasonUnparseableDate      NormalizationReason = "unparseable_date"
	ReasonMissingRequiredField NormalizationReason = "missing_required_field"
)

// NormalizationError is a record-local failure; it never aborts the session.
type NormalizationError struct {
	Reason NormalizationReason
	Detail string
	Record RawRecord
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize record %q: %s (%s)", e.Record.Title, e.Reason, e.Detail)
}
