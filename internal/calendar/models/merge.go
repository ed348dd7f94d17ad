package models

import (
	"fmt"
	"time"
)

// MergeOutcome classifies one insert-or-merge against the store.
type MergeOutcome string

const (
	MergeInserted  MergeOutcome = "inserted"
	MergeUpdated   MergeOutcome = "updated"
	MergeUnchanged MergeOutcome = "unchanged"
)

// MergeResult is returned by the store's atomic upsert primitive.
// Corrections carry field-level changes that need human review (schedule or
// title drift on an existing identity); they are surfaced, never dropped.
type MergeResult struct {
	Outcome     MergeOutcome
	Corrections []string
}

// MergeInto applies the non-destructive merge policy: incoming nil values
// never overwrite stored non-nil values, so a stale page that lost its
// observed column cannot wipe a captured release. Schedule- and
// title-derived differences are applied (the session is verified) but
// reported as corrections because an upstream revision and a parsing
// regression look identical at this layer.
//
// Returns whether anything changed. When it did, the write-audit fields
// (OriginScope, LastModifiedAt) are stamped from the incoming event.
func MergeInto(stored *Event, incoming *Event, now time.Time) (bool, []string) {
	changed := false
	var corrections []string

	if incoming.ObservedValue != nil && !equalStr(stored.ObservedValue, incoming.ObservedValue) {
		stored.ObservedValue = incoming.ObservedValue
		changed = true
	}
	if incoming.ObservedStatus != nil && !equalStatus(stored.ObservedStatus, incoming.ObservedStatus) {
		stored.ObservedStatus = incoming.ObservedStatus
		changed = true
	}
	if incoming.ForecastValue != nil && !equalStr(stored.ForecastValue, incoming.ForecastValue) {
		stored.ForecastValue = incoming.ForecastValue
		changed = true
	}
	if incoming.PriorValue != nil && !equalStr(stored.PriorValue, incoming.PriorValue) {
		stored.PriorValue = incoming.PriorValue
		changed = true
	}
	if incoming.Importance != ImportanceUnknown && incoming.Importance != stored.Importance {
		// Filling in an unknown classification is enrichment; reclassifying
		// a known one is a correction worth a human look.
		if stored.Importance != ImportanceUnknown {
			corrections = append(corrections, fmt.Sprintf(
				"importance %s -> %s", stored.Importance, incoming.Importance))
		}
		stored.Importance = incoming.Importance
		changed = true
	}

	if !incoming.ScheduledUTC.Equal(stored.ScheduledUTC) {
		corrections = append(corrections, fmt.Sprintf(
			"scheduled_utc %s -> %s (source_timezone %s)",
			stored.ScheduledUTC.UTC().Format(time.RFC3339),
			incoming.ScheduledUTC.UTC().Format(time.RFC3339),
			incoming.SourceTimezone,
		))
		stored.ScheduledUTC = incoming.ScheduledUTC
		stored.HasSpecificTime = incoming.HasSpecificTime
		stored.DisplayDate = incoming.DisplayDate
		stored.DisplayTime = incoming.DisplayTime
		changed = true
	}
	if incoming.Title != stored.Title {
		corrections = append(corrections, fmt.Sprintf(
			"title %q -> %q", stored.Title, incoming.Title))
		stored.Title = incoming.Title
		changed = true
	}

	if changed {
		stored.SourceTimezone = incoming.SourceTimezone
		stored.OriginScope = incoming.OriginScope
		stored.LastModifiedAt = now
	}
	return changed, corrections
}

func equalStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStatus(a, b *ObservedStatus) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
