package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of one scraping session's audit row.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

// Terminal reports whether the status closes the run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusAborted
}

// SessionCounts aggregates per-record outcomes for one session.
type SessionCounts struct {
	Seen      int `json:"seen"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Rejected  int `json:"rejected"`
}

// JobRun is the audit record for exactly one scraping session.
//
// Lifecycle: created with status=running before any event processing,
// finalized exactly once, never mutated afterwards. A scheduled session
// without a JobRun row is a monitoring signal that must not occur.
type JobRun struct {
	ID               uuid.UUID     `json:"id"`
	JobName          string        `json:"job_name"`
	Cadence          Cadence       `json:"cadence"`
	WindowDescriptor string        `json:"window_descriptor"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       *time.Time    `json:"finished_at"`
	Counts           SessionCounts `json:"counts"`
	Status           RunStatus     `json:"status"`
	FailureDetail    []string      `json:"failure_detail"`
}
