package handler

import (
	"github.com/google/uuid"

	"calsync/internal/calendar/models"
	"calsync/internal/calendar/reconcile"
	"calsync/internal/calendar/session"
)

// RunSessionResponse is the HTTP response for POST /v1/sessions.
type RunSessionResponse struct {
	RunID       uuid.UUID            `json:"run_id"`
	Status      string               `json:"status"`
	Counts      models.SessionCounts `json:"counts"`
	Corrections []CorrectionResponse `json:"corrections,omitempty"`
	Rejections  []string             `json:"rejections,omitempty"`
}

// CorrectionResponse is one flagged field-level change.
type CorrectionResponse struct {
	Identity string `json:"identity"`
	Title    string `json:"title"`
	Detail   string `json:"detail"`
}

// FromResult converts a session result to an HTTP response.
func FromResult(result session.Result) RunSessionResponse {
	resp := RunSessionResponse{
		RunID:  result.RunID,
		Status: string(result.Status),
		Counts: result.Counts,
	}
	resp.Corrections = fromCorrections(result.Corrections)
	for _, rejection := range result.Rejections {
		resp.Rejections = append(resp.Rejections, rejection.Error())
	}
	return resp
}

func fromCorrections(corrections []reconcile.Correction) []CorrectionResponse {
	out := make([]CorrectionResponse, 0, len(corrections))
	for _, c := range corrections {
		out = append(out, CorrectionResponse{Identity: c.Identity, Title: c.Title, Detail: c.Detail})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ListEventsResponse is the HTTP response for GET /v1/events.
type ListEventsResponse struct {
	Events []*models.Event `json:"events"`
}

// ListRunsResponse is the HTTP response for GET /v1/runs.
type ListRunsResponse struct {
	Runs []*models.JobRun `json:"runs"`
}
