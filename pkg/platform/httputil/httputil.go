// Package httputil carries the JSON response helpers shared by all HTTP
// handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"calsync/pkg/platform/sentinel"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps sentinel errors onto HTTP statuses. Internal errors omit
// the description so storage details never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Description: err.Error()})
	case errors.Is(err, sentinel.ErrConflict):
		WriteJSON(w, http.StatusConflict, errorBody{Error: "conflict", Description: err.Error()})
	case errors.Is(err, sentinel.ErrInvalidState):
		WriteJSON(w, http.StatusConflict, errorBody{Error: "invalid_state", Description: err.Error()})
	case errors.Is(err, sentinel.ErrUnavailable):
		WriteJSON(w, http.StatusServiceUnavailable, errorBody{Error: "unavailable"})
	default:
		WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error"})
	}
}

// WriteBadRequest reports a request the client can fix.
func WriteBadRequest(w http.ResponseWriter, description string) {
	WriteJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Description: description})
}

// Decode parses the request body into T with unknown fields rejected.
func Decode[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("decode request body: %w", err)
	}
	return v, nil
}
