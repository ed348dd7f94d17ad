package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so the reconciliation and session layers can react without
// inspecting driver-specific error types.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: row does not exist in store
// - ErrConflict: unique-constraint race lost; caller should re-read and merge
// - ErrInvalidState: row in wrong lifecycle state for the operation
// - ErrUnavailable: store temporarily unreachable; safe to retry with backoff
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
