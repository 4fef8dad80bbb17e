package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across modules.
var (
	ErrEmptyUserID       = errors.New("user ID cannot be empty")
	ErrSessionNotFound   = errors.New("session not found")
	ErrMalformedResponse = errors.New("malformed prediction response")
	ErrInvalidInterval   = errors.New("reminder interval must be positive")
)

// ValidationError reports an answer that could not be accepted for a state.
// It is recovered locally by asking the same question again.
type ValidationError struct {
	State    State
	RawInput string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid answer %q for %s: %s", e.RawInput, e.State, e.Reason)
}

// PredictionError reports that the risk predictor was unavailable or returned
// an unusable response. Finalization is aborted and may be retried.
type PredictionError struct {
	UserID string
	Err    error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed for %s: %v", e.UserID, e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }

// PersistenceError reports a record store failure. It never blocks completion.
type PersistenceError struct {
	UserID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting record for %s failed: %v", e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SchedulingError reports a failure to arm a reminder. It never blocks completion.
type SchedulingError struct {
	UserID string
	Err    error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling reminder for %s failed: %v", e.UserID, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }
