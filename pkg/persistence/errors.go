package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRunNotFound indicates no run record exists for the given date.
	ErrRunNotFound = errors.New("run not found")

	// ErrStoreUnavailable indicates the backing medium could not be read or written.
	ErrStoreUnavailable = errors.New("run store unavailable")

	// ErrActiveRunExists indicates another run already holds the active-run sentinel.
	ErrActiveRunExists = errors.New("another run is active")

	// ErrRunNotActive indicates the named run does not hold the active-run sentinel.
	ErrRunNotActive = errors.New("run is not active")

	// ErrInvalidRunID indicates a run ID that is not a calendar date.
	ErrInvalidRunID = errors.New("invalid run id")
)

// RunError wraps run store errors with additional context.
type RunError struct {
	Op    string // Operation being performed (e.g., "Load", "Save", "AcquireActive")
	RunID string // Run ID if applicable
	Err   error  // Underlying error
}

func (e *RunError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("%s operation failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for run errors.
func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{
		Op:    op,
		RunID: runID,
		Err:   err,
	}
}

// Unavailable wraps a backend failure so it matches ErrStoreUnavailable and keeps the cause.
func Unavailable(op, runID string, cause error) *RunError {
	return NewRunError(op, runID, fmt.Errorf("%w: %w", ErrStoreUnavailable, cause))
}

// IsRunNotFound checks if an error indicates a run record was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsStoreUnavailable checks if an error indicates the store medium failed.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsActiveRunExists checks if an error indicates the sentinel is already held.
func IsActiveRunExists(err error) bool {
	return errors.Is(err, ErrActiveRunExists)
}

// IsRunNotActive checks if an error indicates the run does not hold the sentinel.
func IsRunNotActive(err error) bool {
	return errors.Is(err, ErrRunNotActive)
}
