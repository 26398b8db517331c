package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/persistence"
)

var (
	// ErrAlreadyRunning indicates another date holds the active-run sentinel.
	ErrAlreadyRunning = errors.New("another run is in progress")

	// ErrInvalidDate indicates a malformed date or one beyond the scheduling horizon.
	ErrInvalidDate = errors.New("invalid run date")

	// ErrInvalidMode indicates a mode other than dry_run or full.
	ErrInvalidMode = errors.New("invalid run mode")

	// ErrNotFound indicates no run record or bundle file exists for the request.
	ErrNotFound = errors.New("run not found")

	// ErrShuttingDown is returned by StartRun after Shutdown began.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// Codes used in run summaries for failures that do not come from an adapter.
const (
	CodeTimeout          = "Timeout"
	CodeStoreUnavailable = "StoreUnavailable"
	CodeInterrupted      = "Interrupted"
	CodeUnknown          = "Unknown"
)

func IsAlreadyRunning(err error) bool {
	return errors.Is(err, ErrAlreadyRunning)
}

func IsInvalidDate(err error) bool {
	return errors.Is(err, ErrInvalidDate)
}

func IsInvalidMode(err error) bool {
	return errors.Is(err, ErrInvalidMode)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Classify assigns the error kind that decides whether a step is retried.
// Non-fatal failures are decided by the step, not the error.
func Classify(err error) models.ErrorKind {
	if err == nil {
		return ""
	}

	if persistence.IsStoreUnavailable(err) {
		return models.ErrorKindStore
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorKindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ErrorKindTransient
	}

	if adapterErr, ok := adapters.AsError(err); ok {
		if adapterErr.Retryable {
			return models.ErrorKindTransient
		}

		return models.ErrorKindPermanent
	}

	return models.ErrorKindPermanent
}

// ErrorCode returns the code stored on a failed step.
func ErrorCode(err error) string {
	if adapterErr, ok := adapters.AsError(err); ok {
		return string(adapterErr.Code)
	}

	switch {
	case persistence.IsStoreUnavailable(err):
		return CodeStoreUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeUnknown
	}
}

// Summary renders err as "<code>: <message>" without the wrapped cause.
func Summary(err error) string {
	if adapterErr, ok := adapters.AsError(err); ok {
		return fmt.Sprintf("%s: %s", adapterErr.Code, adapterErr.Message)
	}

	switch {
	case persistence.IsStoreUnavailable(err):
		return CodeStoreUnavailable + ": " + persistence.ErrStoreUnavailable.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout + ": step exceeded its time limit"
	default:
		return CodeUnknown + ": " + err.Error()
	}
}
