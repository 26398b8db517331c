package adapters

import (
	"errors"
	"fmt"
)

// Code names an adapter failure.
type Code string

const (
	CodeSourceUnavailable   Code = "SourceUnavailable"
	CodeGenerationFailed    Code = "GenerationFailed"
	CodeQuotaExceeded       Code = "QuotaExceeded"
	CodeSynthesisFailed     Code = "SynthesisFailed"
	CodeCompositionFailed   Code = "CompositionFailed"
	CodeRenderFailed        Code = "RenderFailed"
	CodeAuthInvalid         Code = "AuthInvalid"
	CodeUploadFailed        Code = "UploadFailed"
	CodeNotifyFailed        Code = "NotifyFailed"
	CodeRateLimited         Code = "RateLimited"
	CodeMalformedInput      Code = "MalformedInput"
	// CodeArtifactWriteFailed is the orchestrator failing to persist a step's manifest.
	CodeArtifactWriteFailed Code = "ArtifactWriteFailed"
)

// Error is the typed failure every adapter returns.
type Error struct {
	Code      Code
	Retryable bool
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient creates a retryable adapter error.
func Transient(code Code, message string, err error) *Error {
	return &Error{Code: code, Retryable: true, Message: message, Err: err}
}

// Permanent creates an adapter error that must not be retried.
func Permanent(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// AsError extracts the adapter error from err.
func AsError(err error) (*Error, bool) {
	var adapterErr *Error
	if errors.As(err, &adapterErr) {
		return adapterErr, true
	}

	return nil, false
}

// HasCode reports whether err is an adapter error with the given code.
func HasCode(err error, code Code) bool {
	adapterErr, ok := AsError(err)

	return ok && adapterErr.Code == code
}

// FromHTTPStatus maps a response status to an adapter error.
// Rate limits and server errors are retryable, auth failures are not.
func FromHTTPStatus(code Code, status int, body string) *Error {
	message := fmt.Sprintf("unexpected status %d", status)
	if body != "" {
		message += ": " + truncate(body, 200)
	}

	switch {
	case status == 401 || status == 403:
		return Permanent(CodeAuthInvalid, message, nil)
	case status == 429:
		return Transient(code, message, nil)
	case status >= 500:
		return Transient(code, message, nil)
	default:
		return Permanent(code, message, nil)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n]) + "..."
}
