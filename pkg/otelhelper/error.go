package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Failure event names.
const (
	RunFailedEvent     = "run_failed"
	AttemptFailedEvent = "attempt_failed"
	ShortFailedEvent   = "short_failed"
)

// SetError marks the span failed and adds event with attrs. A nil err leaves the span untouched.
func SetError(span trace.Span, event string, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent(event, trace.WithAttributes(attrs...))
}
