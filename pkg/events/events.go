// Package events defines the run lifecycle notifications published on the event bus.
package events

import (
	"time"

	"github.com/dukex/dailyreel/pkg/models"
)

type EventType string

// Topic carries every run notification.
const Topic = "dailyreel.runs"

// Message metadata set on every published event.
const (
	RunIDMetadataKey     = "run_id"
	SeqMetadataKey       = "seq"
	EventTypeMetadataKey = "event_type"
)

const (
	RunStartedEvent     EventType = "run.started"
	StepTransitionEvent EventType = "step.transition"
	RunFinishedEvent    EventType = "run.finished"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Seq       int64     `json:"seq"`
}

// Base exposes the common fields of any event embedding BaseEvent.
func (b BaseEvent) Base() BaseEvent {
	return b
}

type RunStarted struct {
	BaseEvent

	Mode     models.RunMode `json:"mode"`
	Attempts int            `json:"attempts"`
	Resumed  bool           `json:"resumed"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type StepTransition struct {
	BaseEvent

	Step      models.StepName   `json:"step"`
	Status    models.StepStatus `json:"status"`
	Attempt   int               `json:"attempt"`
	ErrorKind models.ErrorKind  `json:"error_kind,omitempty"`
	ErrorCode string            `json:"error_code,omitempty"`
	OutputRef string            `json:"output_ref,omitempty"`
}

func (e StepTransition) GetType() EventType {
	return StepTransitionEvent
}

type RunFinished struct {
	BaseEvent

	Status     models.RunStatus `json:"status"`
	FailedStep models.StepName  `json:"failed_step,omitempty"`
	Error      string           `json:"error,omitempty"`
}

func (e RunFinished) GetType() EventType {
	return RunFinishedEvent
}
