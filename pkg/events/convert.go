package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/dailyreel/pkg/models"
)

var ErrUnknownEventType = errors.New("unknown event type")

// Event is implemented by every bus payload.
type Event interface {
	GetType() EventType
	Base() BaseEvent
}

// Decode parses a bus payload of the given type.
// nolint:ireturn
func Decode(eventType EventType, payload []byte) (Event, error) {
	switch eventType {
	case RunStartedEvent:
		return decode[RunStarted](payload)
	case StepTransitionEvent:
		return decode[StepTransition](payload)
	case RunFinishedEvent:
		return decode[RunFinished](payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
}

// nolint:ireturn
func decode[T Event](payload []byte) (Event, error) {
	var event T

	err := json.Unmarshal(payload, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %T: %w", event, err)
	}

	return event, nil
}

// FromStepEvent converts a logged transition into its bus payload.
// Running run-level transitions become RunStarted, terminal ones RunFinished.
// nolint:ireturn
func FromStepEvent(id string, e models.StepEvent) Event {
	base := BaseEvent{
		ID:        id,
		Timestamp: e.Timestamp,
		RunID:     e.RunID,
		Seq:       e.Seq,
	}

	if e.Kind == models.StepEventStep {
		base.Type = StepTransitionEvent
		transition := StepTransition{
			BaseEvent: base,
			Step:      e.Step,
			Status:    e.Status,
			Attempt:   e.Attempt,
		}

		if e.Result != nil {
			transition.ErrorKind = e.Result.ErrorKind
			transition.ErrorCode = e.Result.ErrorCode
			transition.OutputRef = e.Result.OutputRef
		}

		return transition
	}

	if e.RunStatus.IsTerminal() {
		base.Type = RunFinishedEvent
		finished := RunFinished{BaseEvent: base, Status: e.RunStatus, Error: e.Message}

		if e.Record != nil {
			finished.FailedStep = e.Record.FailedStep
			finished.Error = e.Record.Error
		}

		return finished
	}

	base.Type = RunStartedEvent
	started := RunStarted{BaseEvent: base}

	if e.Record != nil {
		started.Mode = e.Record.Mode
		started.Attempts = e.Record.Attempts
		started.Resumed = e.Record.SucceededPrefix() > 0
	}

	return started
}
