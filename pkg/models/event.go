package models

import "time"

// StepEventKind distinguishes entries of a run's transition log.
type StepEventKind string

const (
	StepEventSnapshot StepEventKind = "snapshot" // First entry of a subscription, never persisted
	StepEventStep     StepEventKind = "step"
	StepEventRun      StepEventKind = "run"
)

// StepEvent is one transition of a run, in the order it happened.
type StepEvent struct {
	Seq       int64         `json:"seq"`
	RunID     string        `json:"run_id"`
	Kind      StepEventKind `json:"kind"`
	Step      StepName      `json:"step,omitempty"`
	Status    StepStatus    `json:"status,omitempty"`
	RunStatus RunStatus     `json:"run_status"`
	Attempt   int           `json:"attempt,omitempty"`
	Message   string        `json:"message,omitempty"`
	Result    *StepResult   `json:"result,omitempty"`
	Record    *RunRecord    `json:"record,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Terminal reports whether the event closes the run's event sequence.
func (e StepEvent) Terminal() bool {
	return e.Kind != StepEventStep && e.RunStatus.IsTerminal()
}
