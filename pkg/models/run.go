// Package models defines the core domain models for the daily video pipeline
package models

import (
	"errors"
	"time"
)

// DateLayout is the layout of run dates and run IDs.
const DateLayout = "2006-01-02"

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusStopped   RunStatus = "stopped"
)

// IsTerminal reports whether no further transitions can happen without a new StartRun.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusStopped
}

// RunMode selects whether the publishing steps are executed.
type RunMode string

const (
	RunModeDryRun RunMode = "dry_run" // Produces every artifact, skips upload and cross_post
	RunModeFull   RunMode = "full"
)

func (m RunMode) Valid() bool {
	return m == RunModeDryRun || m == RunModeFull
}

// RunRecord is the per-date aggregate tracking a pipeline execution.
type RunRecord struct {
	ID         string       `json:"id"`
	Date       string       `json:"date"`
	Mode       RunMode      `json:"mode"`
	Status     RunStatus    `json:"status"`
	Steps      []StepResult `json:"steps"`
	OutputDir  string       `json:"output_dir"`
	Attempts   int          `json:"attempts"`
	FailedStep StepName     `json:"failed_step,omitempty"`
	Error      string       `json:"error,omitempty"`
	LastSeq    int64        `json:"last_seq"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (r *RunRecord) Clone() *RunRecord {
	if r == nil {
		return nil
	}

	c := *r
	c.Steps = make([]StepResult, len(r.Steps))

	for i, s := range r.Steps {
		c.Steps[i] = s.Clone()
	}

	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}

	return &c
}

// Step returns the result recorded for name, if any.
func (r *RunRecord) Step(name StepName) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Step == name {
			return s, true
		}
	}

	return StepResult{}, false
}

// SucceededPrefix returns how many leading steps succeeded in pipeline order.
func (r *RunRecord) SucceededPrefix() int {
	n := 0

	for i, s := range r.Steps {
		if i >= len(Steps) || s.Step != Steps[i] || s.Status != StepStatusSucceeded {
			break
		}

		n++
	}

	return n
}

// CurrentStep returns the last step that has a result, or "" when none started.
func (r *RunRecord) CurrentStep() StepName {
	if len(r.Steps) == 0 {
		return ""
	}

	return r.Steps[len(r.Steps)-1].Step
}

// ErrInvalidRunDate is returned by ParseRunDate for malformed dates.
var ErrInvalidRunDate = errors.New("date must use the YYYY-MM-DD format")

// ParseRunDate parses a run date in the given location.
func ParseRunDate(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	t, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, ErrInvalidRunDate
	}

	return t, nil
}

// DateRange is an inclusive range of run dates. Empty bounds are open.
type DateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// Contains reports whether date falls within the range.
func (r DateRange) Contains(date string) bool {
	if r.From != "" && date < r.From {
		return false
	}

	if r.To != "" && date > r.To {
		return false
	}

	return true
}

// ActiveRun is the single-row sentinel naming the date currently running.
type ActiveRun struct {
	RunID         string    `json:"run_id"`
	Owner         string    `json:"owner"`
	AcquiredAt    time.Time `json:"acquired_at"`
	StopRequested bool      `json:"stop_requested"`
}
