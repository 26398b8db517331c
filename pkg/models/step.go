package models

import "time"

// StepName identifies one stage of the fixed pipeline chain.
type StepName string

const (
	StepFetchNews       StepName = "fetch_news"
	StepWriteScript     StepName = "write_script"
	StepSynthesizeVoice StepName = "synthesize_voice"
	StepBuildVideo      StepName = "build_video"
	StepBuildThumbnail  StepName = "build_thumbnail"
	StepUpload          StepName = "upload"
	StepCrossPost       StepName = "cross_post"
)

// Steps is the pipeline order.
var Steps = []StepName{
	StepFetchNews,
	StepWriteScript,
	StepSynthesizeVoice,
	StepBuildVideo,
	StepBuildThumbnail,
	StepUpload,
	StepCrossPost,
}

// Index returns the position of the step in the pipeline, or -1.
func (s StepName) Index() int {
	for i, name := range Steps {
		if name == s {
			return i
		}
	}

	return -1
}

func (s StepName) Valid() bool {
	return s.Index() >= 0
}

// Publishing reports whether the step is skipped in dry runs.
func (s StepName) Publishing() bool {
	return s == StepUpload || s == StepCrossPost
}

// StepStatus represents the state of a single step.
type StepStatus string

const (
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusRunning   StepStatus = "running"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusRetried   StepStatus = "retried" // Between attempts after a transient failure
)

// ErrorKind is the classification of a step failure.
type ErrorKind string

const (
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindPermanent ErrorKind = "permanent"
	ErrorKindNonFatal  ErrorKind = "non_fatal"
	ErrorKindStore     ErrorKind = "store"
)

// StepResult is the outcome of one step within a run.
type StepResult struct {
	Step         StepName   `json:"step"`
	Status       StepStatus `json:"status"`
	AttemptCount int        `json:"attempt_count"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	ErrorKind    ErrorKind  `json:"error_kind,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	OutputRef    string     `json:"output_ref,omitempty"`
}

func (s StepResult) Clone() StepResult {
	c := s

	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}

	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}

	return c
}

// Done reports whether the step no longer blocks the run from succeeding.
func (s StepResult) Done() bool {
	return s.Status == StepStatusSucceeded || s.Status == StepStatusSkipped
}
