// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/google/uuid"
)

// CreateTestRun creates a test RunRecord with default values that can be overridden.
func CreateTestRun(date string, overrides ...func(*models.RunRecord)) *models.RunRecord {
	created := time.Date(2026, 2, 11, 6, 0, 0, 0, time.UTC)

	record := &models.RunRecord{
		ID:        date,
		Date:      date,
		Mode:      models.RunModeDryRun,
		Status:    models.RunStatusPending,
		Steps:     []models.StepResult{},
		OutputDir: "/tmp/dailyreel/" + date,
		Attempts:  1,
		CreatedAt: created,
		UpdatedAt: created,
	}

	for _, override := range overrides {
		override(record)
	}

	return record
}

// WithStatus sets the run status.
func WithStatus(status models.RunStatus) func(*models.RunRecord) {
	return func(r *models.RunRecord) {
		r.Status = status
	}
}

// WithMode sets the run mode.
func WithMode(mode models.RunMode) func(*models.RunRecord) {
	return func(r *models.RunRecord) {
		r.Mode = mode
	}
}

// WithSucceededSteps marks the first n pipeline steps as succeeded.
func WithSucceededSteps(n int) func(*models.RunRecord) {
	return func(r *models.RunRecord) {
		manifests := map[models.StepName]string{
			models.StepFetchNews:       models.HeadlinesManifest,
			models.StepWriteScript:     models.ScriptManifest,
			models.StepSynthesizeVoice: models.NarrationManifest,
			models.StepBuildVideo:      models.VideoManifest,
			models.StepBuildThumbnail:  models.ThumbnailManifest,
			models.StepUpload:          models.UploadManifest,
			models.StepCrossPost:       models.CrossPostManifest,
		}

		for _, step := range models.Steps[:n] {
			r.Steps = append(r.Steps, models.StepResult{
				Step:         step,
				Status:       models.StepStatusSucceeded,
				AttemptCount: 1,
				OutputRef:    manifests[step],
			})
		}
	}
}

// WithFailedStep appends a failed result for step.
func WithFailedStep(step models.StepName, summary string) func(*models.RunRecord) {
	return func(r *models.RunRecord) {
		r.Steps = append(r.Steps, models.StepResult{
			Step:         step,
			Status:       models.StepStatusFailed,
			AttemptCount: 1,
			Error:        summary,
			ErrorKind:    models.ErrorKindPermanent,
		})
		r.FailedStep = step
		r.Error = summary
	}
}

// CreateTestEvent creates a step transition event for runID.
func CreateTestEvent(runID string, seq int64, step models.StepName, status models.StepStatus) models.StepEvent {
	return models.StepEvent{
		Seq:       seq,
		RunID:     runID,
		Kind:      models.StepEventStep,
		Step:      step,
		Status:    status,
		RunStatus: models.RunStatusRunning,
		Attempt:   1,
		Message:   "event-" + uuid.New().String()[:8],
		Timestamp: time.Date(2026, 2, 11, 6, 0, int(seq), 0, time.UTC),
	}
}
