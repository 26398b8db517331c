package events

import (
	"testing"
	"time"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStepEvent(t *testing.T) {
	now := time.Date(2026, 2, 11, 6, 0, 0, 0, time.UTC)

	t.Run("step transition", func(t *testing.T) {
		event := FromStepEvent("id-1", models.StepEvent{
			Seq:       3,
			RunID:     "2026-02-11",
			Kind:      models.StepEventStep,
			Step:      models.StepUpload,
			Status:    models.StepStatusFailed,
			RunStatus: models.RunStatusRunning,
			Attempt:   1,
			Result:    &models.StepResult{ErrorKind: models.ErrorKindPermanent, ErrorCode: "AuthInvalid"},
			Timestamp: now,
		})

		transition, ok := event.(StepTransition)
		require.True(t, ok)
		assert.Equal(t, StepTransitionEvent, transition.GetType())
		assert.Equal(t, StepTransitionEvent, transition.Type)
		assert.Equal(t, int64(3), transition.Seq)
		assert.Equal(t, models.StepUpload, transition.Step)
		assert.Equal(t, "AuthInvalid", transition.ErrorCode)
	})

	t.Run("run started", func(t *testing.T) {
		record := &models.RunRecord{Mode: models.RunModeFull, Attempts: 2, Steps: []models.StepResult{
			{Step: models.StepFetchNews, Status: models.StepStatusSucceeded},
		}}

		event := FromStepEvent("id-2", models.StepEvent{
			RunID: "2026-02-11", Kind: models.StepEventRun, RunStatus: models.RunStatusRunning, Record: record,
		})

		started, ok := event.(RunStarted)
		require.True(t, ok)
		assert.Equal(t, models.RunModeFull, started.Mode)
		assert.Equal(t, 2, started.Attempts)
		assert.True(t, started.Resumed)
	})

	t.Run("run finished", func(t *testing.T) {
		event := FromStepEvent("id-3", models.StepEvent{
			RunID: "2026-02-11", Kind: models.StepEventRun, RunStatus: models.RunStatusFailed,
			Record: &models.RunRecord{FailedStep: models.StepUpload, Error: "AuthInvalid: token revoked"},
		})

		finished, ok := event.(RunFinished)
		require.True(t, ok)
		assert.Equal(t, RunFinishedEvent, finished.GetType())
		assert.Equal(t, models.StepUpload, finished.FailedStep)
		assert.Equal(t, "AuthInvalid: token revoked", finished.Error)
	})
}

func TestDecode(t *testing.T) {
	event, err := Decode(RunFinishedEvent, []byte(`{"id":"e1","type":"run.finished","run_id":"2026-02-11","seq":9,"status":"stopped"}`))
	require.NoError(t, err)

	finished, ok := event.(RunFinished)
	require.True(t, ok)
	assert.Equal(t, models.RunStatusStopped, finished.Status)
	assert.Equal(t, "2026-02-11", event.Base().RunID)
	assert.Equal(t, int64(9), event.Base().Seq)

	_, err = Decode("run.paused", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownEventType)

	_, err = Decode(StepTransitionEvent, []byte(`{"seq":"nine"}`))
	require.Error(t, err)
}
