package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/events"
	"github.com/dukex/dailyreel/pkg/mocks"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/persistence"
	"github.com/dukex/dailyreel/pkg/persistence/file"
	"github.com/dukex/dailyreel/pkg/pipeline"
	"github.com/dukex/dailyreel/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStartRun_DryRun(t *testing.T) {
	h := newHarness(t)
	h.expectProduction()

	record := h.run(t, models.RunModeDryRun)

	assert.Equal(t, models.RunStatusSucceeded, record.Status)
	assert.Equal(t, 1, record.Attempts)
	assert.Empty(t, record.Error)
	require.NotNil(t, record.FinishedAt)
	require.Len(t, record.Steps, len(models.Steps))

	for i, step := range models.Steps {
		result := record.Steps[i]
		assert.Equal(t, step, result.Step)

		if step.Publishing() {
			assert.Equal(t, models.StepStatusSkipped, result.Status, step)
			assert.Zero(t, result.AttemptCount)

			continue
		}

		assert.Equal(t, models.StepStatusSucceeded, result.Status, step)
		assert.Equal(t, 1, result.AttemptCount, step)
		assert.NotEmpty(t, result.OutputRef)
	}

	h.adapters.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
	h.adapters.AssertNotCalled(t, "CrossPost", mock.Anything, mock.Anything, mock.Anything)
	h.adapters.AssertNotCalled(t, "Alert", mock.Anything, mock.Anything, mock.Anything)

	bundle, err := h.orchestrator.Bundle(context.Background(), runDate)
	require.NoError(t, err)

	for _, name := range []string{
		models.HeadlinesManifest, models.ScriptManifest, models.NarrationManifest,
		models.NarrationAudio, models.NarrationCaptions, models.VideoFile, models.ThumbnailFile,
	} {
		assert.True(t, bundle.Has(name), name)
	}

	assert.False(t, bundle.Has(models.UploadManifest))
	assert.Equal(t, filepath.Join(h.outputRoot, runDate), bundle.Dir)

	active, err := h.store.ActiveRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestStartRun_EventLogIsOrdered(t *testing.T) {
	h := newHarness(t)
	h.expectProduction()

	record := h.run(t, models.RunModeDryRun)

	events, err := h.orchestrator.Events(context.Background(), runDate, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	for i, event := range events {
		assert.Equal(t, int64(i+1), event.Seq)
		assert.Equal(t, runDate, event.RunID)
	}

	first := events[0]
	assert.Equal(t, models.StepEventRun, first.Kind)
	assert.Equal(t, models.RunStatusRunning, first.RunStatus)

	last := events[len(events)-1]
	assert.True(t, last.Terminal())
	assert.Equal(t, models.RunStatusSucceeded, last.RunStatus)
	assert.Equal(t, record.LastSeq, last.Seq)

	tail, err := h.orchestrator.Events(context.Background(), runDate, last.Seq-1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, last.Seq, tail[0].Seq)
}

func TestStartRun_TransientFailureRetried(t *testing.T) {
	h := newHarness(t)
	h.expectNews()
	h.expectScript()
	h.adapters.On("SynthesizeVoice", mock.Anything, testScript.Body, mock.Anything).
		Return(models.Narration{}, adapters.Transient(adapters.CodeSynthesisFailed, "service busy", nil)).Twice()
	h.expectVoice().Once()
	h.expectVideo()
	h.expectThumbnail()
	h.expectUpload()
	h.expectCrossPost()

	record := h.run(t, models.RunModeFull)

	assert.Equal(t, models.RunStatusSucceeded, record.Status)

	voice := stepResult(t, record, models.StepSynthesizeVoice)
	assert.Equal(t, models.StepStatusSucceeded, voice.Status)
	assert.Equal(t, 3, voice.AttemptCount)
	assert.Empty(t, voice.Error)
	assert.Equal(t, models.NarrationManifest, voice.OutputRef)

	h.adapters.AssertNumberOfCalls(t, "SynthesizeVoice", 3)

	events, err := h.orchestrator.Events(context.Background(), runDate, 0)
	require.NoError(t, err)

	retried := 0

	for _, event := range events {
		if event.Step == models.StepSynthesizeVoice && event.Status == models.StepStatusRetried {
			retried++

			assert.Equal(t, "SynthesisFailed: service busy", event.Message)
		}
	}

	assert.Equal(t, 2, retried)
}

func TestStartRun_RetryCeiling(t *testing.T) {
	h := newHarness(t)
	h.expectNews()
	h.expectScript()
	h.adapters.On("SynthesizeVoice", mock.Anything, testScript.Body, mock.Anything).
		Return(models.Narration{}, adapters.Transient(adapters.CodeSynthesisFailed, "service busy", nil))
	h.adapters.On("Alert", mock.Anything, runDate, mock.Anything).Return(nil)

	record := h.run(t, models.RunModeFull)

	assert.Equal(t, models.RunStatusFailed, record.Status)
	assert.Equal(t, models.StepSynthesizeVoice, record.FailedStep)
	assert.Equal(t, "SynthesisFailed: service busy", record.Error)

	voice := stepResult(t, record, models.StepSynthesizeVoice)
	assert.Equal(t, models.StepStatusFailed, voice.Status)
	assert.Equal(t, 3, voice.AttemptCount)
	assert.Equal(t, models.ErrorKindTransient, voice.ErrorKind)
	assert.Equal(t, "SynthesisFailed", voice.ErrorCode)

	h.adapters.AssertNumberOfCalls(t, "SynthesizeVoice", 3)
	h.adapters.AssertNotCalled(t, "BuildVideo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	statuses := stepStatuses(record)
	for _, step := range models.Steps[models.StepBuildVideo.Index():] {
		assert.Equal(t, models.StepStatusSkipped, statuses[step], step)
	}
}

func TestStartRun_UploadAuthInvalid(t *testing.T) {
	h := newHarness(t)
	h.expectProduction()
	h.adapters.On("Upload", mock.Anything, mock.Anything).
		Return(models.Upload{}, adapters.Permanent(adapters.CodeAuthInvalid, "refresh token rejected", errors.New("invalid_grant")))
	h.adapters.On("Alert", mock.Anything, runDate, mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "AuthInvalid")
	})).Return(nil).Once()

	record := h.run(t, models.RunModeFull)

	assert.Equal(t, models.RunStatusFailed, record.Status)
	assert.Equal(t, models.StepUpload, record.FailedStep)
	assert.Equal(t, "AuthInvalid: refresh token rejected", record.Error)
	assert.NotContains(t, record.Error, "invalid_grant")

	upload := stepResult(t, record, models.StepUpload)
	assert.Equal(t, models.StepStatusFailed, upload.Status)
	assert.Equal(t, 1, upload.AttemptCount)
	assert.Equal(t, models.ErrorKindPermanent, upload.ErrorKind)
	assert.Equal(t, "AuthInvalid", upload.ErrorCode)
	assert.Empty(t, upload.OutputRef)

	assert.Equal(t, models.StepStatusSkipped, stepStatuses(record)[models.StepCrossPost])

	h.adapters.AssertNumberOfCalls(t, "Upload", 1)
	h.adapters.AssertNotCalled(t, "CrossPost", mock.Anything, mock.Anything, mock.Anything)
	h.adapters.AssertExpectations(t)
}

func TestStartRun_CrossPostFailureIsNonFatal(t *testing.T) {
	h := newHarness(t)
	h.expectProduction()
	h.expectUpload()
	h.adapters.On("CrossPost", mock.Anything, "abc123", testScript.Title).
		Return(adapters.Permanent(adapters.CodeNotifyFailed, "all channels failed", nil))

	record := h.run(t, models.RunModeFull)

	assert.Equal(t, models.RunStatusSucceeded, record.Status)
	assert.Empty(t, record.FailedStep)

	crossPost := stepResult(t, record, models.StepCrossPost)
	assert.Equal(t, models.StepStatusFailed, crossPost.Status)
	assert.Equal(t, models.ErrorKindNonFatal, crossPost.ErrorKind)
	assert.Equal(t, "NotifyFailed: all channels failed", crossPost.Error)

	upload := stepResult(t, record, models.StepUpload)
	assert.Equal(t, models.UploadManifest, upload.OutputRef)

	h.adapters.AssertNotCalled(t, "Alert", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartRun_StepTimeoutIsTransient(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	h := newHarnessWithStore(t, store)

	cfg := pipeline.DefaultConfig()
	cfg.OutputRoot = h.outputRoot
	cfg.Backoff = pipeline.Backoff{}
	cfg.MaxAttempts = 2
	cfg.StepTimeouts = map[models.StepName]time.Duration{models.StepFetchNews: 20 * time.Millisecond}

	o := pipeline.New(store, h.adapters.Set(), cfg, pipeline.WithClock(fakeClock()))

	h.adapters.On("FetchNews", mock.Anything, 20).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	_, err := o.StartRun(context.Background(), runDate, models.RunModeDryRun)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record, err := o.Wait(ctx, runDate)
	require.NoError(t, err)

	news := stepResult(t, record, models.StepFetchNews)
	assert.Equal(t, models.StepStatusFailed, news.Status)
	assert.Equal(t, 2, news.AttemptCount)
	assert.Equal(t, models.ErrorKindTransient, news.ErrorKind)
	assert.Equal(t, pipeline.CodeTimeout, news.ErrorCode)
}

func TestStartRun_AlreadyRunning(t *testing.T) {
	h := newHarness(t)

	release := make(chan struct{})
	h.adapters.On("FetchNews", mock.Anything, 20).
		Run(func(mock.Arguments) { <-release }).
		Return(testHeadlines, nil)
	h.expectScript()
	h.expectVoice()
	h.expectVideo()
	h.expectThumbnail()

	ctx := context.Background()

	_, err := h.orchestrator.StartRun(ctx, runDate, models.RunModeDryRun)
	require.NoError(t, err)

	_, err = h.orchestrator.StartRun(ctx, "2026-02-10", models.RunModeDryRun)
	require.ErrorIs(t, err, pipeline.ErrAlreadyRunning)

	_, err = h.orchestrator.StartRun(ctx, runDate, models.RunModeFull)
	require.ErrorIs(t, err, pipeline.ErrAlreadyRunning)

	active, err := h.orchestrator.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, runDate, active.ID)
	assert.Equal(t, models.RunStatusRunning, active.Status)

	running := 0

	records, err := h.orchestrator.List(ctx, models.DateRange{})
	require.NoError(t, err)

	for _, record := range records {
		if record.Status == models.RunStatusRunning {
			running++
		}
	}

	assert.Equal(t, 1, running)

	close(release)

	record := h.wait(t, runDate)
	assert.Equal(t, models.RunStatusSucceeded, record.Status)

	_, err = h.orchestrator.Active(ctx)
	require.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestStartRun_AlreadyRunningInAnotherProcess(t *testing.T) {
	h := newHarness(t)

	err := h.store.AcquireActive(context.Background(), models.ActiveRun{RunID: "2026-02-10", Owner: "other-host:7"})
	require.NoError(t, err)

	_, err = h.orchestrator.StartRun(context.Background(), runDate, models.RunModeDryRun)
	require.ErrorIs(t, err, pipeline.ErrAlreadyRunning)
	assert.True(t, pipeline.IsAlreadyRunning(err))

	_, err = h.orchestrator.Status(context.Background(), runDate)
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
}

func TestStartRun_InvalidInput(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		date  string
		mode  models.RunMode
		check func(error) bool
	}{
		{"malformed date", "11-02-2026", models.RunModeDryRun, pipeline.IsInvalidDate},
		{"impossible date", "2026-02-30", models.RunModeDryRun, pipeline.IsInvalidDate},
		{"beyond horizon", "2026-02-13", models.RunModeDryRun, pipeline.IsInvalidDate},
		{"empty date", "", models.RunModeFull, pipeline.IsInvalidDate},
		{"unknown mode", runDate, models.RunMode("partial"), pipeline.IsInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.orchestrator.StartRun(context.Background(), tt.date, tt.mode)
			require.Error(t, err)
			assert.True(t, tt.check(err), err)
		})
	}

	records, err := h.store.List(context.Background(), models.DateRange{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStopRun_DuringStep(t *testing.T) {
	h := newHarness(t)
	h.expectNews().Once()
	h.expectScript().Once()

	started := make(chan struct{})
	release := make(chan struct{})

	h.adapters.On("SynthesizeVoice", mock.Anything, testScript.Body, mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
			writeFiles(models.NarrationAudio, models.NarrationCaptions)(args)
		}).
		Return(models.Narration{AudioRef: models.NarrationAudio, SubtitleRef: models.NarrationCaptions}, nil).Once()

	ctx := context.Background()

	_, err := h.orchestrator.StartRun(ctx, runDate, models.RunModeDryRun)
	require.NoError(t, err)

	<-started
	require.NoError(t, h.orchestrator.StopRun(ctx, runDate))

	active, err := h.store.ActiveRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.True(t, active.StopRequested)

	close(release)

	record := h.wait(t, runDate)

	assert.Equal(t, models.RunStatusStopped, record.Status)
	require.Len(t, record.Steps, 3)
	assert.Equal(t, models.StepStatusSucceeded, stepResult(t, record, models.StepSynthesizeVoice).Status)

	_, reached := record.Step(models.StepBuildVideo)
	assert.False(t, reached)

	h.adapters.AssertNotCalled(t, "BuildVideo", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// Stopping a finished run is a no-op.
	require.NoError(t, h.orchestrator.StopRun(ctx, runDate))

	active, err = h.store.ActiveRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	// Resuming picks up at build_video and keeps earlier references.
	h.expectVideo()
	h.expectThumbnail()

	resumed := h.run(t, models.RunModeDryRun)

	assert.Equal(t, models.RunStatusSucceeded, resumed.Status)
	assert.Equal(t, 2, resumed.Attempts)

	for i := range 3 {
		assert.Equal(t, record.Steps[i].OutputRef, resumed.Steps[i].OutputRef)
		assert.Equal(t, record.Steps[i].FinishedAt, resumed.Steps[i].FinishedAt)
	}

	h.adapters.AssertNumberOfCalls(t, "FetchNews", 1)
	h.adapters.AssertNumberOfCalls(t, "SynthesizeVoice", 1)
}

func TestStopRun_RequestedFromAnotherProcess(t *testing.T) {
	h := newHarness(t)
	h.expectNews()

	release := make(chan struct{})
	h.adapters.On("WriteScript", mock.Anything, runDate, testHeadlines).
		Run(func(mock.Arguments) { <-release }).
		Return(testScript, nil)

	ctx := context.Background()

	_, err := h.orchestrator.StartRun(ctx, runDate, models.RunModeDryRun)
	require.NoError(t, err)

	// A second orchestrator sharing the store, as the CLI would be.
	other := pipeline.New(h.store, adapters.Set{}, pipeline.Config{OutputRoot: h.outputRoot}, pipeline.WithClock(fakeClock()))
	require.NoError(t, other.StopRun(ctx, runDate))

	close(release)

	record := h.wait(t, runDate)
	assert.Equal(t, models.RunStatusStopped, record.Status)
	assert.Len(t, record.Steps, 2)
}

func TestStopRun_NotFound(t *testing.T) {
	h := newHarness(t)

	err := h.orchestrator.StopRun(context.Background(), "2026-01-01")
	assert.True(t, pipeline.IsNotFound(err))

	err = h.orchestrator.StopRun(context.Background(), "../../etc")
	assert.True(t, pipeline.IsNotFound(err))
}

func TestStartRun_ResumeAfterFailure(t *testing.T) {
	h := newHarness(t)
	h.expectNews().Once()
	h.expectScript().Once()
	h.expectVoice().Once()
	h.adapters.On("BuildVideo", mock.Anything, mock.Anything, testScript, mock.Anything).
		Return(models.Video{}, adapters.Permanent(adapters.CodeCompositionFailed, "ffmpeg exited with status 1", nil)).Once()

	failed := h.run(t, models.RunModeDryRun)
	require.Equal(t, models.RunStatusFailed, failed.Status)
	require.Equal(t, models.StepBuildVideo, failed.FailedStep)
	h.adapters.AssertNotCalled(t, "Alert", mock.Anything, mock.Anything, mock.Anything)

	h.expectVideo().Once()
	h.expectThumbnail().Once()

	record := h.run(t, models.RunModeDryRun)

	assert.Equal(t, models.RunStatusSucceeded, record.Status)
	assert.Equal(t, 2, record.Attempts)
	assert.Empty(t, record.FailedStep)
	assert.Empty(t, record.Error)
	assert.Equal(t, 1, stepResult(t, record, models.StepBuildVideo).AttemptCount)

	for _, step := range []models.StepName{models.StepFetchNews, models.StepWriteScript, models.StepSynthesizeVoice} {
		assert.Equal(t, stepResult(t, failed, step), stepResult(t, record, step), step)
	}

	h.adapters.AssertNumberOfCalls(t, "FetchNews", 1)
	h.adapters.AssertNumberOfCalls(t, "WriteScript", 1)
	h.adapters.AssertNumberOfCalls(t, "SynthesizeVoice", 1)
	h.adapters.AssertNumberOfCalls(t, "BuildVideo", 2)
}

func TestStartRun_ResumeWithMissingArtifact(t *testing.T) {
	h := newHarness(t)
	h.expectNews().Once()
	h.expectScript().Once()
	h.expectVoice().Twice()
	h.adapters.On("BuildVideo", mock.Anything, mock.Anything, testScript, mock.Anything).
		Return(models.Video{}, adapters.Permanent(adapters.CodeCompositionFailed, "ffmpeg exited with status 1", nil)).Once()

	failed := h.run(t, models.RunModeDryRun)
	require.Equal(t, models.RunStatusFailed, failed.Status)

	require.NoError(t, os.Remove(filepath.Join(h.outputRoot, runDate, models.NarrationAudio)))

	h.expectVideo().Once()
	h.expectThumbnail().Once()

	record := h.run(t, models.RunModeDryRun)

	assert.Equal(t, models.RunStatusSucceeded, record.Status)
	h.adapters.AssertNumberOfCalls(t, "FetchNews", 1)
	h.adapters.AssertNumberOfCalls(t, "SynthesizeVoice", 2)
}

func TestStartRun_FullAfterDryRun(t *testing.T) {
	h := newHarness(t)
	h.expectProduction()
	h.expectUpload().Once()
	h.expectCrossPost().Once()

	dry := h.run(t, models.RunModeDryRun)
	require.Equal(t, models.RunStatusSucceeded, dry.Status)

	full := h.run(t, models.RunModeFull)

	assert.Equal(t, models.RunStatusSucceeded, full.Status)
	assert.Equal(t, models.RunModeFull, full.Mode)
	assert.Equal(t, models.StepStatusSucceeded, stepResult(t, full, models.StepUpload).Status)
	assert.Equal(t, models.StepStatusSucceeded, stepResult(t, full, models.StepCrossPost).Status)
	h.adapters.AssertNumberOfCalls(t, "FetchNews", 1)
	h.adapters.AssertNumberOfCalls(t, "BuildVideo", 1)
}

func TestStartRun_MalformedAdapterOutput(t *testing.T) {
	h := newHarness(t)
	h.expectNews()
	h.expectScript()
	h.adapters.On("SynthesizeVoice", mock.Anything, testScript.Body, mock.Anything).
		Return(models.Narration{AudioRef: "../escape.mp3", SubtitleRef: models.NarrationCaptions}, nil)

	record := h.run(t, models.RunModeDryRun)

	voice := stepResult(t, record, models.StepSynthesizeVoice)
	assert.Equal(t, models.StepStatusFailed, voice.Status)
	assert.Equal(t, 1, voice.AttemptCount)
	assert.Equal(t, string(adapters.CodeMalformedInput), voice.ErrorCode)
}

// failingStore fails writes once broken is set.
type failingStore struct {
	persistence.RunStore

	broken chan struct{}
}

func (s *failingStore) isBroken() bool {
	select {
	case <-s.broken:
		return true
	default:
		return false
	}
}

func (s *failingStore) Save(ctx context.Context, record *models.RunRecord) error {
	if s.isBroken() {
		return persistence.Unavailable("Save", record.ID, errors.New("disk full"))
	}

	return s.RunStore.Save(ctx, record)
}

func TestStartRun_StoreFailureEndsRun(t *testing.T) {
	store := &failingStore{RunStore: file.NewPersistence(t.TempDir()), broken: make(chan struct{})}
	h := newHarnessWithStore(t, store)

	release := make(chan struct{})

	h.adapters.On("FetchNews", mock.Anything, 20).
		Run(func(mock.Arguments) {
			<-release
			close(store.broken)
		}).
		Return(testHeadlines, nil)

	ctx := context.Background()

	_, err := h.orchestrator.StartRun(ctx, runDate, models.RunModeFull)
	require.NoError(t, err)

	sub, err := h.orchestrator.Subscribe(ctx, runDate)
	require.NoError(t, err)

	close(release)

	var last models.StepEvent

	for event := range sub.Events() {
		last = event
	}

	assert.True(t, last.Terminal())
	assert.Equal(t, models.RunStatusFailed, last.RunStatus)
	require.NotNil(t, last.Record)
	assert.Equal(t, models.StepFetchNews, last.Record.FailedStep)
	assert.True(t, strings.HasPrefix(last.Record.Error, pipeline.CodeStoreUnavailable))

	h.wait(t, runDate)

	active, err := store.ActiveRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	h.adapters.AssertNotCalled(t, "WriteScript", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartRun_StoreUnavailable(t *testing.T) {
	store := &mocks.MockRunStore{}
	store.On("AcquireActive", mock.Anything, mock.Anything).
		Return(persistence.Unavailable("AcquireActive", runDate, errors.New("connection refused")))

	h := newHarnessWithStore(t, store)

	_, err := h.orchestrator.StartRun(context.Background(), runDate, models.RunModeDryRun)
	require.Error(t, err)
	assert.True(t, persistence.IsStoreUnavailable(err))
	assert.False(t, pipeline.IsAlreadyRunning(err))
}

func TestRecover(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stale := testutil.CreateTestRun(runDate,
		testutil.WithStatus(models.RunStatusRunning),
		testutil.WithSucceededSteps(1),
	)
	stale.Steps = append(stale.Steps, models.StepResult{
		Step: models.StepWriteScript, Status: models.StepStatusRunning, AttemptCount: 1,
	})
	stale.LastSeq = 4

	require.NoError(t, h.store.Save(ctx, stale))
	require.NoError(t, h.store.Save(ctx, testutil.CreateTestRun("2026-02-10", testutil.WithStatus(models.RunStatusSucceeded))))
	require.NoError(t, h.store.AcquireActive(ctx, models.ActiveRun{RunID: runDate, Owner: "crashed:1"}))

	recovered, err := h.orchestrator.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	record, err := h.orchestrator.Status(ctx, runDate)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, record.Status)
	assert.Equal(t, models.StepWriteScript, record.FailedStep)
	assert.True(t, strings.HasPrefix(record.Error, pipeline.CodeInterrupted))
	assert.Equal(t, int64(5), record.LastSeq)
	assert.Equal(t, models.StepStatusFailed, stepResult(t, record, models.StepWriteScript).Status)

	other, err := h.orchestrator.Status(ctx, "2026-02-10")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, other.Status)

	active, err := h.store.ActiveRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	events, err := h.orchestrator.Events(ctx, runDate, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Terminal())
}

func TestList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, date := range []string{"2026-02-09", "2026-02-11", "2026-02-10"} {
		require.NoError(t, h.store.Save(ctx, testutil.CreateTestRun(date, testutil.WithStatus(models.RunStatusSucceeded))))
	}

	records, err := h.orchestrator.List(ctx, models.DateRange{From: "2026-02-10"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2026-02-11", records[0].ID)
	assert.Equal(t, "2026-02-10", records[1].ID)

	_, err = h.orchestrator.List(ctx, models.DateRange{To: "yesterday"})
	assert.True(t, pipeline.IsInvalidDate(err))
}

func TestBundleFile(t *testing.T) {
	h := newHarness(t)
	h.expectProduction()

	h.run(t, models.RunModeDryRun)

	ctx := context.Background()

	path, err := h.orchestrator.BundleFile(ctx, runDate, models.VideoFile)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.outputRoot, runDate, models.VideoFile), path)

	for _, name := range []string{"../" + runDate + ".json", models.UploadManifest, ".partial-video.mp4"} {
		_, err = h.orchestrator.BundleFile(ctx, runDate, name)
		assert.True(t, pipeline.IsNotFound(err), name)
	}

	_, err = h.orchestrator.Bundle(ctx, "2026-01-01")
	assert.True(t, pipeline.IsNotFound(err))
}

func TestShutdown_StopsActiveRun(t *testing.T) {
	h := newHarness(t)

	started := make(chan struct{})
	release := make(chan struct{})

	h.adapters.On("FetchNews", mock.Anything, 20).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(testHeadlines, nil)

	_, err := h.orchestrator.StartRun(context.Background(), runDate, models.RunModeDryRun)
	require.NoError(t, err)

	<-started

	done := make(chan error, 1)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		done <- h.orchestrator.Shutdown(ctx)
	}()

	close(release)
	require.NoError(t, <-done)

	record, err := h.orchestrator.Status(context.Background(), runDate)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusStopped, record.Status)

	_, err = h.orchestrator.StartRun(context.Background(), runDate, models.RunModeDryRun)
	assert.ErrorIs(t, err, pipeline.ErrShuttingDown)
}

func TestEventBusPublishing(t *testing.T) {
	publisher := &mocks.MockEventPublisher{}
	publisher.On("GenerateID").Return("evt")
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Base().RunID == runDate
	})).Return(errors.New("broker down"))

	h := newHarness(t, pipeline.WithPublisher(publisher))
	h.expectProduction()

	record := h.run(t, models.RunModeDryRun)

	assert.Equal(t, models.RunStatusSucceeded, record.Status)
	publisher.AssertNumberOfCalls(t, "Publish", int(record.LastSeq))
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.orchestrator.HealthCheck(context.Background()))
}

func TestStartRun_FullRunPublishesShortAndSummary(t *testing.T) {
	h := newReportingHarness(t)
	h.expectProduction()
	h.expectUpload()
	h.expectCrossPost()
	h.expectShort()
	h.expectShortUpload()
	h.adapters.On("Summary", mock.Anything, mock.MatchedBy(func(s models.RunSummary) bool {
		return s.Date == runDate &&
			s.Title == testScript.Title &&
			s.URL == "https://www.youtube.com/watch?v=abc123" &&
			s.ShortURL == "https://www.youtube.com/watch?v=def456" &&
			len(s.Steps) == len(models.Steps)
	})).Return(nil).Once()

	record := h.run(t, models.RunModeFull)

	assert.Equal(t, models.RunStatusSucceeded, record.Status)
	h.adapters.AssertNumberOfCalls(t, "Upload", 2)
	h.adapters.AssertExpectations(t)

	var shortUpload models.UploadRequest
	for _, call := range h.adapters.Calls {
		if call.Method == "Upload" {
			req := call.Arguments.Get(1).(models.UploadRequest)
			if filepath.Base(req.VideoPath) == models.ShortFile {
				shortUpload = req
			}
		}
	}

	assert.Equal(t, testScript.Title+" #Shorts", shortUpload.Title)
	assert.True(t, strings.HasSuffix(shortUpload.Description, "\n\n#Shorts"))
	assert.Equal(t, []string{"news", "india", "Shorts"}, shortUpload.Tags)
	assert.Empty(t, shortUpload.ThumbnailPath)

	data, err := os.ReadFile(filepath.Join(h.outputRoot, runDate, models.ShortManifest))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"platform_video_id": "def456"`)
}

func TestStartRun_ShortFailureIsNonFatal(t *testing.T) {
	h := newReportingHarness(t)
	h.expectProduction()
	h.expectUpload()
	h.expectCrossPost()
	h.adapters.On("ShortClip", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.Short{}, adapters.Permanent(adapters.CodeCompositionFailed, "ffmpeg failed to cut short", nil))
	h.adapters.On("Summary", mock.Anything, mock.MatchedBy(func(s models.RunSummary) bool {
		return s.ShortURL == "" && s.URL == "https://www.youtube.com/watch?v=abc123"
	})).Return(adapters.Transient(adapters.CodeNotifyFailed, "all channels failed", nil))

	record := h.run(t, models.RunModeFull)

	assert.Equal(t, models.RunStatusSucceeded, record.Status)
	assert.Empty(t, record.Error)
	h.adapters.AssertNumberOfCalls(t, "Upload", 1)
	h.adapters.AssertNumberOfCalls(t, "Summary", 1)
	h.adapters.AssertNotCalled(t, "Alert", mock.Anything, mock.Anything, mock.Anything)

	data, err := os.ReadFile(filepath.Join(h.outputRoot, runDate, models.ShortManifest))
	require.NoError(t, err)
	assert.Contains(t, string(data), "CompositionFailed: ffmpeg failed to cut short")
}

func TestStartRun_DryRunSkipsShortAndSummary(t *testing.T) {
	h := newReportingHarness(t)
	h.expectProduction()

	record := h.run(t, models.RunModeDryRun)

	assert.Equal(t, models.RunStatusSucceeded, record.Status)
	h.adapters.AssertNotCalled(t, "ShortClip", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.adapters.AssertNotCalled(t, "Summary", mock.Anything, mock.Anything)

	_, err := os.Stat(filepath.Join(h.outputRoot, runDate, models.ShortManifest))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStartRun_FailedRunAlertsWithoutSummary(t *testing.T) {
	h := newReportingHarness(t)
	h.expectProduction()
	h.adapters.On("Upload", mock.Anything, mock.Anything).
		Return(models.Upload{}, adapters.Permanent(adapters.CodeQuotaExceeded, "upload quota exhausted", nil))
	h.adapters.On("Alert", mock.Anything, runDate, mock.Anything).Return(nil).Once()

	record := h.run(t, models.RunModeFull)

	assert.Equal(t, models.RunStatusFailed, record.Status)
	h.adapters.AssertNotCalled(t, "ShortClip", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.adapters.AssertNotCalled(t, "Summary", mock.Anything, mock.Anything)
	h.adapters.AssertExpectations(t)
}

func TestStartRun_ManifestWriteFailureHasItsOwnCode(t *testing.T) {
	h := newHarness(t)
	h.expectNews()
	h.expectScript()
	h.adapters.On("SynthesizeVoice", mock.Anything, testScript.Body, mock.Anything).
		Run(func(args mock.Arguments) {
			writeFiles(models.NarrationAudio, models.NarrationCaptions)(args)

			// A directory in the manifest's place makes the final rename fail.
			if err := os.MkdirAll(filepath.Join(args.String(2), models.NarrationManifest), 0750); err != nil {
				panic(err)
			}
		}).
		Return(models.Narration{AudioRef: models.NarrationAudio, SubtitleRef: models.NarrationCaptions}, nil)

	record := h.run(t, models.RunModeDryRun)

	assert.Equal(t, models.RunStatusFailed, record.Status)
	assert.Equal(t, models.StepSynthesizeVoice, record.FailedStep)

	voice := stepResult(t, record, models.StepSynthesizeVoice)
	assert.Equal(t, string(adapters.CodeArtifactWriteFailed), voice.ErrorCode)
	assert.Equal(t, models.ErrorKindTransient, voice.ErrorKind)
	assert.Equal(t, 3, voice.AttemptCount)
	assert.True(t, strings.HasPrefix(voice.Error, "ArtifactWriteFailed: failed to write "+models.NarrationManifest))
}
