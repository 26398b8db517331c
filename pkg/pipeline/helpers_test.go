package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/mocks"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/persistence"
	"github.com/dukex/dailyreel/pkg/persistence/file"
	"github.com/dukex/dailyreel/pkg/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const runDate = "2026-02-11"

var (
	testNow = time.Date(2026, 2, 11, 6, 0, 0, 0, time.UTC)

	testHeadlines = []models.Headline{
		{Title: "Monsoon arrives early", Link: "https://example.com/monsoon", Source: "The Hindu"},
		{Title: "Markets close higher", Link: "https://example.com/markets", Source: "Mint"},
	}

	testScript = models.Script{
		Title:           "Daily Brief: Monsoon and Markets",
		Description:     "Today's top stories.",
		Tags:            []string{"news", "india"},
		Body:            "Good morning. The monsoon arrived early today.",
		DurationSeconds: 60,
	}
)

type harness struct {
	orchestrator *pipeline.Orchestrator
	adapters     *mocks.MockAdapters
	store        persistence.RunStore
	outputRoot   string
}

func newHarness(t *testing.T, opts ...pipeline.Option) *harness {
	t.Helper()

	return newHarnessWithStore(t, file.NewPersistence(t.TempDir()), opts...)
}

func newHarnessWithStore(t *testing.T, store persistence.RunStore, opts ...pipeline.Option) *harness {
	t.Helper()

	return buildHarness(t, store, nil, opts...)
}

// newReportingHarness also wires the mock as the short clipper and the summary reporter.
func newReportingHarness(t *testing.T) *harness {
	t.Helper()

	return buildHarness(t, file.NewPersistence(t.TempDir()), func(set *adapters.Set, m *mocks.MockAdapters) {
		set.Shorts = m
		set.Reporter = m
	})
}

func buildHarness(t *testing.T, store persistence.RunStore, configure func(*adapters.Set, *mocks.MockAdapters), opts ...pipeline.Option) *harness {
	t.Helper()

	outputRoot := t.TempDir()
	m := &mocks.MockAdapters{}

	set := m.Set()
	if configure != nil {
		configure(&set, m)
	}

	cfg := pipeline.DefaultConfig()
	cfg.OutputRoot = outputRoot
	cfg.Backoff = pipeline.Backoff{}

	opts = append([]pipeline.Option{
		pipeline.WithClock(fakeClock()),
		pipeline.WithOwner("test-host:1"),
	}, opts...)

	o := pipeline.New(store, set, cfg, opts...)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = o.Shutdown(ctx)
	})

	return &harness{
		orchestrator: o,
		adapters:     m,
		store:        store,
		outputRoot:   outputRoot,
	}
}

// writeFiles returns a mock Run func creating names in the directory passed as the last argument.
func writeFiles(names ...string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		dir := args.String(len(args) - 1)

		for _, name := range names {
			if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0600); err != nil {
				panic(err)
			}
		}
	}
}

func (h *harness) expectNews() *mock.Call {
	return h.adapters.On("FetchNews", mock.Anything, 20).Return(testHeadlines, nil)
}

func (h *harness) expectScript() *mock.Call {
	return h.adapters.On("WriteScript", mock.Anything, runDate, testHeadlines).Return(testScript, nil)
}

func (h *harness) expectVoice() *mock.Call {
	return h.adapters.On("SynthesizeVoice", mock.Anything, testScript.Body, mock.Anything).
		Run(writeFiles(models.NarrationAudio, models.NarrationCaptions)).
		Return(models.Narration{AudioRef: models.NarrationAudio, SubtitleRef: models.NarrationCaptions}, nil)
}

func (h *harness) expectVideo() *mock.Call {
	return h.adapters.On("BuildVideo", mock.Anything, mock.Anything, testScript, mock.Anything).
		Run(writeFiles(models.VideoFile)).
		Return(models.Video{VideoRef: models.VideoFile}, nil)
}

func (h *harness) expectThumbnail() *mock.Call {
	return h.adapters.On("BuildThumbnail", mock.Anything, testScript.Title, mock.Anything).
		Run(writeFiles(models.ThumbnailFile)).
		Return(models.Thumbnail{ThumbnailRef: models.ThumbnailFile}, nil)
}

func (h *harness) expectUpload() *mock.Call {
	return h.adapters.On("Upload", mock.Anything, mock.MatchedBy(func(req models.UploadRequest) bool {
		return req.Title == testScript.Title && filepath.Base(req.VideoPath) == models.VideoFile
	})).Return(models.Upload{PlatformVideoID: "abc123", URL: "https://www.youtube.com/watch?v=abc123"}, nil)
}

func (h *harness) expectCrossPost() *mock.Call {
	return h.adapters.On("CrossPost", mock.Anything, "abc123", testScript.Title).Return(nil)
}

func (h *harness) expectShort() *mock.Call {
	return h.adapters.On("ShortClip", mock.Anything, models.Video{VideoRef: models.VideoFile}, testScript, mock.Anything).
		Run(writeFiles(models.ShortFile)).
		Return(models.Short{ClipRef: models.ShortFile}, nil)
}

func (h *harness) expectShortUpload() *mock.Call {
	return h.adapters.On("Upload", mock.Anything, mock.MatchedBy(func(req models.UploadRequest) bool {
		return filepath.Base(req.VideoPath) == models.ShortFile
	})).Return(models.Upload{PlatformVideoID: "def456", URL: "https://www.youtube.com/watch?v=def456"}, nil)
}

// expectProduction sets up every step before upload to succeed.
func (h *harness) expectProduction() {
	h.expectNews()
	h.expectScript()
	h.expectVoice()
	h.expectVideo()
	h.expectThumbnail()
}

func fakeClock() clockwork.Clock {
	return clockwork.NewFakeClockAt(testNow)
}

func (h *harness) run(t *testing.T, mode models.RunMode) *models.RunRecord {
	t.Helper()

	ctx := context.Background()

	runID, err := h.orchestrator.StartRun(ctx, runDate, mode)
	require.NoError(t, err)
	require.Equal(t, runDate, runID)

	return h.wait(t, runID)
}

func (h *harness) wait(t *testing.T, runID string) *models.RunRecord {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record, err := h.orchestrator.Wait(ctx, runID)
	require.NoError(t, err)

	return record
}

func stepStatuses(record *models.RunRecord) map[models.StepName]models.StepStatus {
	statuses := make(map[models.StepName]models.StepStatus, len(record.Steps))
	for _, s := range record.Steps {
		statuses[s.Step] = s.Status
	}

	return statuses
}

func stepResult(t *testing.T, record *models.RunRecord, step models.StepName) models.StepResult {
	t.Helper()

	result, ok := record.Step(step)
	require.True(t, ok, "no result for %s", step)

	return result
}
