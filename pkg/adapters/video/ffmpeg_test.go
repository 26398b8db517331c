package video_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/adapters/video"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func (f runnerFunc) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	return f(ctx, dir, name, args...)
}

var (
	narration = models.Narration{AudioRef: models.NarrationAudio, SubtitleRef: models.NarrationCaptions}
	script    = models.Script{Title: "Morning Brief", Body: "Good morning."}
	config    = video.Config{Width: 1080, Height: 1920, FPS: 24, Background: "0x1A1A2E", FontSize: 14}
)

func TestBuilder_Args(t *testing.T) {
	builder := video.NewBuilder(config, adapters.ExecRunner{}, slog.Default())

	args := builder.Args(narration, script)

	assert.Contains(t, args, "color=c=0x1A1A2E:s=1080x1920:r=24")
	assert.Contains(t, args, models.NarrationAudio)
	assert.Contains(t, args, "title=Morning Brief")
	assert.Equal(t, ".partial-video.mp4", args[len(args)-1])
}

func TestBuilder_BuildVideo(t *testing.T) {
	dir := t.TempDir()

	runner := runnerFunc(func(_ context.Context, runDir, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "ffmpeg", name)
		require.NoError(t, os.WriteFile(filepath.Join(runDir, args[len(args)-1]), []byte("mp4"), 0600))

		return nil, nil
	})

	got, err := video.NewBuilder(config, runner, slog.Default()).BuildVideo(context.Background(), narration, script, dir)
	require.NoError(t, err)
	assert.Equal(t, models.VideoFile, got.VideoRef)
	assert.FileExists(t, filepath.Join(dir, models.VideoFile))
}

func TestBuilder_FailureIsPermanent(t *testing.T) {
	runner := runnerFunc(func(context.Context, string, string, ...string) ([]byte, error) {
		return []byte("Invalid data found"), errors.New("exit status 1")
	})

	_, err := video.NewBuilder(config, runner, slog.Default()).BuildVideo(context.Background(), narration, script, t.TempDir())

	adapterErr, ok := adapters.AsError(err)
	require.True(t, ok)
	assert.Equal(t, adapters.CodeCompositionFailed, adapterErr.Code)
	assert.False(t, adapterErr.Retryable)
}

func TestBuilder_MissingNarration(t *testing.T) {
	_, err := video.NewBuilder(config, adapters.ExecRunner{}, slog.Default()).BuildVideo(context.Background(), models.Narration{}, script, t.TempDir())
	assert.True(t, adapters.HasCode(err, adapters.CodeMalformedInput))
}

func TestShortStart(t *testing.T) {
	assert.InDelta(t, 5.0, video.ShortStart(300), 0.001)
	assert.InDelta(t, 2.0, video.ShortStart(40), 0.001)
	assert.Zero(t, video.ShortStart(0))
}

func TestBuilder_ShortArgs(t *testing.T) {
	builder := video.NewBuilder(config, adapters.ExecRunner{}, slog.Default())

	args := builder.ShortArgs(models.Video{VideoRef: models.VideoFile}, models.Script{Title: "Morning Brief", DurationSeconds: 300})

	assert.Equal(t, []string{"-ss", "5.00", "-i", models.VideoFile, "-t", "60"}, args[1:7])
	assert.Contains(t, args, `crop=w='min(iw\,ih*1080/1920)':h='min(ih\,iw*1920/1080)',scale=1080:1920,setsar=1`)
	assert.Equal(t, ".partial-short.mp4", args[len(args)-1])
}

func TestBuilder_ShortArgsCustomSize(t *testing.T) {
	cfg := config
	cfg.Short = video.ShortConfig{Width: 720, Height: 1280, Seconds: 30}

	args := video.NewBuilder(cfg, adapters.ExecRunner{}, slog.Default()).ShortArgs(models.Video{VideoRef: models.VideoFile}, script)

	assert.Contains(t, args, "30")
	assert.Contains(t, args, `crop=w='min(iw\,ih*720/1280)':h='min(ih\,iw*1280/720)',scale=720:1280,setsar=1`)
}

func TestBuilder_ShortClip(t *testing.T) {
	dir := t.TempDir()

	runner := runnerFunc(func(_ context.Context, runDir, _ string, args ...string) ([]byte, error) {
		assert.Contains(t, args, models.VideoFile)
		require.NoError(t, os.WriteFile(filepath.Join(runDir, args[len(args)-1]), []byte("mp4"), 0600))

		return nil, nil
	})

	got, err := video.NewBuilder(config, runner, slog.Default()).ShortClip(context.Background(), models.Video{VideoRef: models.VideoFile}, script, dir)
	require.NoError(t, err)
	assert.Equal(t, models.ShortFile, got.ClipRef)
	assert.FileExists(t, filepath.Join(dir, models.ShortFile))
	assert.NoFileExists(t, filepath.Join(dir, ".partial-short.mp4"))
}

func TestBuilder_ShortClipFailure(t *testing.T) {
	dir := t.TempDir()

	runner := runnerFunc(func(_ context.Context, runDir string, _ string, args ...string) ([]byte, error) {
		require.NoError(t, os.WriteFile(filepath.Join(runDir, args[len(args)-1]), []byte("half"), 0600))

		return []byte("Invalid data found"), errors.New("exit status 1")
	})

	_, err := video.NewBuilder(config, runner, slog.Default()).ShortClip(context.Background(), models.Video{VideoRef: models.VideoFile}, script, dir)
	assert.True(t, adapters.HasCode(err, adapters.CodeCompositionFailed))
	assert.NoFileExists(t, filepath.Join(dir, ".partial-short.mp4"))
	assert.NoFileExists(t, filepath.Join(dir, models.ShortFile))

	_, err = video.NewBuilder(config, runner, slog.Default()).ShortClip(context.Background(), models.Video{}, script, dir)
	assert.True(t, adapters.HasCode(err, adapters.CodeMalformedInput))
}
