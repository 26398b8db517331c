// Package video composes the narration into a video with ffmpeg.
package video

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/models"
)

type Config struct {
	FFmpegPath string
	Width      int
	Height     int
	FPS        int
	Background string // ffmpeg color, e.g. 0x1A1A2E
	FontSize   int
	Short      ShortConfig
}

// ShortConfig sizes the vertical clip. Zero fields take 1080x1920 and 60 seconds.
type ShortConfig struct {
	Width   int
	Height  int
	Seconds int
}

// maxShortLead is the most the clip skips at the start of the video.
const maxShortLead = 5.0

// Builder renders a solid background with burned-in subtitles under the narration audio.
type Builder struct {
	cfg    Config
	runner adapters.Runner
	logger *slog.Logger
}

func NewBuilder(cfg Config, runner adapters.Runner, logger *slog.Logger) *Builder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}

	if cfg.Short.Width <= 0 || cfg.Short.Height <= 0 {
		cfg.Short.Width, cfg.Short.Height = 1080, 1920
	}

	if cfg.Short.Seconds <= 0 {
		cfg.Short.Seconds = 60
	}

	return &Builder{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("module", "video"),
	}
}

// Args returns the ffmpeg arguments, relative to the run directory.
func (b *Builder) Args(narration models.Narration, script models.Script) []string {
	size := fmt.Sprintf("%dx%d", b.cfg.Width, b.cfg.Height)
	style := fmt.Sprintf("subtitles=%s:force_style='Alignment=2,FontSize=%d,Outline=2'", narration.SubtitleRef, b.cfg.FontSize)

	return []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=%s:r=%d", b.cfg.Background, size, b.cfg.FPS),
		"-i", narration.AudioRef,
		"-vf", style,
		"-shortest",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-r", strconv.Itoa(b.cfg.FPS),
		"-metadata", "title=" + script.Title,
		"-f", "mp4",
		filepath.Base(adapters.PartialPath(".", models.VideoFile)),
	}
}

func (b *Builder) BuildVideo(ctx context.Context, narration models.Narration, script models.Script, dir string) (models.Video, error) {
	if narration.AudioRef == "" || narration.SubtitleRef == "" {
		return models.Video{}, adapters.Permanent(adapters.CodeMalformedInput, "narration references are missing", nil)
	}

	b.logger.InfoContext(ctx, "Composing video", "width", b.cfg.Width, "height", b.cfg.Height, "fps", b.cfg.FPS)

	_, err := b.runner.Run(ctx, dir, b.cfg.FFmpegPath, b.Args(narration, script)...)
	if err != nil {
		adapters.Discard(dir, models.VideoFile)

		return models.Video{}, adapters.CommandError(ctx, adapters.CodeCompositionFailed, "ffmpeg failed", err, false)
	}

	err = adapters.Commit(dir, models.VideoFile)
	if err != nil {
		return models.Video{}, adapters.Permanent(adapters.CodeCompositionFailed, "ffmpeg produced no video", err)
	}

	return models.Video{VideoRef: models.VideoFile}, nil
}

// ShortStart is where the clip begins: five seconds in, or 5% of a shorter video.
func ShortStart(durationSeconds int) float64 {
	return math.Min(maxShortLead, float64(durationSeconds)*0.05)
}

// ShortArgs returns the ffmpeg arguments that center-crop video to the short's
// aspect ratio, scale it and keep at most Short.Seconds.
func (b *Builder) ShortArgs(video models.Video, script models.Script) []string {
	w, h := b.cfg.Short.Width, b.cfg.Short.Height
	filter := fmt.Sprintf(`crop=w='min(iw\,ih*%d/%d)':h='min(ih\,iw*%d/%d)',scale=%d:%d,setsar=1`, w, h, h, w, w, h)

	return []string{
		"-y",
		"-ss", strconv.FormatFloat(ShortStart(script.DurationSeconds), 'f', 2, 64),
		"-i", video.VideoRef,
		"-t", strconv.Itoa(b.cfg.Short.Seconds),
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-metadata", "title=" + script.Title,
		"-f", "mp4",
		filepath.Base(adapters.PartialPath(".", models.ShortFile)),
	}
}

// ShortClip cuts the vertical clip out of the composed video.
func (b *Builder) ShortClip(ctx context.Context, video models.Video, script models.Script, dir string) (models.Short, error) {
	if video.VideoRef == "" {
		return models.Short{}, adapters.Permanent(adapters.CodeMalformedInput, "video reference is missing", nil)
	}

	b.logger.InfoContext(ctx, "Cutting short clip", "width", b.cfg.Short.Width, "height", b.cfg.Short.Height, "seconds", b.cfg.Short.Seconds)

	_, err := b.runner.Run(ctx, dir, b.cfg.FFmpegPath, b.ShortArgs(video, script)...)
	if err != nil {
		adapters.Discard(dir, models.ShortFile)

		return models.Short{}, adapters.CommandError(ctx, adapters.CodeCompositionFailed, "ffmpeg failed to cut short", err, false)
	}

	err = adapters.Commit(dir, models.ShortFile)
	if err != nil {
		return models.Short{}, adapters.Permanent(adapters.CodeCompositionFailed, "ffmpeg produced no short", err)
	}

	return models.Short{ClipRef: models.ShortFile}, nil
}
