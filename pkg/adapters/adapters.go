// Package adapters defines the external collaborators invoked by the pipeline, one per step.
package adapters

import (
	"context"

	"github.com/dukex/dailyreel/pkg/models"
)

type NewsFetcher interface {
	FetchNews(ctx context.Context, maxArticles int) ([]models.Headline, error)
}

type ScriptWriter interface {
	WriteScript(ctx context.Context, date string, headlines []models.Headline) (models.Script, error)
}

// VoiceSynthesizer writes narration audio and subtitles into dir and returns their file names.
type VoiceSynthesizer interface {
	SynthesizeVoice(ctx context.Context, bodyText, dir string) (models.Narration, error)
}

// VideoBuilder composes the narration and subtitles found in dir into a video file in dir.
type VideoBuilder interface {
	BuildVideo(ctx context.Context, narration models.Narration, script models.Script, dir string) (models.Video, error)
}

type ThumbnailBuilder interface {
	BuildThumbnail(ctx context.Context, title, dir string) (models.Thumbnail, error)
}

type Uploader interface {
	Upload(ctx context.Context, req models.UploadRequest) (models.Upload, error)
}

type CrossPoster interface {
	CrossPost(ctx context.Context, platformVideoID, title string) error
}

// Alerter delivers an out-of-band message when a run fails.
type Alerter interface {
	Alert(ctx context.Context, date, message string) error
}

// ShortClipper cuts a vertical clip from the video in dir, starting a few seconds in.
type ShortClipper interface {
	ShortClip(ctx context.Context, video models.Video, script models.Script, dir string) (models.Short, error)
}

// Reporter sends the per-step summary of a succeeded full run.
type Reporter interface {
	Summary(ctx context.Context, summary models.RunSummary) error
}

// Set bundles one adapter per step. Alerter, Shorts and Reporter are optional.
type Set struct {
	News      NewsFetcher
	Script    ScriptWriter
	Voice     VoiceSynthesizer
	Video     VideoBuilder
	Thumbnail ThumbnailBuilder
	Upload    Uploader
	CrossPost CrossPoster
	Alerter   Alerter
	Shorts    ShortClipper
	Reporter  Reporter
}
