package models

import "time"

// Artifact file names inside a date's output directory.
const (
	HeadlinesManifest = "headlines.json"
	ScriptManifest    = "script.json"
	NarrationManifest = "narration.json"
	NarrationAudio    = "narration.mp3"
	NarrationCaptions = "subtitles.vtt"
	VideoManifest     = "video.json"
	VideoFile         = "video.mp4"
	ThumbnailManifest = "thumbnail.json"
	ThumbnailFile     = "thumbnail.png"
	UploadManifest    = "upload.json"
	CrossPostManifest = "cross_post.json"
	ShortManifest     = "short.json"
	ShortFile         = "short.mp4"
)

// Headline is a single news item used as script input.
type Headline struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Source      string     `json:"source,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Script is the narrated text plus the video metadata derived from it.
type Script struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags"`
	Body            string   `json:"body"`
	DurationSeconds int      `json:"duration_estimate_seconds"`
}

// Narration references are file names relative to the output directory.
type Narration struct {
	AudioRef    string `json:"audio_ref"`
	SubtitleRef string `json:"subtitle_ref"`
}

type Video struct {
	VideoRef string `json:"video_ref"`
}

type Thumbnail struct {
	ThumbnailRef string `json:"thumbnail_ref"`
}

// UploadRequest carries absolute paths to the artifacts being published.
type UploadRequest struct {
	VideoPath     string
	ThumbnailPath string
	Title         string
	Description   string
	Tags          []string
}

// Upload identifies the published video on the platform.
type Upload struct {
	PlatformVideoID string     `json:"platform_video_id"`
	URL             string     `json:"url,omitempty"`
	PublishAt       *time.Time `json:"publish_at,omitempty"`
}

type CrossPost struct {
	PostedAt time.Time `json:"posted_at"`
}

// Short is the vertical clip cut from the video and, once uploaded, its platform id.
type Short struct {
	ClipRef         string `json:"clip_ref"`
	PlatformVideoID string `json:"platform_video_id,omitempty"`
	URL             string `json:"url,omitempty"`
	Error           string `json:"error,omitempty"`
}

// RunSummary is the per-step report sent after a full run succeeds.
type RunSummary struct {
	Date     string
	Title    string
	URL      string
	ShortURL string
	Steps    []StepResult
}
