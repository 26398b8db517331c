// Package upload publishes the composed video to YouTube through the Data API v3.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Config holds the OAuth refresh credentials and the publishing defaults.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CategoryID   string
	Privacy      string
	Language     string
	// Schedule uploads privately and publishes at the next PublishHour:PublishMinute.
	Schedule      bool
	PublishHour   int
	PublishMinute int
	Location      *time.Location
	Tags          []string
	// Endpoint overrides the API base URL.
	Endpoint string
}

// Uploader inserts the video, schedules it and sets its thumbnail.
type Uploader struct {
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewUploader(cfg Config, clock clockwork.Clock, logger *slog.Logger) *Uploader {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Uploader{
		cfg:    cfg,
		clock:  clock,
		logger: logger.With("module", "upload"),
	}
}

func (u *Uploader) service(ctx context.Context) (*youtube.Service, error) {
	if u.cfg.ClientID == "" || u.cfg.ClientSecret == "" || u.cfg.RefreshToken == "" {
		return nil, adapters.Permanent(adapters.CodeAuthInvalid,
			"YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET or YOUTUBE_REFRESH_TOKEN not set", nil)
	}

	conf := &oauth2.Config{
		ClientID:     u.cfg.ClientID,
		ClientSecret: u.cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}

	token := &oauth2.Token{
		RefreshToken: u.cfg.RefreshToken,
		Expiry:       u.clock.Now().Add(-time.Hour),
	}

	opts := []option.ClientOption{option.WithHTTPClient(conf.Client(ctx, token))}
	if u.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(u.cfg.Endpoint))
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, adapters.Permanent(adapters.CodeUploadFailed, "failed to create YouTube client", err)
	}

	return svc, nil
}

// Upload inserts the video as a scheduled private upload.
func (u *Uploader) Upload(ctx context.Context, req models.UploadRequest) (models.Upload, error) {
	svc, err := u.service(ctx)
	if err != nil {
		return models.Upload{}, err
	}

	f, err := os.Open(req.VideoPath)
	if err != nil {
		return models.Upload{}, adapters.Permanent(adapters.CodeMalformedInput, "failed to open video", err)
	}

	defer func() {
		_ = f.Close()
	}()

	publishAt := NextPublishTime(u.clock.Now(), u.cfg.PublishHour, u.cfg.PublishMinute, u.cfg.Location)

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                req.Title,
			Description:          req.Description,
			Tags:                 mergeTags(req.Tags, u.cfg.Tags),
			CategoryId:           u.cfg.CategoryID,
			DefaultLanguage:      u.cfg.Language,
			DefaultAudioLanguage: u.cfg.Language,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           u.cfg.Privacy,
			SelfDeclaredMadeForKids: false,
		},
	}

	// Scheduling requires a private video; it flips to public at publishAt.
	if u.cfg.Schedule {
		video.Status.PrivacyStatus = "private"
		video.Status.PublishAt = publishAt.UTC().Format(time.RFC3339)
	}

	u.logger.InfoContext(ctx, "Uploading video", "title", req.Title, "publish_at", publishAt)

	inserted, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(f).Context(ctx).Do()
	if err != nil {
		return models.Upload{}, Classify(err)
	}

	if req.ThumbnailPath != "" {
		u.setThumbnail(ctx, svc, inserted.Id, req.ThumbnailPath)
	}

	result := models.Upload{
		PlatformVideoID: inserted.Id,
		URL:             "https://www.youtube.com/watch?v=" + inserted.Id,
	}

	if video.Status.PublishAt != "" {
		result.PublishAt = &publishAt
	}

	return result, nil
}

// setThumbnail is best effort: unverified channels cannot set custom thumbnails.
func (u *Uploader) setThumbnail(ctx context.Context, svc *youtube.Service, videoID, path string) {
	f, err := os.Open(path) // #nosec G304 -- path points into the run directory
	if err != nil {
		u.logger.WarnContext(ctx, "Failed to open thumbnail", "error", err)

		return
	}

	defer func() {
		_ = f.Close()
	}()

	_, err = svc.Thumbnails.Set(videoID).Media(f).Context(ctx).Do()
	if err != nil {
		u.logger.WarnContext(ctx, "Failed to set thumbnail", "video_id", videoID, "error", err)
	}
}

// NextPublishTime returns today's hour:minute in loc, or tomorrow's when that moment has passed.
func NextPublishTime(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	scheduled := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)

	if !scheduled.After(local) {
		scheduled = scheduled.AddDate(0, 0, 1)
	}

	return scheduled
}

// Classify maps YouTube and OAuth failures onto adapter errors.
func Classify(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return adapters.Permanent(adapters.CodeAuthInvalid, "refresh token rejected", err)
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return adapters.Transient(adapters.CodeUploadFailed, "upload request failed", err)
	}

	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "quotaExceeded", "dailyLimitExceeded", "uploadLimitExceeded":
			return adapters.Permanent(adapters.CodeQuotaExceeded, "upload quota exhausted", err)
		case "rateLimitExceeded", "userRateLimitExceeded":
			return adapters.Transient(adapters.CodeUploadFailed, "upload rate limited", err)
		}
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return adapters.Permanent(adapters.CodeAuthInvalid, fmt.Sprintf("YouTube rejected credentials (%d)", apiErr.Code), err)
	case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
		return adapters.Transient(adapters.CodeUploadFailed, fmt.Sprintf("YouTube unavailable (%d)", apiErr.Code), err)
	default:
		return adapters.Permanent(adapters.CodeUploadFailed, fmt.Sprintf("YouTube rejected the upload (%d)", apiErr.Code), err)
	}
}

func mergeTags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	tags := []string{}

	for _, list := range lists {
		for _, tag := range list {
			if _, ok := seen[tag]; ok || tag == "" {
				continue
			}

			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}

	return tags
}
