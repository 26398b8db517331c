package pipeline

import (
	"context"
	"slices"
	"strings"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

const (
	shortsMarker   = "#Shorts"
	maxTitleLength = 100
)

// publishShort cuts and uploads the vertical clip, once per date. The outcome
// lands in the short manifest; a failure never changes the run status.
func (o *Orchestrator) publishShort(ctx context.Context, ar *activeRun) {
	if o.adapters.Shorts == nil || o.adapters.Upload == nil {
		return
	}

	logger := o.logger.With("run_id", ar.id)

	var previous models.Short
	if err := readManifest(ar.dir, models.ShortManifest, &previous); err == nil && previous.PlatformVideoID != "" {
		logger.InfoContext(ctx, "Short already published", "platform_video_id", previous.PlatformVideoID)

		return
	}

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "pipeline.short",
		attribute.String(otelhelper.RunIDKey, ar.id),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.ShortTimeout)
	defer cancel()

	short, err := o.short(ctx, ar.dir)
	if err != nil {
		short.Error = Summary(err)

		otelhelper.SetError(span, otelhelper.ShortFailedEvent, err, attribute.String(otelhelper.ErrorCodeKey, ErrorCode(err)))
		logger.WarnContext(ctx, "Short not published, run continues", "error", err)
	} else {
		logger.InfoContext(ctx, "Short published", "platform_video_id", short.PlatformVideoID)
	}

	if err := writeManifest(ar.dir, models.ShortManifest, short); err != nil {
		logger.WarnContext(ctx, "Failed to write "+models.ShortManifest, "error", err)
	}
}

func (o *Orchestrator) short(ctx context.Context, dir string) (models.Short, error) {
	var (
		script models.Script
		video  models.Video
	)

	if err := readManifest(dir, models.ScriptManifest, &script); err != nil {
		return models.Short{}, err
	}

	if err := readManifest(dir, models.VideoManifest, &video); err != nil {
		return models.Short{}, err
	}

	short, err := o.adapters.Shorts.ShortClip(ctx, video, script, dir)
	if err != nil {
		return models.Short{}, err
	}

	clipPath, err := artifactPath(dir, short.ClipRef)
	if err != nil {
		return short, err
	}

	result, err := o.adapters.Upload.Upload(ctx, models.UploadRequest{
		VideoPath:   clipPath,
		Title:       shortTitle(script.Title),
		Description: strings.TrimSpace(script.Description + "\n\n" + shortsMarker),
		Tags:        append(slices.Clone(script.Tags), "Shorts"),
	})
	if err != nil {
		return short, err
	}

	short.PlatformVideoID = result.PlatformVideoID
	short.URL = result.URL

	return short, nil
}

// shortTitle appends the #Shorts marker, cutting the title so the marker fits the platform limit.
func shortTitle(title string) string {
	limit := maxTitleLength - len(shortsMarker) - 1

	runes := []rune(strings.TrimSpace(title))
	if len(runes) > limit {
		runes = runes[:limit]
	}

	return strings.TrimSpace(string(runes)) + " " + shortsMarker
}

// report sends the per-step summary of a succeeded full run, best effort.
func (o *Orchestrator) report(ctx context.Context, ar *activeRun) {
	if o.adapters.Reporter == nil {
		return
	}

	summary := models.RunSummary{Date: ar.id}

	ar.mu.Lock()
	for _, step := range ar.record.Steps {
		summary.Steps = append(summary.Steps, step.Clone())
	}
	ar.mu.Unlock()

	var (
		script models.Script
		upload models.Upload
		short  models.Short
	)

	if readManifest(ar.dir, models.ScriptManifest, &script) == nil {
		summary.Title = script.Title
	}

	if readManifest(ar.dir, models.UploadManifest, &upload) == nil {
		summary.URL = upload.URL
	}

	if readManifest(ar.dir, models.ShortManifest, &short) == nil {
		summary.ShortURL = short.URL
	}

	ctx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()

	err := o.adapters.Reporter.Summary(ctx, summary)
	if err != nil {
		o.logger.WarnContext(ctx, "Daily summary not delivered", "run_id", ar.id, "error", err)
	}
}
