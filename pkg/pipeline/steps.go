package pipeline

import (
	"context"
	"path/filepath"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/models"
)

// stepInput is what a step may read: the run identity and the run directory.
type stepInput struct {
	date string
	dir  string
}

var errNotConfigured = adapters.Permanent(adapters.CodeMalformedInput, "adapter not configured", nil)

// invokeStep calls the adapter for step with inputs taken from earlier manifests,
// then writes the step's own manifest. It returns the manifest name.
func (o *Orchestrator) invokeStep(ctx context.Context, step models.StepName, in stepInput) (string, error) {
	var (
		output any
		err    error
	)

	switch step {
	case models.StepFetchNews:
		output, err = o.fetchNews(ctx)
	case models.StepWriteScript:
		output, err = o.writeScript(ctx, in)
	case models.StepSynthesizeVoice:
		output, err = o.synthesizeVoice(ctx, in)
	case models.StepBuildVideo:
		output, err = o.buildVideo(ctx, in)
	case models.StepBuildThumbnail:
		output, err = o.buildThumbnail(ctx, in)
	case models.StepUpload:
		output, err = o.upload(ctx, in)
	case models.StepCrossPost:
		output, err = o.crossPost(ctx, in)
	default:
		return "", adapters.Permanent(adapters.CodeMalformedInput, "unknown step "+string(step), nil)
	}

	if err != nil {
		return "", err
	}

	manifest := manifests[step]

	err = writeManifest(in.dir, manifest, output)
	if err != nil {
		return "", adapters.Transient(adapters.CodeArtifactWriteFailed, "failed to write "+manifest, err)
	}

	err = verify(in.dir, step)
	if err != nil {
		return "", err
	}

	return manifest, nil
}

func (o *Orchestrator) fetchNews(ctx context.Context) (any, error) {
	if o.adapters.News == nil {
		return nil, errNotConfigured
	}

	headlines, err := o.adapters.News.FetchNews(ctx, o.cfg.MaxArticles)
	if err != nil {
		return nil, err
	}

	if len(headlines) == 0 {
		return nil, adapters.Transient(adapters.CodeSourceUnavailable, "no headlines returned", nil)
	}

	return headlines, nil
}

func (o *Orchestrator) writeScript(ctx context.Context, in stepInput) (any, error) {
	if o.adapters.Script == nil {
		return nil, errNotConfigured
	}

	var headlines []models.Headline
	if err := readManifest(in.dir, models.HeadlinesManifest, &headlines); err != nil {
		return nil, err
	}

	script, err := o.adapters.Script.WriteScript(ctx, in.date, headlines)
	if err != nil {
		return nil, err
	}

	if script.Body == "" || script.Title == "" {
		return nil, adapters.Transient(adapters.CodeGenerationFailed, "script is missing a title or body", nil)
	}

	return script, nil
}

func (o *Orchestrator) synthesizeVoice(ctx context.Context, in stepInput) (any, error) {
	if o.adapters.Voice == nil {
		return nil, errNotConfigured
	}

	var script models.Script
	if err := readManifest(in.dir, models.ScriptManifest, &script); err != nil {
		return nil, err
	}

	return o.adapters.Voice.SynthesizeVoice(ctx, script.Body, in.dir)
}

func (o *Orchestrator) buildVideo(ctx context.Context, in stepInput) (any, error) {
	if o.adapters.Video == nil {
		return nil, errNotConfigured
	}

	var (
		script    models.Script
		narration models.Narration
	)

	if err := readManifest(in.dir, models.ScriptManifest, &script); err != nil {
		return nil, err
	}

	if err := readManifest(in.dir, models.NarrationManifest, &narration); err != nil {
		return nil, err
	}

	return o.adapters.Video.BuildVideo(ctx, narration, script, in.dir)
}

func (o *Orchestrator) buildThumbnail(ctx context.Context, in stepInput) (any, error) {
	if o.adapters.Thumbnail == nil {
		return nil, errNotConfigured
	}

	var script models.Script
	if err := readManifest(in.dir, models.ScriptManifest, &script); err != nil {
		return nil, err
	}

	return o.adapters.Thumbnail.BuildThumbnail(ctx, script.Title, in.dir)
}

func (o *Orchestrator) upload(ctx context.Context, in stepInput) (any, error) {
	if o.adapters.Upload == nil {
		return nil, errNotConfigured
	}

	var (
		script models.Script
		video  models.Video
		thumb  models.Thumbnail
	)

	if err := readManifest(in.dir, models.ScriptManifest, &script); err != nil {
		return nil, err
	}

	if err := readManifest(in.dir, models.VideoManifest, &video); err != nil {
		return nil, err
	}

	if err := readManifest(in.dir, models.ThumbnailManifest, &thumb); err != nil {
		return nil, err
	}

	videoPath, err := artifactPath(in.dir, video.VideoRef)
	if err != nil {
		return nil, err
	}

	thumbPath, err := artifactPath(in.dir, thumb.ThumbnailRef)
	if err != nil {
		return nil, err
	}

	result, err := o.adapters.Upload.Upload(ctx, models.UploadRequest{
		VideoPath:     videoPath,
		ThumbnailPath: thumbPath,
		Title:         script.Title,
		Description:   script.Description,
		Tags:          script.Tags,
	})
	if err != nil {
		return nil, err
	}

	if result.PlatformVideoID == "" {
		return nil, adapters.Permanent(adapters.CodeUploadFailed, "upload returned no video id", nil)
	}

	return result, nil
}

func (o *Orchestrator) crossPost(ctx context.Context, in stepInput) (any, error) {
	if o.adapters.CrossPost == nil {
		return nil, errNotConfigured
	}

	var (
		script models.Script
		upload models.Upload
	)

	if err := readManifest(in.dir, models.ScriptManifest, &script); err != nil {
		return nil, err
	}

	if err := readManifest(in.dir, models.UploadManifest, &upload); err != nil {
		return nil, err
	}

	err := o.adapters.CrossPost.CrossPost(ctx, upload.PlatformVideoID, script.Title)
	if err != nil {
		return nil, err
	}

	return models.CrossPost{PostedAt: o.clock.Now().UTC()}, nil
}

func bundlePath(dir, name string) string {
	return filepath.Join(dir, name)
}
