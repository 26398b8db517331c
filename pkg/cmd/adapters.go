// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/adapters/crosspost"
	"github.com/dukex/dailyreel/pkg/adapters/news"
	"github.com/dukex/dailyreel/pkg/adapters/script"
	"github.com/dukex/dailyreel/pkg/adapters/thumbnail"
	"github.com/dukex/dailyreel/pkg/adapters/upload"
	"github.com/dukex/dailyreel/pkg/adapters/video"
	"github.com/dukex/dailyreel/pkg/adapters/voice"
	"github.com/dukex/dailyreel/pkg/config"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/pipeline"
	"github.com/jonboulle/clockwork"
)

// NewAdapters wires one concrete adapter per step from the configuration.
// The cross-post notifier doubles as the failure alerter and the summary reporter.
func NewAdapters(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (adapters.Set, error) {
	loc, err := cfg.Location()
	if err != nil {
		return adapters.Set{}, fmt.Errorf("failed to load timezone: %w", err)
	}

	hour, minute := cfg.PublishClock()
	runner := adapters.ExecRunner{}

	notifier := crosspost.NewFromConfig(
		crosspost.TelegramConfig{
			BotToken: cfg.Notify.TelegramBotToken,
			ChatID:   cfg.Notify.TelegramChatID,
		},
		crosspost.WhatsAppConfig{
			Phone:  cfg.Notify.WhatsAppPhone,
			APIKey: cfg.Notify.WhatsAppAPIKey,
		},
		nil,
		logger,
	)
	if err := notifier.SetTemplates(cfg.Messages.Post, cfg.Messages.Alert, cfg.Messages.Summary); err != nil {
		return adapters.Set{}, fmt.Errorf("invalid message template: %w", err)
	}

	builder := video.NewBuilder(video.Config{
		FFmpegPath: cfg.Video.FFmpegPath,
		Width:      cfg.Video.Width,
		Height:     cfg.Video.Height,
		FPS:        cfg.Video.FPS,
		Background: cfg.Video.Background,
		FontSize:   cfg.Video.FontSize,
		Short: video.ShortConfig{
			Width:   cfg.Shorts.Width,
			Height:  cfg.Shorts.Height,
			Seconds: cfg.Shorts.Seconds,
		},
	}, runner, logger)

	var shorts adapters.ShortClipper
	if cfg.Shorts.Enabled {
		shorts = builder
	}

	logger.Info("Adapters configured", "module", "cmd", "notify_channels", notifier.Channels(), "shorts", cfg.Shorts.Enabled)

	return adapters.Set{
		News: news.NewFetcher(cfg.News.Feeds, nil, logger),
		Script: script.NewWriter(script.Config{
			APIKey:          cfg.Script.APIKey,
			Model:           cfg.Script.Model,
			Endpoint:        cfg.Script.Endpoint,
			ChannelName:     cfg.Channel.Name,
			Language:        cfg.Channel.Language,
			SelectCount:     cfg.News.SelectCount,
			DurationMinutes: cfg.Script.DurationMinutes,
		}, nil, logger),
		Voice: voice.NewSynthesizer(voice.Config{
			Command: cfg.Voice.Command,
			Voice:   cfg.Voice.Voice,
			Rate:    cfg.Voice.Rate,
			Volume:  cfg.Voice.Volume,
		}, runner, logger),
		Video: builder,
		Thumbnail: thumbnail.NewBuilder(thumbnail.Config{
			Width:  cfg.Thumbnail.Width,
			Height: cfg.Thumbnail.Height,
		}, logger),
		Upload: upload.NewUploader(upload.Config{
			ClientID:      cfg.YouTube.ClientID,
			ClientSecret:  cfg.YouTube.ClientSecret,
			RefreshToken:  cfg.YouTube.RefreshToken,
			CategoryID:    cfg.YouTube.CategoryID,
			Privacy:       cfg.YouTube.Privacy,
			Language:      cfg.Channel.Language,
			Schedule:      cfg.YouTube.Schedule,
			PublishHour:   hour,
			PublishMinute: minute,
			Location:      loc,
			Tags:          cfg.Channel.Tags,
		}, clock, logger),
		CrossPost: notifier,
		Alerter:   notifier,
		Shorts:    shorts,
		Reporter:  notifier,
	}, nil
}

// PipelineConfig translates the file configuration into orchestrator settings.
func PipelineConfig(cfg *config.Config) (pipeline.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("failed to load timezone: %w", err)
	}

	pc := pipeline.DefaultConfig()
	pc.OutputRoot = cfg.OutputDir
	pc.MaxAttempts = cfg.Pipeline.MaxAttempts
	pc.Backoff.Initial = cfg.Pipeline.BackoffInitial
	pc.Backoff.Max = cfg.Pipeline.BackoffMax
	pc.HorizonDays = cfg.Pipeline.HorizonDays
	pc.MaxArticles = cfg.News.MaxArticles
	pc.Location = loc
	pc.ShortTimeout = cfg.Shorts.Timeout

	for name, timeout := range cfg.Pipeline.StepTimeouts {
		step := models.StepName(name)
		if !step.Valid() {
			return pipeline.Config{}, fmt.Errorf("unknown step in step_timeouts: %s", name)
		}

		pc.StepTimeouts[step] = timeout
	}

	return pc, nil
}
