// Package crosspost announces published videos on messaging channels.
package crosspost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/template"
)

const watchURL = "https://www.youtube.com/watch?v="

// Channel delivers a single text message.
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// Notifier sends each message to every configured channel. A message counts
// as delivered when at least one channel accepts it.
// It implements the cross-post step, the failure alerter and the daily summary.
type Notifier struct {
	channels []Channel
	post     *template.Template
	alert    *template.Template
	summary  *template.Template
	logger   *slog.Logger
}

func NewNotifier(logger *slog.Logger, channels ...Channel) *Notifier {
	return &Notifier{
		channels: channels,
		post:     template.MustParse("post", template.DefaultPost),
		alert:    template.MustParse("alert", template.DefaultAlert),
		summary:  template.MustParse("summary", template.DefaultSummary),
		logger:   logger.With("module", "crosspost"),
	}
}

// SetTemplates replaces the message templates. Empty strings keep the defaults.
func (n *Notifier) SetTemplates(post, alert, summary string) error {
	for _, override := range []struct {
		name   string
		text   string
		target **template.Template
	}{
		{"post", post, &n.post},
		{"alert", alert, &n.alert},
		{"summary", summary, &n.summary},
	} {
		if override.text == "" {
			continue
		}

		t, err := template.Parse(override.name, override.text)
		if err != nil {
			return err
		}

		*override.target = t
	}

	return nil
}

// NewFromConfig builds the channels whose credentials are present.
func NewFromConfig(telegram TelegramConfig, whatsapp WhatsAppConfig, client *http.Client, logger *slog.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var channels []Channel

	if telegram.BotToken != "" && telegram.ChatID != "" {
		channels = append(channels, NewTelegram(telegram, client))
	}

	if whatsapp.Phone != "" && whatsapp.APIKey != "" {
		channels = append(channels, NewWhatsApp(whatsapp, client))
	}

	return NewNotifier(logger, channels...)
}

// Channels returns the configured channel names.
func (n *Notifier) Channels() []string {
	names := make([]string, 0, len(n.channels))
	for _, ch := range n.channels {
		names = append(names, ch.Name())
	}

	return names
}

// CrossPost sends the video link to every channel. It succeeds if any channel accepts the message.
func (n *Notifier) CrossPost(ctx context.Context, platformVideoID, title string) error {
	text, err := n.post.Render(template.PostData{
		Title:   title,
		VideoID: platformVideoID,
		URL:     watchURL + platformVideoID,
	})
	if err != nil {
		return adapters.Permanent(adapters.CodeMalformedInput, "failed to render cross-post message", err)
	}

	return n.broadcast(ctx, text)
}

// Alert reports a failed run for date.
func (n *Notifier) Alert(ctx context.Context, date, message string) error {
	text, err := n.alert.Render(template.AlertData{Date: date, Message: message})
	if err != nil {
		return adapters.Permanent(adapters.CodeMalformedInput, "failed to render alert message", err)
	}

	return n.broadcast(ctx, text)
}

// Summary reports every step of a succeeded full run.
func (n *Notifier) Summary(ctx context.Context, summary models.RunSummary) error {
	data := template.SummaryData{
		Date:     summary.Date,
		Title:    summary.Title,
		URL:      summary.URL,
		ShortURL: summary.ShortURL,
		Steps:    make([]template.SummaryStep, 0, len(summary.Steps)),
	}

	for _, step := range summary.Steps {
		data.Steps = append(data.Steps, template.SummaryStep{
			Name:     string(step.Step),
			Status:   string(step.Status),
			Attempts: step.AttemptCount,
		})
	}

	text, err := n.summary.Render(data)
	if err != nil {
		return adapters.Permanent(adapters.CodeMalformedInput, "failed to render summary message", err)
	}

	return n.broadcast(ctx, text)
}

func (n *Notifier) broadcast(ctx context.Context, text string) error {
	if len(n.channels) == 0 {
		n.logger.InfoContext(ctx, "No notification channels configured, skipping")

		return nil
	}

	var (
		errs      []error
		accepted  int
		retryable = true
	)

	for _, ch := range n.channels {
		err := ch.Send(ctx, text)
		if err == nil {
			n.logger.InfoContext(ctx, "Notification sent", "channel", ch.Name())

			accepted++

			continue
		}

		n.logger.WarnContext(ctx, "Notification failed", "channel", ch.Name(), "error", err)

		if adapterErr, ok := adapters.AsError(err); ok && !adapterErr.Retryable {
			retryable = false
		}

		errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
	}

	if accepted > 0 {
		return nil
	}

	joined := errors.Join(errs...)
	if retryable {
		return adapters.Transient(adapters.CodeNotifyFailed, "all channels failed", joined)
	}

	return adapters.Permanent(adapters.CodeNotifyFailed, "all channels failed", joined)
}
