package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dailyreel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	hour, minute := cfg.PublishClock()
	assert.Equal(t, 9, hour)
	assert.Equal(t, 0, minute)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
output_dir: /var/lib/dailyreel
timezone: UTC
news:
  feeds:
    - https://example.com/rss
  max_articles: 10
  select_count: 5
youtube:
  privacy: unlisted
  publish_time: "18:30"
pipeline:
  max_attempts: 5
  backoff_initial: 2s
  backoff_max: 30s
  step_timeouts:
    build_video: 45m
schedule:
  cron: "30 5 * * *"
  mode: dry_run
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/dailyreel", cfg.OutputDir)
	assert.Equal(t, []string{"https://example.com/rss"}, cfg.News.Feeds)
	assert.Equal(t, 5, cfg.News.SelectCount)
	assert.Equal(t, "unlisted", cfg.YouTube.Privacy)
	assert.Equal(t, 5, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.BackoffInitial)
	assert.Equal(t, 45*time.Minute, cfg.Pipeline.StepTimeouts["build_video"])
	assert.Equal(t, "dry_run", cfg.Schedule.Mode)

	// Untouched sections keep their defaults.
	assert.Equal(t, "gemini-2.5-flash", cfg.Script.Model)
	assert.Equal(t, 1920, cfg.Video.Width)

	hour, minute := cfg.PublishClock()
	assert.Equal(t, 18, hour)
	assert.Equal(t, 30, minute)
}

func TestLoad_SecretsFromEnvironment(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("YOUTUBE_REFRESH_TOKEN", "refresh")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gemini-key", cfg.Script.APIKey)
	assert.Equal(t, "refresh", cfg.YouTube.RefreshToken)
	assert.Equal(t, "bot", cfg.Notify.TelegramBotToken)
	assert.Equal(t, "42", cfg.Notify.TelegramChatID)
	assert.Empty(t, cfg.Notify.WhatsAppPhone)
}

func TestLoad_SecretsAreNotReadFromFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	path := writeConfig(t, `
script:
  api_key: from-file
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Script.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad cron", "schedule:\n  cron: every morning\n", "Cron"},
		{"bad privacy", "youtube:\n  privacy: friends\n", "Privacy"},
		{"bad publish time", "youtube:\n  publish_time: 9am\n", "PublishTime"},
		{"bad feed", "news:\n  feeds: [not-a-url]\n", "Feeds"},
		{"select more than fetched", "news:\n  max_articles: 5\n  select_count: 8\n", "SelectCount"},
		{"bad timezone", "timezone: Mars/Olympus\n", "timezone"},
		{"bad mode", "schedule:\n  mode: partial\n", "Mode"},
		{"bad post template", "messages:\n  post: \"{{ .Title\"\n", "Post"},
		{"bad summary template", "messages:\n  summary: \"{{ range .Steps }}\"\n", "Summary"},
		{"long short", "shorts:\n  seconds: 90\n", "Seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_Messages(t *testing.T) {
	cfg, err := Load(writeConfig(t, "messages:\n  post: \"{{ .Title }} {{ .URL }}\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "{{ .Title }} {{ .URL }}", cfg.Messages.Post)
	assert.Empty(t, cfg.Messages.Alert)
	assert.Empty(t, cfg.Messages.Summary)
}

func TestLoad_Shorts(t *testing.T) {
	cfg, err := Load(writeConfig(t, "shorts:\n  enabled: false\n  seconds: 45\n"))
	require.NoError(t, err)

	assert.False(t, cfg.Shorts.Enabled)
	assert.Equal(t, 45, cfg.Shorts.Seconds)
	assert.Equal(t, 1080, cfg.Shorts.Width)
	assert.Equal(t, 1920, cfg.Shorts.Height)
	assert.Equal(t, 30*time.Minute, cfg.Shorts.Timeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
