// Package config loads the pipeline settings from defaults, a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // Timezone may name any IANA zone

	"github.com/dukex/dailyreel/pkg/template"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	OutputDir string          `yaml:"output_dir" validate:"required"`
	Timezone  string          `yaml:"timezone"   validate:"required"`
	Channel   ChannelConfig   `yaml:"channel"`
	News      NewsConfig      `yaml:"news"`
	Script    ScriptConfig    `yaml:"script"`
	Voice     VoiceConfig     `yaml:"voice"`
	Video     VideoConfig     `yaml:"video"`
	Shorts    ShortsConfig    `yaml:"shorts"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	YouTube   YouTubeConfig   `yaml:"youtube"`
	Notify    NotifyConfig    `yaml:"-"`
	Messages  MessagesConfig  `yaml:"messages"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
}

type ChannelConfig struct {
	Name     string   `yaml:"name"     validate:"required"`
	Language string   `yaml:"language" validate:"required"`
	Tags     []string `yaml:"tags"`
}

type NewsConfig struct {
	Feeds       []string `yaml:"feeds"        validate:"required,min=1,dive,url"`
	MaxArticles int      `yaml:"max_articles" validate:"min=1,max=100"`
	SelectCount int      `yaml:"select_count" validate:"min=1,ltefield=MaxArticles"`
}

type ScriptConfig struct {
	Model           string `yaml:"model"            validate:"required"`
	Endpoint        string `yaml:"endpoint"         validate:"omitempty,url"`
	DurationMinutes int    `yaml:"duration_minutes" validate:"min=1,max=60"`
	APIKey          string `yaml:"-"`
}

type VoiceConfig struct {
	Command string `yaml:"command" validate:"required"`
	Voice   string `yaml:"voice"   validate:"required"`
	Rate    string `yaml:"rate"`
	Volume  string `yaml:"volume"`
}

type VideoConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path" validate:"required"`
	Width      int    `yaml:"width"       validate:"min=16"`
	Height     int    `yaml:"height"      validate:"min=16"`
	FPS        int    `yaml:"fps"         validate:"min=1,max=120"`
	Background string `yaml:"background"  validate:"required"`
	FontSize   int    `yaml:"font_size"   validate:"min=8"`
}

// ShortsConfig controls the vertical clip uploaded after a full run.
type ShortsConfig struct {
	Enabled bool          `yaml:"enabled"`
	Width   int           `yaml:"width"   validate:"min=16"`
	Height  int           `yaml:"height"  validate:"min=16"`
	Seconds int           `yaml:"seconds" validate:"min=1,max=60"`
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

type ThumbnailConfig struct {
	Width  int `yaml:"width"  validate:"min=16"`
	Height int `yaml:"height" validate:"min=16"`
}

type YouTubeConfig struct {
	CategoryID   string `yaml:"category_id"  validate:"required,numeric"`
	Privacy      string `yaml:"privacy"      validate:"oneof=private unlisted public"`
	Schedule     bool   `yaml:"schedule"`
	PublishTime  string `yaml:"publish_time" validate:"required,datetime=15:04"`
	ClientID     string `yaml:"-"`
	ClientSecret string `yaml:"-"`
	RefreshToken string `yaml:"-"`
}

// NotifyConfig holds messaging credentials, read from the environment only.
type NotifyConfig struct {
	TelegramBotToken string
	TelegramChatID   string
	WhatsAppPhone    string
	WhatsAppAPIKey   string
}

// MessagesConfig overrides the cross-post, alert and summary text. Empty keeps the built-in message.
type MessagesConfig struct {
	Post    string `yaml:"post"    validate:"omitempty,gotemplate"`
	Alert   string `yaml:"alert"   validate:"omitempty,gotemplate"`
	Summary string `yaml:"summary" validate:"omitempty,gotemplate"`
}

type PipelineConfig struct {
	MaxAttempts    int                      `yaml:"max_attempts"    validate:"min=1,max=10"`
	BackoffInitial time.Duration            `yaml:"backoff_initial" validate:"min=0"`
	BackoffMax     time.Duration            `yaml:"backoff_max"     validate:"gtefield=BackoffInitial"`
	HorizonDays    int                      `yaml:"horizon_days"    validate:"min=0,max=30"`
	StepTimeouts   map[string]time.Duration `yaml:"step_timeouts"`
}

type ScheduleConfig struct {
	Cron string `yaml:"cron" validate:"omitempty,cron"`
	Mode string `yaml:"mode" validate:"oneof=dry_run full"`
}

// Default describes a daily current-affairs channel in English.
func Default() Config {
	return Config{
		OutputDir: "output",
		Timezone:  "Asia/Kolkata",
		Channel: ChannelConfig{
			Name:     "Daily Current Affairs",
			Language: "English",
			Tags: []string{
				"current affairs", "daily news", "india news", "today news",
				"news today", "current affairs today", "daily current affairs",
			},
		},
		News: NewsConfig{
			Feeds: []string{
				"https://news.google.com/rss?hl=en-IN&gl=IN&ceid=IN:en",
				"https://news.google.com/rss/topics/CAAqIQgKIhtDQkFTRGdvSUwyMHZNRE55YXpBU0FtVnVLQUFQAQ?hl=en-IN&gl=IN&ceid=IN:en",
				"https://news.google.com/rss/topics/CAAqJggKIiBDQkFTRWdvSUwyMHZNRGx6TVdZU0FtVnVHZ0pKVGlnQVAB?hl=en-IN&gl=IN&ceid=IN:en",
			},
			MaxArticles: 20,
			SelectCount: 8,
		},
		Script: ScriptConfig{
			Model:           "gemini-2.5-flash",
			DurationMinutes: 5,
		},
		Voice: VoiceConfig{
			Command: "edge-tts",
			Voice:   "en-IN-NeerjaNeural",
			Rate:    "+0%",
			Volume:  "+0%",
		},
		Video: VideoConfig{
			FFmpegPath: "ffmpeg",
			Width:      1920,
			Height:     1080,
			FPS:        24,
			Background: "0x1A1A2E",
			FontSize:   28,
		},
		Shorts: ShortsConfig{
			Enabled: true,
			Width:   1080,
			Height:  1920,
			Seconds: 60,
			Timeout: 30 * time.Minute,
		},
		Thumbnail: ThumbnailConfig{Width: 1280, Height: 720},
		YouTube: YouTubeConfig{
			CategoryID:  "25",
			Privacy:     "private",
			Schedule:    true,
			PublishTime: "09:00",
		},
		Pipeline: PipelineConfig{
			MaxAttempts:    3,
			BackoffInitial: 5 * time.Second,
			BackoffMax:     time.Minute,
			HorizonDays:    1,
		},
		Schedule: ScheduleConfig{
			Cron: "0 6 * * *",
			Mode: "full",
		},
	}
}

// Load applies the YAML file at path (optional) over the defaults, then the
// environment, and validates the result. A .env file in the working directory is loaded first.
func Load(path string) (*Config, error) {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path is operator supplied
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Script.APIKey = os.Getenv("GEMINI_API_KEY")
	c.YouTube.ClientID = os.Getenv("YOUTUBE_CLIENT_ID")
	c.YouTube.ClientSecret = os.Getenv("YOUTUBE_CLIENT_SECRET")
	c.YouTube.RefreshToken = os.Getenv("YOUTUBE_REFRESH_TOKEN")
	c.Notify = NotifyConfig{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		WhatsAppPhone:    os.Getenv("WHATSAPP_PHONE"),
		WhatsAppAPIKey:   os.Getenv("WHATSAPP_API_KEY"),
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())

		return err == nil
	})

	_ = v.RegisterValidation("gotemplate", func(fl validator.FieldLevel) bool {
		_, err := template.Parse(fl.FieldName(), fl.Field().String())

		return err == nil
	})

	return v
}

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make([]string, 0, len(validationErrors))
			for _, fe := range validationErrors {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}

			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}

		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid configuration: timezone %q: %w", c.Timezone, err)
	}

	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// PublishClock splits YouTube.PublishTime into hour and minute.
func (c *Config) PublishClock() (int, int) {
	t, err := time.Parse("15:04", c.YouTube.PublishTime)
	if err != nil {
		return 9, 0
	}

	return t.Hour(), t.Minute()
}
