// Package script drafts the narrated script with the Gemini generateContent API.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/models"
	"google.golang.org/genai"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com"
	apiVersion      = "v1beta"
	wordsPerMinute  = 150
)

// Config controls prompt content and the model call.
type Config struct {
	APIKey          string
	Model           string
	Endpoint        string
	ChannelName     string
	Language        string
	SelectCount     int
	DurationMinutes int
}

// Writer calls Gemini through the genai client.
type Writer struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func NewWriter(cfg Config, client *http.Client, logger *slog.Logger) *Writer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	return &Writer{
		cfg:    cfg,
		client: client,
		logger: logger.With("module", "script"),
	}
}

type scriptDocument struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags"`
	FullScript      string   `json:"full_script"`
	DurationSeconds int      `json:"duration_seconds"`
}

// WriteScript asks the model for a script covering the headlines.
func (w *Writer) WriteScript(ctx context.Context, date string, headlines []models.Headline) (models.Script, error) {
	if w.cfg.APIKey == "" {
		return models.Script{}, adapters.Permanent(adapters.CodeAuthInvalid, "GEMINI_API_KEY is not set", nil)
	}

	if len(headlines) == 0 {
		return models.Script{}, adapters.Permanent(adapters.CodeMalformedInput, "no headlines to write about", nil)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     w.cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: w.client,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimRight(w.cfg.Endpoint, "/") + "/",
			APIVersion: apiVersion,
		},
	})
	if err != nil {
		return models.Script{}, adapters.Permanent(adapters.CodeGenerationFailed, "failed to create model client", err)
	}

	w.logger.InfoContext(ctx, "Requesting script", "model", w.cfg.Model, "headlines", len(headlines))

	resp, err := client.Models.GenerateContent(ctx, w.cfg.Model, genai.Text(w.prompt(date, headlines)), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.7),
		MaxOutputTokens:  8192,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return models.Script{}, callError(err)
	}

	return parseResponse(resp)
}

// callError maps a failed generateContent call. The per-day quota, which
// waiting minutes will not fix, is split from short rate limits.
func callError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return adapters.Transient(adapters.CodeGenerationFailed, "model request failed", err)
	}

	if apiErr.Code == http.StatusTooManyRequests {
		if isDailyQuota(apiErr) {
			return adapters.Permanent(adapters.CodeQuotaExceeded, "daily generation quota exhausted", apiErr)
		}

		return adapters.Transient(adapters.CodeRateLimited, "model rate limited: "+apiErr.Message, apiErr)
	}

	mapped := adapters.FromHTTPStatus(adapters.CodeGenerationFailed, apiErr.Code, apiErr.Message)
	mapped.Err = apiErr

	return mapped
}

// isDailyQuota looks for a per-day quota id in the message and the QuotaFailure details.
func isDailyQuota(apiErr genai.APIError) bool {
	text := strings.ToLower(apiErr.Message + " " + fmt.Sprint(apiErr.Details))

	return strings.Contains(text, "perday") || strings.Contains(text, "per day")
}

func parseResponse(resp *genai.GenerateContentResponse) (models.Script, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return models.Script{}, adapters.Permanent(adapters.CodeGenerationFailed,
				"prompt blocked: "+string(resp.PromptFeedback.BlockReason), nil)
		}

		return models.Script{}, adapters.Transient(adapters.CodeGenerationFailed, "model returned no candidates", nil)
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			text.WriteString(p.Text)
		}
	}

	document, ok := extractJSON(text.String())
	if !ok {
		return models.Script{}, adapters.Transient(adapters.CodeGenerationFailed, "model output contains no JSON object", nil)
	}

	// Sampling again usually fixes malformed output.
	if err := validateDocument(document); err != nil {
		return models.Script{}, adapters.Transient(adapters.CodeGenerationFailed, "malformed model output", err)
	}

	var doc scriptDocument

	err := json.Unmarshal(document, &doc)
	if err != nil {
		return models.Script{}, adapters.Transient(adapters.CodeGenerationFailed, "malformed model output", err)
	}

	duration := doc.DurationSeconds
	if duration == 0 {
		duration = EstimateDuration(doc.FullScript)
	}

	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}

	return models.Script{
		Title:           strings.TrimSpace(doc.Title),
		Description:     strings.TrimSpace(doc.Description),
		Tags:            tags,
		Body:            strings.TrimSpace(doc.FullScript),
		DurationSeconds: duration,
	}, nil
}

// EstimateDuration returns the narration length in seconds at a steady speaking rate.
func EstimateDuration(body string) int {
	words := len(strings.Fields(body))

	return (words*60 + wordsPerMinute - 1) / wordsPerMinute
}

func (w *Writer) prompt(date string, headlines []models.Headline) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the scriptwriter for %q, a daily news channel.\n", w.cfg.ChannelName)
	fmt.Fprintf(&b, "Select the %d most important stories below and write a %d-minute news script in %s.\n",
		w.cfg.SelectCount, w.cfg.DurationMinutes, w.cfg.Language)
	b.WriteString("Respond with a single JSON object with the keys title (max 100 characters), description, ")
	b.WriteString("tags (array of strings), full_script (the narration only, no stage directions) and duration_seconds.\n")
	fmt.Fprintf(&b, "\nTODAY'S DATE: %s\n\nHEADLINES:\n", date)

	for i, h := range headlines {
		source := h.Source
		if source == "" {
			source = "Unknown"
		}

		fmt.Fprintf(&b, "\n%d. %s\n   Source: %s\n", i+1, h.Title, source)

		if h.Summary != "" {
			fmt.Fprintf(&b, "   Summary: %s\n", h.Summary)
		}
	}

	return b.String()
}
