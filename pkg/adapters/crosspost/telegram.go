package crosspost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dukex/dailyreel/pkg/adapters"
)

const DefaultTelegramEndpoint = "https://api.telegram.org"

type TelegramConfig struct {
	BotToken string
	ChatID   string
	Endpoint string
}

// Telegram posts through the Bot API sendMessage method.
type Telegram struct {
	cfg    TelegramConfig
	client *http.Client
}

func NewTelegram(cfg TelegramConfig, client *http.Client) *Telegram {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultTelegramEndpoint
	}

	return &Telegram{cfg: cfg, client: client}
}

func (t *Telegram) Name() string {
	return "telegram"
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id":                  t.cfg.ChatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": false,
	})
	if err != nil {
		return adapters.Permanent(adapters.CodeMalformedInput, "failed to encode message", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.cfg.Endpoint, t.cfg.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return adapters.Permanent(adapters.CodeNotifyFailed, "failed to build request", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return adapters.Transient(adapters.CodeNotifyFailed, "telegram request failed", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return adapters.FromHTTPStatus(adapters.CodeNotifyFailed, resp.StatusCode, string(body))
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}

	if err := json.Unmarshal(body, &result); err == nil && !result.OK {
		return adapters.Permanent(adapters.CodeNotifyFailed, "telegram rejected message: "+result.Description, nil)
	}

	return nil
}
