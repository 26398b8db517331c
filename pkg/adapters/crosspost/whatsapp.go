package crosspost

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dukex/dailyreel/pkg/adapters"
)

const DefaultWhatsAppEndpoint = "https://api.callmebot.com/whatsapp.php"

type WhatsAppConfig struct {
	Phone    string
	APIKey   string
	Endpoint string
}

// WhatsApp sends messages through the CallMeBot gateway.
type WhatsApp struct {
	cfg    WhatsAppConfig
	client *http.Client
}

func NewWhatsApp(cfg WhatsAppConfig, client *http.Client) *WhatsApp {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultWhatsAppEndpoint
	}

	return &WhatsApp{cfg: cfg, client: client}
}

func (w *WhatsApp) Name() string {
	return "whatsapp"
}

func (w *WhatsApp) Send(ctx context.Context, text string) error {
	query := url.Values{}
	query.Set("phone", w.cfg.Phone)
	query.Set("text", strings.ReplaceAll(text, "*", ""))
	query.Set("apikey", w.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.Endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return adapters.Permanent(adapters.CodeNotifyFailed, "failed to build request", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return adapters.Transient(adapters.CodeNotifyFailed, "whatsapp request failed", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return adapters.FromHTTPStatus(adapters.CodeNotifyFailed, resp.StatusCode, string(body))
	}

	return nil
}
