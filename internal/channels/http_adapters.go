// internal/channels/http_adapters.go
package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"finpost-workers/internal/common/config"
	commonhttp "finpost-workers/internal/common/http"
)

func newJSONRequest(ctx context.Context, endpoint string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// TelegramSender posts via the Telegram bot sendMessage API.
type TelegramSender struct {
	client *commonhttp.Client
	base   string
	token  string
	chatID string
}

func NewTelegramSender(client *commonhttp.Client, cfg config.ChannelConfig) *TelegramSender {
	base := cfg.Endpoint
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &TelegramSender{
		client: client,
		base:   base,
		token:  cfg.Token,
		chatID: cfg.ChatID,
	}
}

func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       msg.Text,
		"parse_mode": "Markdown",
	})
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.base, url.PathEscape(t.token))
	return postAndCheck(ctx, t.client, endpoint, body)
}

// SlackSender posts to an incoming webhook.
type SlackSender struct {
	client     *commonhttp.Client
	webhookURL string
}

func NewSlackSender(client *commonhttp.Client, cfg config.ChannelConfig) *SlackSender {
	return &SlackSender{client: client, webhookURL: cfg.WebhookURL}
}

func (s *SlackSender) Send(ctx context.Context, msg Message) error {
	body, _ := json.Marshal(map[string]string{"text": msg.Text})
	return postAndCheck(ctx, s.client, s.webhookURL, body)
}

// RestSender covers the platforms fronted by an internal relay service
// (LinkedIn, Twitter): a single authenticated POST with the message text.
type RestSender struct {
	client   *commonhttp.Client
	endpoint string
	token    string
	platform string
}

func NewRestSender(client *commonhttp.Client, platform string, cfg config.ChannelConfig) *RestSender {
	return &RestSender{
		client:   client,
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		platform: platform,
	}
}

func (r *RestSender) Send(ctx context.Context, msg Message) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"platform": r.platform,
		"text":     msg.Text,
		"metadata": msg.Metadata,
	})
	req, err := newJSONRequest(ctx, r.endpoint, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp.StatusCode, resp.Body)
}

func postAndCheck(ctx context.Context, client *commonhttp.Client, endpoint string, body []byte) error {
	resp, err := client.PostJSON(ctx, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp.StatusCode, resp.Body)
}

func checkStatus(code int, body io.Reader) error {
	if code >= 200 && code < 300 {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(body, 512))
	return fmt.Errorf("unexpected status %d: %s", code, string(detail))
}
