// internal/channels/channels_test.go
package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpost-workers/internal/common/config"
	apperrors "finpost-workers/internal/common/errors"
	commonhttp "finpost-workers/internal/common/http"
	"finpost-workers/internal/queue"
)

// ==========================
// Test Helper Functions
// ==========================

func testClient() *commonhttp.Client {
	return commonhttp.NewClient(2 * time.Second)
}

type capturedRequest struct {
	path    string
	headers http.Header
	body    map[string]interface{}
}

// newCaptureServer records the last request and answers with the given status.
func newCaptureServer(t *testing.T, status int) (*httptest.Server, *capturedRequest) {
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.headers = r.Header.Clone()
		captured.body = map[string]interface{}{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured.body))
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

// ==========================
// Telegram Sender Tests
// ==========================

func TestTelegramSender_Send(t *testing.T) {
	srv, captured := newCaptureServer(t, http.StatusOK)
	sender := NewTelegramSender(testClient(), config.ChannelConfig{
		Endpoint: srv.URL,
		Token:    "bot-token",
		ChatID:   "-100123",
	})

	err := sender.Send(context.Background(), Message{Text: "🔔 opening bell"})
	require.NoError(t, err)

	assert.Equal(t, "/botbot-token/sendMessage", captured.path)
	assert.Equal(t, "-100123", captured.body["chat_id"])
	assert.Equal(t, "🔔 opening bell", captured.body["text"])
	assert.Equal(t, "Markdown", captured.body["parse_mode"])
}

func TestTelegramSender_Non2xxIsError(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusBadGateway)
	sender := NewTelegramSender(testClient(), config.ChannelConfig{
		Endpoint: srv.URL,
		Token:    "bot-token",
		ChatID:   "-100123",
	})

	err := sender.Send(context.Background(), Message{Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

// ==========================
// Slack Sender Tests
// ==========================

func TestSlackSender_Send(t *testing.T) {
	srv, captured := newCaptureServer(t, http.StatusOK)
	sender := NewSlackSender(testClient(), config.ChannelConfig{WebhookURL: srv.URL + "/hook"})

	err := sender.Send(context.Background(), Message{Text: "📊 market update"})
	require.NoError(t, err)
	assert.Equal(t, "/hook", captured.path)
	assert.Equal(t, "📊 market update", captured.body["text"])
}

// ==========================
// Rest Sender Tests
// ==========================

func TestRestSender_Send(t *testing.T) {
	srv, captured := newCaptureServer(t, http.StatusCreated)
	sender := NewRestSender(testClient(), "linkedin", config.ChannelConfig{
		Endpoint: srv.URL + "/relay",
		Token:    "relay-token",
	})

	msg := Message{
		Platform: queue.PlatformLinkedIn,
		Text:     "post body",
		Metadata: map[string]interface{}{"content_type": "market_update"},
	}
	require.NoError(t, sender.Send(context.Background(), msg))

	assert.Equal(t, "Bearer relay-token", captured.headers.Get("Authorization"))
	assert.Equal(t, "linkedin", captured.body["platform"])
	assert.Equal(t, "post body", captured.body["text"])
}

// ==========================
// Registry Tests
// ==========================

func TestRegistry_RoutesByPlatform(t *testing.T) {
	srv, captured := newCaptureServer(t, http.StatusOK)
	registry := NewRegistry()
	registry.Register(queue.PlatformSlack, NewSlackSender(testClient(), config.ChannelConfig{WebhookURL: srv.URL}))

	err := registry.Send(context.Background(), Message{Platform: queue.PlatformSlack, Text: "routed"})
	require.NoError(t, err)
	assert.Equal(t, "routed", captured.body["text"])
}

func TestRegistry_UnknownPlatform(t *testing.T) {
	registry := NewRegistry()

	err := registry.Send(context.Background(), Message{Platform: queue.PlatformTwitter, Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnknownPlatform)
}
