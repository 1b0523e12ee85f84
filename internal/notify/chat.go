package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/irisett-go/irisett/internal/config"
)

// ChatBackend posts a Slack-compatible incoming-webhook message, grounded
// on original_source/irisett/notify/slack.py.
type ChatBackend struct {
	cfg    config.ChatBackendConfig
	client *http.Client
	logger *slog.Logger
}

func NewChatBackend(cfg config.ChatBackendConfig, logger *slog.Logger) *ChatBackend {
	return &ChatBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("backend", "chat"),
	}
}

func (b *ChatBackend) Name() string { return "chat" }

type chatPayload struct {
	Text string `json:"text"`
}

func (b *ChatBackend) Send(ctx context.Context, recipients Recipients, data Data) {
	text := fmt.Sprintf(":warning: monitor %d: *%s* -> *%s*\n%s", data.InstanceID, data.From, data.To, data.Message)
	body, err := json.Marshal(chatPayload{Text: text})
	if err != nil {
		b.logger.Error("failed to marshal chat payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		b.logger.Error("failed to build chat request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Error("chat webhook request failed", "error", err, "correlation_id", data.CorrelationID)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		b.logger.Error("chat webhook returned non-2xx", "status", resp.StatusCode, "correlation_id", data.CorrelationID)
	}
}
