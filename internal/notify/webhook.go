package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/irisett-go/irisett/internal/config"
)

// WebhookBackend POSTs a JSON event body to a configured URL, grounded on
// original_source/irisett/notify/http.py's generic outbound-webhook shape.
type WebhookBackend struct {
	cfg    config.WebhookBackendConfig
	client *http.Client
	logger *slog.Logger
}

func NewWebhookBackend(cfg config.WebhookBackendConfig, logger *slog.Logger) *WebhookBackend {
	return &WebhookBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("backend", "webhook"),
	}
}

func (b *WebhookBackend) Name() string { return "webhook" }

// webhookPayload carries the full template data bag from spec.md §4.9 —
// the webhook backend is the one transport a downstream system can
// reasonably expect to consume every field of, unlike SMS/chat's
// one-line summaries.
type webhookPayload struct {
	CorrelationID string            `json:"correlation_id"`
	Type          string            `json:"type"`
	ID            int64             `json:"id"`
	State         string            `json:"state"`
	PrevState     string            `json:"prev_state"`
	StateElapsed  string            `json:"state_elapsed"`
	MonitorDesc   string            `json:"monitor_description"`
	Msg           string            `json:"msg"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func (b *WebhookBackend) Send(ctx context.Context, recipients Recipients, data Data) {
	body, err := json.Marshal(webhookPayload{
		CorrelationID: data.CorrelationID,
		Type:          data.Type,
		ID:            data.InstanceID,
		State:         data.State,
		PrevState:     data.PrevState,
		StateElapsed:  data.StateElapsed,
		MonitorDesc:   data.Description,
		Msg:           data.Message,
		Metadata:      data.Metadata,
	})
	if err != nil {
		b.logger.Error("failed to marshal webhook payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL, bytes.NewReader(body))
	if err != nil {
		b.logger.Error("failed to build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.Secret != "" {
		req.Header.Set("X-Irisett-Secret", b.cfg.Secret)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Error("webhook request failed", "error", err, "correlation_id", data.CorrelationID)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		b.logger.Error("webhook returned non-2xx", "status", resp.StatusCode, "correlation_id", data.CorrelationID)
	}
}
