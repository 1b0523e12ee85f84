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

// SMSBackend posts to a generic HTTP SMS gateway, grounded on
// original_source/irisett/notify/clicksend.py's shape (one POST per
// recipient phone number, credentials from config, best-effort).
type SMSBackend struct {
	cfg    config.SMSBackendConfig
	client *http.Client
	logger *slog.Logger
}

func NewSMSBackend(cfg config.SMSBackendConfig, logger *slog.Logger) *SMSBackend {
	return &SMSBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("backend", "sms"),
	}
}

func (b *SMSBackend) Name() string { return "sms" }

type smsPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (b *SMSBackend) Send(ctx context.Context, recipients Recipients, data Data) {
	if len(recipients.Phones) == 0 {
		return
	}
	text := fmt.Sprintf("irisett: monitor %d %s -> %s: %s", data.InstanceID, data.From, data.To, data.Message)

	for _, phone := range recipients.Phones {
		body, err := json.Marshal(smsPayload{To: phone, Message: text})
		if err != nil {
			b.logger.Error("failed to marshal sms payload", "error", err)
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.GatewayURL, bytes.NewReader(body))
		if err != nil {
			b.logger.Error("failed to build sms request", "error", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		if b.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
		}

		resp, err := b.client.Do(req)
		if err != nil {
			b.logger.Error("sms gateway request failed", "phone", phone, "error", err, "correlation_id", data.CorrelationID)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			b.logger.Error("sms gateway returned non-2xx", "phone", phone, "status", resp.StatusCode, "correlation_id", data.CorrelationID)
		}
	}
}
