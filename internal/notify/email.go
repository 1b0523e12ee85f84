package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/irisett-go/irisett/internal/config"
)

// EmailBackend sends over net/smtp. No SMTP client library appears
// anywhere in the retrieved example pack (go.mod across all four repos),
// so this backend is stdlib — documented in DESIGN.md per the
// standard-library justification rule.
type EmailBackend struct {
	cfg    config.EmailBackendConfig
	logger *slog.Logger
}

func NewEmailBackend(cfg config.EmailBackendConfig, logger *slog.Logger) *EmailBackend {
	return &EmailBackend{cfg: cfg, logger: logger.With("backend", "email")}
}

func (b *EmailBackend) Name() string { return "email" }

func (b *EmailBackend) Send(ctx context.Context, recipients Recipients, data Data) {
	if len(recipients.Emails) == 0 {
		return
	}

	subject := fmt.Sprintf("[irisett] monitor %d: %s -> %s", data.InstanceID, data.From, data.To)
	body := fmt.Sprintf("Monitor %d transitioned from %s to %s.\n\n%s\n", data.InstanceID, data.From, data.To, data.Message)
	msg := fmt.Sprintf("Subject: %s\r\n\r\n%s", subject, body)

	addr := fmt.Sprintf("%s:%d", b.cfg.SMTPHost, b.cfg.SMTPPort)
	var auth smtp.Auth
	if b.cfg.Username != "" {
		auth = smtp.PlainAuth("", b.cfg.Username, b.cfg.Password, b.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, b.cfg.From, recipients.Emails, []byte(msg)); err != nil {
		b.logger.Error("failed to send email notification", "error", err, "correlation_id", data.CorrelationID)
	}
}
