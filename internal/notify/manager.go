package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/irisett-go/irisett/internal/config"
	"github.com/irisett-go/irisett/internal/store"
)

// Data is the template data bag handed to every backend: a superset of
// what any single backend needs, matching manager.py's tmpl_args pattern
// of passing one shared dict to every channel. Field names mirror the
// keys spec.md §4.9 requires verbatim (state, prev_state, state_elapsed,
// type, id, monitor_description, msg) plus meta_<key> per monitor
// metadata entry.
type Data struct {
	CorrelationID string
	InstanceID    int64
	Type          string // always "active_monitor"
	State         string
	PrevState     string
	StateElapsed  string // human string, e.g. "3m12s"
	Description   string
	Message       string
	Metadata      map[string]string // meta_<key> -> value

	// From/To are kept for backend code that predates the spec-literal
	// field names above; they always equal PrevState/State.
	From, To string
}

// Backend is one pluggable notification transport. Backends never return
// an error to the Manager: failures are logged and isolated per spec.md
// §4.9 ("independent-backend-failure-isolation").
type Backend interface {
	Name() string
	Send(ctx context.Context, recipients Recipients, data Data)
}

// Manager is the Notification Fan-out: it resolves recipients then
// invokes every enabled backend independently and without blocking the
// caller (the Check Outcome Pipeline only ever fires Manager.NotifyStateChange
// in its own goroutine).
type Manager struct {
	resolver *RecipientResolver
	backends []Backend
	logger   *slog.Logger
}

func NewManager(resolver *RecipientResolver, backends []Backend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{resolver: resolver, backends: backends, logger: logger.With("component", "notify")}
}

// NotifyStateChange implements pipeline.Notifier. It resolves recipients
// and fans out to every backend, isolating each backend's own failure.
func (m *Manager) NotifyStateChange(ctx context.Context, instanceID int64, from, to store.MonitorState, message, monitorDescription string, stateElapsed time.Duration) {
	recipients, err := m.resolver.Resolve(ctx, instanceID)
	if err != nil {
		m.logger.Error("failed to resolve notification recipients", "instance_id", instanceID, "error", err)
		return
	}
	if len(recipients.Emails) == 0 && len(recipients.Phones) == 0 {
		return
	}

	meta, err := m.resolver.Metadata(ctx, "active_monitor", instanceID)
	if err != nil {
		m.logger.Debug("failed to fetch monitor metadata for notification", "instance_id", instanceID, "error", err)
	}

	data := Data{
		CorrelationID: uuid.NewString(),
		InstanceID:    instanceID,
		Type:          "active_monitor",
		State:         string(to),
		PrevState:     string(from),
		StateElapsed:  stateElapsed.Round(time.Second).String(),
		Description:   monitorDescription,
		Message:       message,
		Metadata:      meta,
		From:          string(from),
		To:            string(to),
	}
	if data.Metadata == nil {
		data.Metadata = map[string]string{}
	}

	for _, backend := range m.backends {
		backend := backend
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("notification backend panicked", "backend", backend.Name(), "panic", r)
				}
			}()
			backend.Send(ctx, recipients, data)
		}()
	}
}

// BuildBackends constructs the enabled backends from configuration.
func BuildBackends(cfg config.NotifyConfig, logger *slog.Logger) []Backend {
	var backends []Backend
	if cfg.Email.Enabled {
		backends = append(backends, NewEmailBackend(cfg.Email, logger))
	}
	if cfg.SMS.Enabled {
		backends = append(backends, NewSMSBackend(cfg.SMS, logger))
	}
	if cfg.Webhook.Enabled {
		backends = append(backends, NewWebhookBackend(cfg.Webhook, logger))
	}
	if cfg.Chat.Enabled {
		backends = append(backends, NewChatBackend(cfg.Chat, logger))
	}
	return backends
}
