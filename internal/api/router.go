// Package api is the thin chi-routed admin HTTP surface spec.md §6 and
// SPEC_FULL.md §5 describe as an out-of-scope collaborator: CRUD for
// definitions/instances/contacts/groups, alert-history reads, and a
// health check, behind JWT bearer auth. Grounded on the teacher's
// internal/server.Server (chi.NewRouter, middleware.Logger/Recoverer,
// /api/v1 route group, protected-routes-in-a-sub-group shape).
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/irisett-go/irisett/internal/activemonitor"
	"github.com/irisett-go/irisett/internal/config"
	"github.com/irisett-go/irisett/internal/definition"
	"github.com/irisett-go/irisett/internal/notify"
	"github.com/irisett-go/irisett/internal/scheduler"
	"github.com/irisett-go/irisett/internal/store"
	"github.com/irisett-go/irisett/internal/tmpl"
)

// Handlers bundles every engine component the admin surface reads or
// mutates. It holds no state of its own beyond the authService.
type Handlers struct {
	gw          store.Gateway
	definitions *definition.Registry
	instances   *activemonitor.Registry
	groups      *notify.GroupStore
	contacts    *notify.ContactStore
	tmplCache   *tmpl.Cache
	scheduler   *scheduler.Scheduler
	auth        *authService
	logger      *slog.Logger
}

// NewRouter builds the complete chi.Mux: /healthz is unauthenticated,
// /api/v1/auth/login issues tokens, everything else under /api/v1
// requires a valid bearer token.
func NewRouter(gw store.Gateway, definitions *definition.Registry, instances *activemonitor.Registry,
	groups *notify.GroupStore, contacts *notify.ContactStore, tmplCache *tmpl.Cache,
	sched *scheduler.Scheduler, authCfg config.AuthConfig, logger *slog.Logger) (*chi.Mux, error) {
	auth, err := newAuthService(authCfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handlers{
		gw: gw, definitions: definitions, instances: instances,
		groups: groups, contacts: contacts, tmplCache: tmplCache,
		scheduler: sched, auth: auth, logger: logger.With("component", "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", h.healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(auth.requireAuth)

			r.Route("/definitions", func(r chi.Router) {
				r.Get("/", h.listDefinitions)
				r.Post("/", h.createDefinition)
				r.Get("/{id}", h.getDefinition)
				r.Put("/{id}", h.updateDefinition)
				r.Delete("/{id}", h.deleteDefinition)
				r.Put("/{id}/params/{name}", h.setDefinitionParam)
				r.Delete("/{id}/params/{name}", h.deleteDefinitionParam)
			})

			r.Route("/instances", func(r chi.Router) {
				r.Get("/", h.listInstances)
				r.Post("/", h.createInstance)
				r.Get("/{id}", h.getInstance)
				r.Delete("/{id}", h.deleteInstance)
				r.Post("/{id}/run-now", h.runInstanceNow)
				r.Post("/{id}/checks-enabled", h.setChecksEnabled)
				r.Post("/{id}/alerts-enabled", h.setAlertsEnabled)
				r.Patch("/{id}/args", h.updateInstanceArgs)
				r.Get("/{id}/alerts", h.listAlertHistory)
			})

			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", h.listContacts)
				r.Post("/", h.createContact)
				r.Put("/{id}", h.updateContact)
				r.Delete("/{id}", h.deleteContact)
			})

			r.Route("/contact-groups", func(r chi.Router) {
				r.Post("/", h.createContactGroup)
				r.Delete("/{id}", h.deleteContactGroup)
				r.Put("/{id}/members/{contactID}", h.addContactGroupMember)
				r.Delete("/{id}/members/{contactID}", h.removeContactGroupMember)
			})

			r.Route("/monitor-groups", func(r chi.Router) {
				r.Get("/", h.listMonitorGroups)
				r.Post("/", h.createMonitorGroup)
				r.Put("/{id}", h.updateMonitorGroup)
				r.Delete("/{id}", h.deleteMonitorGroup)
			})
		})
	})

	return r, nil
}

func (h *Handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.gw.DB().PingContext(r.Context()); err != nil {
		sendError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
