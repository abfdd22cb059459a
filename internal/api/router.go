// Package api is the HTTP surface: OAuth callbacks, integration reads, the
// assistant endpoint and operational routes.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pysugar/daily-nexus/internal/assistant"
	"github.com/pysugar/daily-nexus/internal/auth/oauth"
	"github.com/pysugar/daily-nexus/internal/auth/session"
	"github.com/pysugar/daily-nexus/internal/integrations"
	"github.com/pysugar/daily-nexus/internal/metrics"
	"github.com/pysugar/daily-nexus/internal/store"
)

// Exchanger runs the OAuth authorization-code grant.
type Exchanger interface {
	Supports(provider string) bool
	AuthCodeURL(provider, state string) (string, error)
	Exchange(ctx context.Context, provider, code string) (*oauth.Token, error)
}

// Integrations reads provider data and manages connections.
type Integrations interface {
	DefaultProvider(kind string) (string, bool)
	FetchKind(ctx context.Context, user session.UserContext, kind, provider string, w integrations.Window) (*integrations.Result, error)
	Dashboard(ctx context.Context, user session.UserContext, w integrations.Window) *integrations.Dashboard
	Connections(ctx context.Context, user session.UserContext) ([]integrations.Connection, error)
	Disconnect(ctx context.Context, user session.UserContext, provider string) error
}

// Assistant runs conversation turns.
type Assistant interface {
	HandleTurn(ctx context.Context, in assistant.TurnInput) (*assistant.TurnOutput, error)
	History(ctx context.Context, user session.UserContext, sessionID string) ([]assistant.Turn, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Sessions        *session.Issuer
	OAuth           Exchanger
	Credentials     store.CredentialStore
	Integrations    Integrations
	Assistant       Assistant
	IntegrationsURL string
	DefaultLocation *time.Location
	Now             func() time.Time
}

type handler struct {
	Deps
	validate *validator.Validate
}

// NewRouter wires every route.
func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.DefaultLocation == nil {
		d.DefaultLocation = time.UTC
	}
	h := &handler{Deps: d, validate: validator.New(validator.WithRequiredStructEnabled())}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(sessionUser(d.Sessions))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/oauth/{provider}", func(r chi.Router) {
		r.Get("/", h.oauthCallback)
		r.Post("/", h.oauthCallback)
		r.Get("/start", h.oauthStart)
	})

	r.Route("/integrations", func(r chi.Router) {
		r.Get("/", h.listConnections)
		r.Get("/calendar", h.calendar)
		r.Get("/notifications", h.notifications)
		r.Get("/dashboard", h.dashboard)
		r.Delete("/{provider}", h.disconnect)
	})

	r.Route("/assistant", func(r chi.Router) {
		r.Post("/", h.assistantTurn)
		r.Get("/sessions/{sessionID}", h.assistantHistory)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorMessage(w, http.StatusNotFound, "not_found", "Not found")
	})
	return r
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}
