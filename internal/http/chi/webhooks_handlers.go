package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-gateway/gateway"
	"github.com/marcelsud/webhook-gateway/providers"
	"github.com/marcelsud/webhook-gateway/webhook"
	"github.com/rs/zerolog"
)

// DefaultMaxBodyBytes caps request bodies read by the transport
const DefaultMaxBodyBytes int64 = 10 << 20

// Inbound processes one webhook request. gateway.Gateway satisfies it.
type Inbound interface {
	ProcessInbound(ctx context.Context, provider string, body []byte, headers http.Header) gateway.Result
}

// ProviderLister lists configured providers. providers.Store satisfies it.
type ProviderLister interface {
	List() []providers.Provider
}

// Reloader refreshes provider configuration
type Reloader interface {
	Reload() error
}

// Deps wires the HTTP layer; Metrics and Reloader are optional
type Deps struct {
	Gateway        Inbound
	Providers      ProviderLister
	Events         webhook.Reader
	Reloader       Reloader
	Metrics        http.Handler
	Logger         zerolog.Logger
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

// WebhookHandlers sets up the gateway API routes
func WebhookHandlers(ctx context.Context, deps Deps) *chi.Mux {
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httplog.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		// Receive a webhook from a provider
		r.Method(http.MethodPost, "/webhooks/{provider}", postWebhook(deps.Gateway, maxBody))

		// Operator views
		r.Method(http.MethodGet, "/providers", getProviders(deps.Providers))
		r.Method(http.MethodGet, "/providers/{provider}/events/{event_id}", getEvent(deps.Events))

		if deps.Reloader != nil {
			r.Method(http.MethodPost, "/providers/reload", postReload(deps.Reloader))
		}
	})

	return r
}
