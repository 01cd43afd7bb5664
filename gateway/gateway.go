package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/marcelsud/webhook-gateway/dispatch"
	"github.com/marcelsud/webhook-gateway/notify"
	"github.com/marcelsud/webhook-gateway/providers"
	"github.com/marcelsud/webhook-gateway/ratelimit"
	"github.com/marcelsud/webhook-gateway/webhook"
	"github.com/marcelsud/webhook-gateway/webhook/verifier"
	"github.com/rs/zerolog"
)

// ProviderSource returns the provider policy in effect. providers.Store and
// providers.Snapshot satisfy it.
type ProviderSource interface {
	Get(name string) (providers.Provider, bool)
}

// Dispatcher runs the handlers of a newly registered event
type Dispatcher interface {
	Dispatch(ctx context.Context, event webhook.Event) (dispatch.Summary, error)
}

// Options wires a Gateway
type Options struct {
	Providers  ProviderSource
	Verifiers  *verifier.Registry
	Limiter    ratelimit.Limiter
	Events     webhook.UseCase
	Dispatcher Dispatcher
	Observer   notify.Observer
	Logger     zerolog.Logger
	Now        func() time.Time
}

/* Gateway is the single entry point for inbound webhooks
 *
 * Stages run in a fixed order and stop at the first rejection:
 * provider lookup, active gate, rate limit, payload size, signature,
 * deduplication, dispatch. Nothing is persisted before verification passes.
 */
type Gateway struct {
	providers  ProviderSource
	verifiers  *verifier.Registry
	checker    verifier.Checker
	limiter    ratelimit.Limiter
	events     webhook.UseCase
	dispatcher Dispatcher
	observer   notify.Observer
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a gateway
func New(opts Options) *Gateway {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	verifiers := opts.Verifiers
	if verifiers == nil {
		verifiers = verifier.NewRegistry(false)
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewMemory()
	}

	return &Gateway{
		providers: opts.Providers,
		verifiers: verifiers,
		checker: verifier.Checker{
			Production: verifiers.Production(),
			Now:        now,
		},
		limiter:    limiter,
		events:     opts.Events,
		dispatcher: opts.Dispatcher,
		observer:   notify.Safe(opts.Observer),
		logger:     opts.Logger,
		now:        now,
	}
}

// ProcessInbound authenticates, deduplicates and dispatches one request
func (g *Gateway) ProcessInbound(ctx context.Context, providerName string, body []byte, headers http.Header) Result {
	log := g.logger.With().Str("provider", providerName).Logger()

	provider, ok := g.providers.Get(providerName)
	if !ok {
		return reject(UnknownProvider, "unknown_provider", "provider not found",
			goerrors.CategoryNotFound, TextCodeUnknownProvider,
			map[string]any{"provider": providerName})
	}

	if !provider.Active {
		return reject(InactiveProvider, "inactive_provider", "provider is not active",
			goerrors.CategoryAuthz, TextCodeInactiveProvider,
			map[string]any{"provider": provider.Name})
	}

	decision, err := g.limiter.Admit(ctx, provider.Name, provider.RateLimitRequests, provider.RateLimitPeriod())
	if err != nil {
		// an unavailable limiter must not take ingestion down with it
		log.Warn().Err(err).Msg("rate limiter unavailable, admitting request")
		decision = ratelimit.Decision{Allowed: true}
	}
	if !decision.Allowed {
		retryAfter := decision.RetryAfter(g.now())
		g.observer.Notify(ctx, notify.Notification{
			Kind:     notify.RateLimitExceeded,
			Provider: provider.Name,
			Reason:   "rate_limit_exceeded",
		})
		result := reject(RateLimited, "rate_limit_exceeded", "rate limit exceeded",
			goerrors.CategoryRateLimit, TextCodeRateLimited,
			map[string]any{
				"provider":       provider.Name,
				"limit":          decision.Limit,
				"count":          decision.Count,
				"retry_after_ms": retryAfter.Milliseconds(),
			})
		result.RetryAfter = retryAfter
		return result
	}

	if provider.MaxPayloadBytes > 0 && int64(len(body)) > provider.MaxPayloadBytes {
		return reject(PayloadTooLarge, "payload_too_large", "payload exceeds provider limit",
			goerrors.CategoryBadInput, TextCodePayloadTooLarge,
			map[string]any{
				"provider":  provider.Name,
				"size":      len(body),
				"max_bytes": provider.MaxPayloadBytes,
			})
	}

	g.observer.Notify(ctx, notify.Notification{Kind: notify.WebhookReceived, Provider: provider.Name})

	v, err := g.verifiers.Resolve(provider.Verifier, provider.CustomVerifier, provider.Headers)
	if err != nil {
		if errors.Is(err, verifier.ErrTestOnly) {
			return g.unauthenticated(ctx, provider.Name, verifier.TestOnlyVerifier)
		}
		log.Error().Err(err).Str("verifier", provider.Verifier.String()).Msg("resolving verifier")
		return internal(err, "verifier misconfigured", map[string]any{"provider": provider.Name})
	}

	verification := g.checker.Check(v, body, headers, provider.VerifierConfig())
	if !verification.Authenticated {
		return g.unauthenticated(ctx, provider.Name, verification.Reason)
	}

	verifiedKind := notify.SignatureVerified
	if verification.Skipped {
		verifiedKind = notify.SignatureSkipped
		log.Warn().Msg("signature verification skipped: no signing secret configured")
	}
	g.observer.Notify(ctx, notify.Notification{
		Kind:      verifiedKind,
		Provider:  provider.Name,
		EventID:   verification.EventID,
		EventType: verification.EventType,
	})

	registration, err := g.events.RegisterIfNew(ctx, provider.Name, verification.EventID, verification.EventType, body)
	if err != nil {
		log.Error().Err(err).Str("event_id", verification.EventID).Msg("registering event")
		return internal(err, "failed to register event", map[string]any{
			"provider": provider.Name,
			"event_id": verification.EventID,
		})
	}

	event := registration.Event
	if !registration.IsNew {
		g.observer.Notify(ctx, notify.Notification{
			Kind:      notify.DuplicateEvent,
			Provider:  provider.Name,
			EventID:   event.EventID,
			EventType: event.EventType,
		})
		log.Debug().Str("event_id", event.EventID).Msg("duplicate event ignored")
		return Result{
			Accepted:  true,
			Status:    Duplicate,
			Reason:    "duplicate_event",
			EventID:   event.EventID,
			EventType: event.EventType,
			Skipped:   verification.Skipped,
		}
	}

	summary, err := g.dispatcher.Dispatch(ctx, event)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.EventID).Msg("dispatching event")
		return internal(err, "failed to dispatch event", map[string]any{
			"provider": provider.Name,
			"event_id": event.EventID,
		})
	}

	return Result{
		Accepted:  true,
		Status:    Processed,
		EventID:   event.EventID,
		EventType: event.EventType,
		Skipped:   verification.Skipped,
		Dispatch:  summary,
	}
}

func (g *Gateway) unauthenticated(ctx context.Context, provider string, reason verifier.FailureReason) Result {
	g.observer.Notify(ctx, notify.Notification{
		Kind:     notify.SignatureFailed,
		Provider: provider,
		Reason:   reason.String(),
	})
	g.logger.Warn().
		Str("provider", provider).
		Str("reason", reason.String()).
		Msg("webhook authentication failed")

	return reject(Unauthenticated, reason.String(), "webhook authentication failed",
		goerrors.CategoryAuth, TextCodeUnauthenticated,
		map[string]any{"provider": provider, "reason": reason.String()})
}
