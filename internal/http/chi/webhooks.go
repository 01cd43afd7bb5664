package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/marcelsud/webhook-gateway/gateway"
	"github.com/marcelsud/webhook-gateway/providers"
	"github.com/marcelsud/webhook-gateway/webhook"
)

/* HTTP layer DTOs for the gateway API
 * Separate from domain entities to avoid leaking internal structure
 */

// webhookResponse represents the API response to an inbound webhook
type webhookResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Skipped   bool   `json:"verification_skipped,omitempty"`
	Handlers  int    `json:"handlers,omitempty"`
}

// errorResponse carries a rejection
type errorResponse struct {
	Status   string         `json:"status"`
	Reason   string         `json:"reason,omitempty"`
	Message  string         `json:"message"`
	Code     string         `json:"code,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// providerResponse represents a provider in the API; secrets never leave the process
type providerResponse struct {
	Name              string            `json:"name"`
	Verifier          string            `json:"verifier"`
	Active            bool              `json:"active"`
	VerificationSkip  bool              `json:"verification_skipped"`
	ToleranceSeconds  int               `json:"timestamp_tolerance_seconds"`
	RateLimitRequests int               `json:"rate_limit_requests,omitempty"`
	RateLimitPeriod   int               `json:"rate_limit_period_seconds,omitempty"`
	MaxPayloadBytes   int64             `json:"max_payload_bytes,omitempty"`
	Handlers          []handlerResponse `json:"handlers"`
}

type handlerResponse struct {
	Name        string `json:"name"`
	EventType   string `json:"event_type"`
	TargetURL   string `json:"target_url"`
	Priority    int    `json:"priority"`
	Async       bool   `json:"async"`
	MaxAttempts int    `json:"max_attempts"`
}

// eventResponse represents a stored event and its attempt history
type eventResponse struct {
	Provider   string            `json:"provider"`
	EventID    string            `json:"event_id"`
	EventType  string            `json:"event_type"`
	Status     string            `json:"status"`
	ReceivedAt time.Time         `json:"received_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Attempts   []attemptResponse `json:"attempts"`
}

type attemptResponse struct {
	Handler    string    `json:"handler"`
	Number     int       `json:"number"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// postWebhook handles POST /v1/webhooks/{provider}
func postWebhook(inbound Inbound, maxBodyBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")

		// Hard cap on what we buffer; per-provider limits are applied by the gateway
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		defer r.Body.Close()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
					Status:  gateway.PayloadTooLarge.String(),
					Reason:  "payload_too_large",
					Message: "request body too large",
					Code:    gateway.TextCodePayloadTooLarge,
				})
				return
			}
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Status:  "bad_request",
				Message: "failed to read request body",
			})
			return
		}

		result := inbound.ProcessInbound(r.Context(), provider, body, r.Header)

		if result.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(result.RetryAfter)))
		}

		if !result.Accepted {
			writeJSON(w, result.HTTPStatus(), newErrorResponse(result))
			return
		}

		writeJSON(w, result.HTTPStatus(), webhookResponse{
			Status:    result.Status.String(),
			EventID:   result.EventID,
			EventType: result.EventType,
			Skipped:   result.Skipped,
			Handlers:  result.Dispatch.Handlers,
		})
	})
}

// getProviders handles GET /v1/providers
func getProviders(source ProviderLister) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		all := source.List()

		responses := make([]providerResponse, 0, len(all))
		for _, p := range all {
			responses = append(responses, newProviderResponse(p))
		}

		writeJSON(w, http.StatusOK, responses)
	})
}

// getEvent handles GET /v1/providers/{provider}/events/{event_id}
func getEvent(events webhook.Reader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		eventID := chi.URLParam(r, "event_id")

		event, err := events.Get(r.Context(), provider, eventID)
		if err != nil {
			if errors.Is(err, webhook.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, errorResponse{
					Status:  "not_found",
					Message: "event not found",
					Code:    "EVENT_NOT_FOUND",
				})
				return
			}
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Status:  gateway.Internal.String(),
				Message: "failed to load event",
				Code:    gateway.TextCodeInternal,
			})
			return
		}

		writeJSON(w, http.StatusOK, newEventResponse(event))
	})
}

// postReload handles POST /v1/providers/reload
func postReload(reloader Reloader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := reloader.Reload(); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Status:  "reload_failed",
				Message: err.Error(),
			})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func newErrorResponse(result gateway.Result) errorResponse {
	resp := errorResponse{
		Status: result.Status.String(),
		Reason: result.Reason,
	}
	if result.Err == nil {
		resp.Message = result.Reason
		return resp
	}

	resp.Message = result.Err.Message
	resp.Code = result.Err.TextCode
	// internal failures keep their details in the logs
	if result.Err.Category != goerrors.CategoryInternal {
		resp.Metadata = result.Err.Metadata
	}
	return resp
}

func newProviderResponse(p providers.Provider) providerResponse {
	handlers := make([]handlerResponse, 0, len(p.Handlers))
	for _, h := range p.Handlers {
		maxAttempts := h.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 1
		}
		handlers = append(handlers, handlerResponse{
			Name:        h.Name,
			EventType:   h.EventType,
			TargetURL:   h.TargetURL,
			Priority:    h.Priority,
			Async:       h.Async,
			MaxAttempts: maxAttempts,
		})
	}

	return providerResponse{
		Name:              p.Name,
		Verifier:          p.Verifier.String(),
		Active:            p.Active,
		VerificationSkip:  p.SkipsVerification(),
		ToleranceSeconds:  int(p.Tolerance() / time.Second),
		RateLimitRequests: p.RateLimitRequests,
		RateLimitPeriod:   p.RateLimitPeriodSeconds,
		MaxPayloadBytes:   p.MaxPayloadBytes,
		Handlers:          handlers,
	}
}

func newEventResponse(e webhook.Event) eventResponse {
	attempts := make([]attemptResponse, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		attempts = append(attempts, attemptResponse{
			Handler:    a.Handler,
			Number:     a.Number,
			Outcome:    a.Outcome.String(),
			Error:      a.Error,
			StartedAt:  a.StartedAt,
			FinishedAt: a.FinishedAt,
		})
	}

	return eventResponse{
		Provider:   e.Provider,
		EventID:    e.EventID,
		EventType:  e.EventType,
		Status:     e.Status.String(),
		ReceivedAt: e.ReceivedAt,
		UpdatedAt:  e.UpdatedAt,
		Attempts:   attempts,
	}
}

// retryAfterSeconds rounds up so clients never retry inside the closed window
func retryAfterSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
