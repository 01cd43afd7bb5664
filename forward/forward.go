package forward

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marcelsud/webhook-gateway/dispatch"
	"github.com/marcelsud/webhook-gateway/providers"
	"github.com/marcelsud/webhook-gateway/webhook"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBodyBytes  = 1024
)

// Forwarding headers sent with every request
const (
	HeaderProvider  = "X-Webhook-Provider"
	HeaderEventID   = "X-Webhook-Event-Id"
	HeaderEventType = "X-Webhook-Event-Type"
)

/* Handler POSTs the event payload to a downstream URL
 *
 * - 2xx (or exactly ExpectedStatus when set) is success
 * - 408, 429 and 5xx are retryable, as are network errors
 * - every other status is fatal
 */
type Handler struct {
	TargetURL      string
	ExpectedStatus int
	client         *http.Client
}

// NewHandler creates a forwarding handler; a nil client gets a 10s timeout
func NewHandler(targetURL string, expectedStatus int, client *http.Client) *Handler {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Handler{
		TargetURL:      targetURL,
		ExpectedStatus: expectedStatus,
		client:         client,
	}
}

// Builder returns a providers.BuildFunc creating forwarding handlers that share client
func Builder(client *http.Client) providers.BuildFunc {
	return func(p providers.Provider, h providers.HandlerSpec) (dispatch.Handler, error) {
		return NewHandler(h.TargetURL, h.ExpectedStatus, client), nil
	}
}

// Handle delivers the event
func (h *Handler) Handle(ctx context.Context, event webhook.Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.TargetURL, bytes.NewReader(event.Payload))
	if err != nil {
		return dispatch.Fatal(fmt.Errorf("building forward request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderProvider, event.Provider)
	req.Header.Set(HeaderEventID, event.EventID)
	req.Header.Set(HeaderEventType, event.EventType)
	req.Header.Set("Idempotency-Key", event.Key())

	resp, err := h.client.Do(req)
	if err != nil {
		return dispatch.Retryable(fmt.Errorf("forwarding to %s: %w", h.TargetURL, err))
	}
	defer resp.Body.Close()

	if h.accepted(resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	statusErr := &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}

	if retryableStatus(resp.StatusCode) {
		return dispatch.Retryable(statusErr)
	}
	return dispatch.Fatal(statusErr)
}

func (h *Handler) accepted(status int) bool {
	if h.ExpectedStatus != 0 {
		return status == h.ExpectedStatus
	}
	return status >= 200 && status < 300
}

func retryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= 500
}

// StatusError reports an unexpected downstream response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

var _ dispatch.Handler = (*Handler)(nil)
