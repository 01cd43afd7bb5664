package gateway

import (
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/marcelsud/webhook-gateway/dispatch"
)

// StatusHint tells the transport how to answer the sender
type StatusHint int

const (
	Processed StatusHint = iota + 1
	Duplicate
	RateLimited
	Unauthenticated
	PayloadTooLarge
	InactiveProvider
	UnknownProvider
	Internal
)

// String returns the string representation of the hint
func (s StatusHint) String() string {
	switch s {
	case Processed:
		return "processed"
	case Duplicate:
		return "duplicate"
	case RateLimited:
		return "rate_limited"
	case Unauthenticated:
		return "unauthenticated"
	case PayloadTooLarge:
		return "payload_too_large"
	case InactiveProvider:
		return "inactive_provider"
	case UnknownProvider:
		return "unknown_provider"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// HTTPStatus maps the hint to a response code. Duplicates answer 200 so the
// sender stops retrying an event that was already accepted.
func (s StatusHint) HTTPStatus() int {
	switch s {
	case Processed, Duplicate:
		return http.StatusOK
	case RateLimited:
		return http.StatusTooManyRequests
	case Unauthenticated:
		return http.StatusUnauthorized
	case PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case InactiveProvider:
		return http.StatusForbidden
	case UnknownProvider:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Text codes carried by rejection envelopes
const (
	TextCodeUnknownProvider  = "UNKNOWN_PROVIDER"
	TextCodeInactiveProvider = "PROVIDER_INACTIVE"
	TextCodeRateLimited      = "RATE_LIMITED"
	TextCodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	TextCodeUnauthenticated  = "UNAUTHENTICATED"
	TextCodeInternal         = "INTERNAL"
)

/* Result is the answer of ProcessInbound
 * Err is set for every non-accepted result and carries the category,
 * HTTP code, text code and metadata of the rejection.
 */
type Result struct {
	Accepted   bool
	Status     StatusHint
	Reason     string
	EventID    string
	EventType  string
	Skipped    bool
	RetryAfter time.Duration
	Dispatch   dispatch.Summary
	Err        *goerrors.Error
}

// HTTPStatus returns the response code for the result
func (r Result) HTTPStatus() int {
	return r.Status.HTTPStatus()
}

func reject(status StatusHint, reason, message string, category goerrors.Category, textCode string, metadata map[string]any) Result {
	err := goerrors.New(message, category).
		WithCode(status.HTTPStatus()).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return Result{
		Status: status,
		Reason: reason,
		Err:    err,
	}
}

func internal(source error, message string, metadata map[string]any) Result {
	err := goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(TextCodeInternal)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return Result{
		Status: Internal,
		Reason: "internal_error",
		Err:    err,
	}
}
