package verifier

import (
	"net/http"
	"strings"
	"time"

	"github.com/marcelsud/webhook-gateway/webhook/payload"
	"github.com/marcelsud/webhook-gateway/webhook/signature"
)

// UnresolvedSecret is the marker the provider loader leaves behind when an
// env: indirection points at an unset variable
const UnresolvedSecret = "__UNRESOLVED__"

// DefaultTolerance applies when a provider sets no timestamp tolerance
const DefaultTolerance = 300 * time.Second

/* Verifier authenticates a request for one signing scheme and extracts
 * event metadata from it
 *
 * VerifySignature never panics or errors: malformed input is simply false.
 */
type Verifier interface {
	VerifySignature(body []byte, headers http.Header, cfg Config) bool
	ExtractTimestamp(headers http.Header) (int64, bool)
	ExtractEventID(body []byte) (string, bool)
	ExtractEventType(body []byte) (string, bool)
}

// Config is the per-provider input to a verification
type Config struct {
	Secret    string
	Tolerance time.Duration
}

// SkipVerification reports whether secret puts the provider in skip mode
func SkipVerification(secret string) bool {
	secret = strings.TrimSpace(secret)
	return secret == "" || secret == UnresolvedSecret
}

func (c Config) tolerance() time.Duration {
	if c.Tolerance <= 0 {
		return DefaultTolerance
	}
	return c.Tolerance
}

// testOnly is implemented by verifiers that must never run in production
type testOnly interface {
	IsTestOnly() bool
}

// signatureLocator lets Check tell a missing signature from a wrong one
type signatureLocator interface {
	SignaturePresent(headers http.Header) bool
}

// timestampRequirer marks schemes whose signed content includes a timestamp
type timestampRequirer interface {
	RequiresTimestamp() bool
}

// headerIdentifier is implemented by schemes that carry the event id in a header
type headerIdentifier interface {
	EventIDFromHeaders(headers http.Header) (string, bool)
}

// IsTestOnly reports whether v is flagged as test-only
func IsTestOnly(v Verifier) bool {
	t, ok := v.(testOnly)
	return ok && t.IsTestOnly()
}

// Result is the outcome of a full verification
type Result struct {
	Authenticated bool
	Skipped       bool
	Reason        FailureReason
	EventID       string
	EventType     string
	Timestamp     int64
}

// Checker runs the complete verification policy around a Verifier
type Checker struct {
	// Production refuses skip mode and test-only verifiers
	Production bool
	Now        func() time.Time
}

// Check authenticates a request and extracts its metadata.
// Order: skip mode, signature presence, timestamp parse, signature, tolerance.
func (c Checker) Check(v Verifier, body []byte, headers http.Header, cfg Config) Result {
	if c.Production && IsTestOnly(v) {
		return Result{Reason: TestOnlyVerifier}
	}

	if SkipVerification(cfg.Secret) {
		if c.Production {
			return Result{Reason: MissingSecret}
		}
		result := extract(v, body, headers)
		result.Authenticated = true
		result.Skipped = true
		return result
	}

	if loc, ok := v.(signatureLocator); ok && !loc.SignaturePresent(headers) {
		return Result{Reason: MissingSignature}
	}

	ts, hasTimestamp := v.ExtractTimestamp(headers)
	if req, ok := v.(timestampRequirer); ok && req.RequiresTimestamp() && !hasTimestamp {
		return Result{Reason: TimestampInvalid}
	}

	if !v.VerifySignature(body, headers, cfg) {
		return Result{Reason: InvalidSignature}
	}

	if hasTimestamp {
		tolerance := int64(cfg.tolerance() / time.Second)
		if !signature.TimestampWithinTolerance(ts, tolerance, c.now().Unix()) {
			return Result{Reason: TimestampOutOfTolerance, Timestamp: ts}
		}
	}

	result := extract(v, body, headers)
	result.Authenticated = true
	if hasTimestamp {
		result.Timestamp = ts
	}
	return result
}

func (c Checker) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func extract(v Verifier, body []byte, headers http.Header) Result {
	var result Result

	result.EventID, _ = v.ExtractEventID(body)
	if result.EventID == "" {
		if hi, ok := v.(headerIdentifier); ok {
			result.EventID, _ = hi.EventIDFromHeaders(headers)
		}
	}
	result.EventType, _ = v.ExtractEventType(body)
	result.Timestamp, _ = v.ExtractTimestamp(headers)
	if result.Timestamp == 0 {
		result.Timestamp, _ = payload.ExtractTimestamp(body)
	}

	return result
}
