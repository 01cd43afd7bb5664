package providers

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/marcelsud/webhook-gateway/webhook/payload"
	"github.com/marcelsud/webhook-gateway/webhook/signature"
	"github.com/marcelsud/webhook-gateway/webhook/verifier"
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

/* Provider is the policy for one webhook source
 * SigningSecret is already resolved: a literal, or empty/UnresolvedSecret
 * which puts the provider in skip-verification mode.
 */
type Provider struct {
	Name                   string
	SigningSecret          string
	Verifier               verifier.Kind
	CustomVerifier         string
	Headers                verifier.Headers
	ToleranceSeconds       int
	RateLimitRequests      int
	RateLimitPeriodSeconds int
	MaxPayloadBytes        int64
	Active                 bool
	Handlers               []HandlerSpec
}

// HandlerSpec declares a forwarding handler for matching events
type HandlerSpec struct {
	Name               string
	EventType          string
	TargetURL          string
	ExpectedStatus     int // 0 accepts any 2xx
	Priority           int
	Async              bool
	RetryDelaysSeconds []int
	MaxAttempts        int
}

// Validate checks if the provider configuration is valid
func (p *Provider) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if !namePattern.MatchString(p.Name) {
		return fmt.Errorf("name must match %s (got %q)", namePattern, p.Name)
	}
	if err := p.Verifier.Validate(); err != nil {
		return fmt.Errorf("invalid verifier for provider %s: %w", p.Name, err)
	}
	if p.Verifier == verifier.KindCustom && p.CustomVerifier == "" {
		return fmt.Errorf("custom_verifier is required for provider %s", p.Name)
	}
	if p.ToleranceSeconds < 0 {
		return fmt.Errorf("timestamp_tolerance_seconds cannot be negative for provider %s", p.Name)
	}
	if p.RateLimitRequests < 0 || p.RateLimitPeriodSeconds < 0 {
		return fmt.Errorf("rate limit values cannot be negative for provider %s", p.Name)
	}
	if (p.RateLimitRequests > 0) != (p.RateLimitPeriodSeconds > 0) {
		return fmt.Errorf("rate_limit_requests and rate_limit_period_seconds must be set together for provider %s", p.Name)
	}
	if p.MaxPayloadBytes < 0 {
		return fmt.Errorf("max_payload_bytes cannot be negative for provider %s", p.Name)
	}
	// Standard Webhooks secrets have a fixed format we can check up front
	if p.Verifier == verifier.KindStandardWebhooks && !p.SkipsVerification() {
		if _, err := signature.ParseSecret(p.SigningSecret); err != nil {
			return fmt.Errorf("invalid signing_secret for provider %s: %w", p.Name, err)
		}
	}

	seen := make(map[string]bool, len(p.Handlers))
	for _, h := range p.Handlers {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("provider %s: %w", p.Name, err)
		}
		key := h.Name + "|" + h.EventType
		if seen[key] {
			return fmt.Errorf("provider %s: handler %s declared twice for %s", p.Name, h.Name, h.EventType)
		}
		seen[key] = true
	}

	return nil
}

// SkipsVerification reports whether requests bypass signature checks
func (p *Provider) SkipsVerification() bool {
	return verifier.SkipVerification(p.SigningSecret)
}

// Tolerance returns the timestamp tolerance, falling back to the default
func (p *Provider) Tolerance() time.Duration {
	if p.ToleranceSeconds <= 0 {
		return verifier.DefaultTolerance
	}
	return time.Duration(p.ToleranceSeconds) * time.Second
}

// RateLimitPeriod returns the limiter window
func (p *Provider) RateLimitPeriod() time.Duration {
	return time.Duration(p.RateLimitPeriodSeconds) * time.Second
}

// VerifierConfig returns the per-request verifier input
func (p *Provider) VerifierConfig() verifier.Config {
	return verifier.Config{
		Secret:    p.SigningSecret,
		Tolerance: p.Tolerance(),
	}
}

// Validate checks if the handler declaration is valid
func (h *HandlerSpec) Validate() error {
	if h.Name == "" {
		return fmt.Errorf("handler name cannot be empty")
	}
	if err := payload.ValidateEventType(h.EventType); err != nil {
		return fmt.Errorf("invalid event_type for handler %s: %w", h.Name, err)
	}
	if h.TargetURL == "" {
		return fmt.Errorf("target_url cannot be empty for handler %s", h.Name)
	}
	u, err := url.Parse(h.TargetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("target_url must be an absolute http(s) URL for handler %s", h.Name)
	}
	if h.ExpectedStatus != 0 && (h.ExpectedStatus < 200 || h.ExpectedStatus > 299) {
		return fmt.Errorf("expected_status must be a 2xx code for handler %s (got %d)", h.Name, h.ExpectedStatus)
	}
	if h.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts cannot be negative for handler %s", h.Name)
	}
	for _, d := range h.RetryDelaysSeconds {
		if d < 0 {
			return fmt.Errorf("retry_delays_seconds cannot be negative for handler %s", h.Name)
		}
	}
	return nil
}

// RetryDelays converts the configured delays to durations
func (h *HandlerSpec) RetryDelays() []time.Duration {
	delays := make([]time.Duration, len(h.RetryDelaysSeconds))
	for i, s := range h.RetryDelaysSeconds {
		delays[i] = time.Duration(s) * time.Second
	}
	return delays
}
