package verifier

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Kind selects a verification scheme
type Kind string

const (
	KindHMACSHA256       Kind = "hmac-sha256"
	KindBase64HMAC       Kind = "base64-hmac"
	KindKeyValue         Kind = "key-value"
	KindStandardWebhooks Kind = "standard-webhooks"
	KindAlwaysPass       Kind = "always-pass"
	KindCustom           Kind = "custom"
)

var (
	ErrUnknownKind   = errors.New("unknown verifier kind")
	ErrUnknownCustom = errors.New("unknown custom verifier")
	ErrTestOnly      = errors.New("test-only verifier refused in production mode")
)

// NewKind parses a kind name; empty defaults to hmac-sha256
func NewKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return KindHMACSHA256, nil
	}
	if err := k.Validate(); err != nil {
		return "", err
	}
	return k, nil
}

// Validate checks that k is one of the known kinds
func (k Kind) Validate() error {
	switch k {
	case KindHMACSHA256, KindBase64HMAC, KindKeyValue, KindStandardWebhooks, KindAlwaysPass, KindCustom:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
	}
}

// String returns the kind name
func (k Kind) String() string {
	return string(k)
}

/* Registry builds verifiers for providers
 * Built-in kinds are constructed on demand; custom verifiers are registered
 * by name at startup and looked up when a provider asks for kind "custom".
 */
type Registry struct {
	mu         sync.RWMutex
	custom     map[string]Verifier
	production bool
}

// NewRegistry creates a registry; production refuses test-only kinds
func NewRegistry(production bool) *Registry {
	return &Registry{
		custom:     make(map[string]Verifier),
		production: production,
	}
}

// RegisterCustom adds an externally supplied verifier under name
func (r *Registry) RegisterCustom(name string, v Verifier) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("custom verifier name is required")
	}
	if v == nil {
		return fmt.Errorf("custom verifier %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.custom[name]; exists {
		return fmt.Errorf("custom verifier %q already registered", name)
	}
	r.custom[name] = v
	return nil
}

// Resolve returns the verifier for kind. name selects a custom verifier and
// is ignored for built-ins.
func (r *Registry) Resolve(kind Kind, name string, headers Headers) (Verifier, error) {
	var v Verifier

	switch kind {
	case KindHMACSHA256, "":
		v = NewHMACSHA256(headers)
	case KindBase64HMAC:
		v = NewBase64HMAC(headers)
	case KindKeyValue:
		v = NewKeyValue(headers)
	case KindStandardWebhooks:
		v = NewStandardWebhooks()
	case KindAlwaysPass:
		v = AlwaysPass{}
	case KindCustom:
		r.mu.RLock()
		custom, ok := r.custom[name]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCustom, name)
		}
		v = custom
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}

	if r.production && IsTestOnly(v) {
		return nil, fmt.Errorf("%w: %s", ErrTestOnly, kind)
	}

	return v, nil
}

// Production reports whether the registry enforces production mode
func (r *Registry) Production() bool {
	return r.production
}
