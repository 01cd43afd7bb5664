package providers

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/marcelsud/webhook-gateway/webhook/verifier"
	"gopkg.in/yaml.v3"
)

/* Loader reads providers.yaml into an immutable Snapshot
 * Secrets written as "env:NAME" are looked up here, so the engine only ever
 * sees a literal or the unresolved marker.
 */

// SecretPrefix marks an environment indirection
const SecretPrefix = "env:"

// Config represents the structure of providers.yaml
type Config struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig represents a single provider in the YAML file
type ProviderConfig struct {
	Name                   string          `yaml:"name"`
	SigningSecret          string          `yaml:"signing_secret"`
	Verifier               string          `yaml:"verifier"`
	CustomVerifier         string          `yaml:"custom_verifier"`
	SignatureHeader        string          `yaml:"signature_header"`
	TimestampHeader        string          `yaml:"timestamp_header"`
	SignaturePrefix        string          `yaml:"signature_prefix"`
	ToleranceSeconds       int             `yaml:"timestamp_tolerance_seconds"`
	RateLimitRequests      int             `yaml:"rate_limit_requests"`
	RateLimitPeriodSeconds int             `yaml:"rate_limit_period_seconds"`
	MaxPayloadBytes        int64           `yaml:"max_payload_bytes"`
	Active                 *bool           `yaml:"active"` // Default: true
	Handlers               []HandlerConfig `yaml:"handlers"`
}

// HandlerConfig represents a handler entry of a provider
type HandlerConfig struct {
	Name               string `yaml:"name"`
	EventType          string `yaml:"event_type"`
	TargetURL          string `yaml:"target_url"`
	ExpectedStatus     int    `yaml:"expected_status"`
	Priority           int    `yaml:"priority"`
	Async              bool   `yaml:"async"`
	RetryDelaysSeconds []int  `yaml:"retry_delays_seconds"`
	MaxAttempts        int    `yaml:"max_attempts"`
}

// Loader turns provider files into snapshots
type Loader struct {
	// LookupEnv resolves env: secrets; defaults to os.LookupEnv
	LookupEnv func(string) (string, bool)
	// DefaultToleranceSeconds applies to providers that leave the tolerance unset
	DefaultToleranceSeconds int
}

// NewLoader creates a new provider loader
func NewLoader() *Loader {
	return &Loader{LookupEnv: os.LookupEnv}
}

// Load reads and parses a providers file
func (l *Loader) Load(filePath string) (*Snapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading providers file: %w", err)
	}
	return l.Parse(data)
}

// Parse builds a snapshot from YAML
func (l *Loader) Parse(data []byte) (*Snapshot, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing providers YAML: %w", err)
	}

	snapshot := &Snapshot{providers: make(map[string]*Provider, len(config.Providers))}

	for _, pc := range config.Providers {
		kind, err := verifier.NewKind(pc.Verifier)
		if err != nil {
			return nil, fmt.Errorf("validating provider %s: %w", pc.Name, err)
		}

		active := true
		if pc.Active != nil {
			active = *pc.Active
		}

		tolerance := pc.ToleranceSeconds
		if tolerance == 0 {
			tolerance = l.DefaultToleranceSeconds
		}

		provider := &Provider{
			Name:           strings.TrimSpace(pc.Name),
			SigningSecret:  l.resolveSecret(pc.SigningSecret),
			Verifier:       kind,
			CustomVerifier: pc.CustomVerifier,
			Headers: verifier.Headers{
				Signature: pc.SignatureHeader,
				Timestamp: pc.TimestampHeader,
				Prefix:    pc.SignaturePrefix,
			},
			ToleranceSeconds:       tolerance,
			RateLimitRequests:      pc.RateLimitRequests,
			RateLimitPeriodSeconds: pc.RateLimitPeriodSeconds,
			MaxPayloadBytes:        pc.MaxPayloadBytes,
			Active:                 active,
		}

		for _, hc := range pc.Handlers {
			provider.Handlers = append(provider.Handlers, HandlerSpec{
				Name:               hc.Name,
				EventType:          hc.EventType,
				TargetURL:          hc.TargetURL,
				ExpectedStatus:     hc.ExpectedStatus,
				Priority:           hc.Priority,
				Async:              hc.Async,
				RetryDelaysSeconds: hc.RetryDelaysSeconds,
				MaxAttempts:        hc.MaxAttempts,
			})
		}

		if err := provider.Validate(); err != nil {
			return nil, fmt.Errorf("validating provider: %w", err)
		}
		if _, exists := snapshot.providers[provider.Name]; exists {
			return nil, fmt.Errorf("validating provider: duplicate name %s", provider.Name)
		}

		snapshot.providers[provider.Name] = provider
	}

	return snapshot, nil
}

func (l *Loader) resolveSecret(raw string) string {
	raw = strings.TrimSpace(raw)
	name, ok := strings.CutPrefix(raw, SecretPrefix)
	if !ok {
		return raw
	}

	lookup := l.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, found := lookup(strings.TrimSpace(name))
	if !found || strings.TrimSpace(value) == "" {
		return verifier.UnresolvedSecret
	}
	return value
}

// Snapshot is a read-only set of providers
type Snapshot struct {
	providers map[string]*Provider
}

// NewSnapshot builds a snapshot from already validated providers
func NewSnapshot(providers ...Provider) *Snapshot {
	s := &Snapshot{providers: make(map[string]*Provider, len(providers))}
	for i := range providers {
		p := providers[i]
		s.providers[p.Name] = &p
	}
	return s
}

// Get retrieves a provider by name. The returned value is a copy.
func (s *Snapshot) Get(name string) (Provider, bool) {
	if s == nil {
		return Provider{}, false
	}
	p, exists := s.providers[name]
	if !exists {
		return Provider{}, false
	}
	return *p, true
}

// List returns all providers sorted by name
func (s *Snapshot) List() []Provider {
	if s == nil {
		return nil
	}
	list := make([]Provider, 0, len(s.providers))
	for _, p := range s.providers {
		list = append(list, *p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Exists checks if a provider name exists
func (s *Snapshot) Exists(name string) bool {
	_, ok := s.Get(name)
	return ok
}
