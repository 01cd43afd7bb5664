package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marcelsud/webhook-gateway/webhook"
	"github.com/marcelsud/webhook-gateway/webhook/payload"
)

// Handler reacts to an accepted event
type Handler interface {
	Handle(ctx context.Context, event webhook.Event) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, event webhook.Event) error

func (f HandlerFunc) Handle(ctx context.Context, event webhook.Event) error {
	return f(ctx, event)
}

/* Registration binds a handler to a provider and event type
 *
 * - Priority: lower runs first; ties keep registration order
 * - Async: hand the handler to the executor instead of running it inline
 * - RetryDelays: delay before attempt n+1 is RetryDelays[n-1]; the last one repeats
 * - MaxAttempts: upper bound on executions per event (defaults to 1)
 */
type Registration struct {
	Name        string
	EventType   string
	Handler     Handler
	Priority    int
	Async       bool
	RetryDelays []time.Duration
	MaxAttempts int

	seq int
}

// Delay returns the wait before the attempt that follows attempt
func (r Registration) Delay(attempt int) time.Duration {
	if len(r.RetryDelays) == 0 || attempt < 1 {
		return 0
	}
	i := attempt - 1
	if i >= len(r.RetryDelays) {
		i = len(r.RetryDelays) - 1
	}
	return r.RetryDelays[i]
}

// Registry holds the handler table. It is filled at startup and read
// concurrently afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]Registration
	seq      int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string][]Registration),
	}
}

// Register adds a handler for provider and eventType. eventType may be "*"
// or a "prefix.*" pattern.
func (r *Registry) Register(provider, eventType string, reg Registration) error {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return fmt.Errorf("provider is required")
	}
	if strings.TrimSpace(reg.Name) == "" {
		return fmt.Errorf("handler name is required")
	}
	if reg.Handler == nil {
		return fmt.Errorf("handler %q has no implementation", reg.Name)
	}
	if err := payload.ValidateEventType(eventType); err != nil {
		return fmt.Errorf("handler %q: %w", reg.Name, err)
	}
	for _, d := range reg.RetryDelays {
		if d < 0 {
			return fmt.Errorf("handler %q: negative retry delay %s", reg.Name, d)
		}
	}
	if reg.MaxAttempts < 0 {
		return fmt.Errorf("handler %q: max attempts must not be negative", reg.Name)
	}
	if reg.MaxAttempts == 0 {
		reg.MaxAttempts = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.handlers[provider] {
		if existing.Name == reg.Name && existing.EventType == eventType {
			return fmt.Errorf("handler %q already registered for %s %s", reg.Name, provider, eventType)
		}
	}

	r.seq++
	reg.seq = r.seq
	reg.EventType = eventType
	reg.RetryDelays = append([]time.Duration(nil), reg.RetryDelays...)
	r.handlers[provider] = append(r.handlers[provider], reg)

	return nil
}

// Resolve returns the handlers matching eventType in execution order.
// The slice is a copy and may be modified by the caller.
func (r *Registry) Resolve(provider, eventType string) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Registration
	for _, reg := range r.handlers[provider] {
		if payload.MatchEventType(reg.EventType, eventType) {
			matched = append(matched, reg)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return matched[i].seq < matched[j].seq
	})

	return matched
}

// Providers returns the providers with at least one handler
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]string, 0, len(r.handlers))
	for p := range r.handlers {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers
}
