package providers

import (
	"fmt"

	"github.com/marcelsud/webhook-gateway/dispatch"
)

// BuildFunc turns a handler declaration into a runnable handler
type BuildFunc func(p Provider, h HandlerSpec) (dispatch.Handler, error)

// RegisterHandlers registers every declared handler of the snapshot.
// Handlers are bound once at startup; Reload refreshes provider policy only.
func (s *Snapshot) RegisterHandlers(registry *dispatch.Registry, build BuildFunc) (int, error) {
	count := 0
	for _, p := range s.List() {
		for _, h := range p.Handlers {
			handler, err := build(p, h)
			if err != nil {
				return count, fmt.Errorf("building handler %s for provider %s: %w", h.Name, p.Name, err)
			}

			err = registry.Register(p.Name, h.EventType, dispatch.Registration{
				Name:        h.Name,
				Handler:     handler,
				Priority:    h.Priority,
				Async:       h.Async,
				RetryDelays: h.RetryDelays(),
				MaxAttempts: h.MaxAttempts,
			})
			if err != nil {
				return count, fmt.Errorf("registering handler %s for provider %s: %w", h.Name, p.Name, err)
			}
			count++
		}
	}
	return count, nil
}
