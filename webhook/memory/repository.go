package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marcelsud/webhook-gateway/webhook"
)

/* In-memory implementation of webhook.Repository
 * Suitable for single-process deployments and tests; state is lost on restart
 */
type Repository struct {
	mu     sync.RWMutex
	events map[string]*webhook.Event
	now    func() time.Time
}

// NewRepository creates an empty in-memory repository
func NewRepository() *Repository {
	return &Repository{
		events: make(map[string]*webhook.Event),
		now:    time.Now,
	}
}

// Insert stores the event unless its key already exists
func (r *Repository) Insert(ctx context.Context, event webhook.Event) error {
	key := event.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[key]; exists {
		return webhook.ErrDuplicate
	}

	stored := event
	stored.Payload = append([]byte(nil), event.Payload...)
	stored.Attempts = append([]webhook.Attempt(nil), event.Attempts...)
	r.events[key] = &stored

	return nil
}

// Get returns a copy of the stored event
func (r *Repository) Get(ctx context.Context, provider, eventID string) (webhook.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.events[webhook.Key(provider, eventID)]
	if !ok {
		return webhook.Event{}, fmt.Errorf("%w: %s", webhook.ErrNotFound, webhook.Key(provider, eventID))
	}

	event := *stored
	event.Attempts = append([]webhook.Attempt(nil), stored.Attempts...)
	return event, nil
}

// UpdateStatus sets the aggregate status of an event
func (r *Repository) UpdateStatus(ctx context.Context, provider, eventID string, status webhook.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.events[webhook.Key(provider, eventID)]
	if !ok {
		return fmt.Errorf("%w: %s", webhook.ErrNotFound, webhook.Key(provider, eventID))
	}

	stored.Status = status
	stored.UpdatedAt = r.now().UTC()
	return nil
}

// AppendAttempt adds an attempt to the event history
func (r *Repository) AppendAttempt(ctx context.Context, provider, eventID string, attempt webhook.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.events[webhook.Key(provider, eventID)]
	if !ok {
		return fmt.Errorf("%w: %s", webhook.ErrNotFound, webhook.Key(provider, eventID))
	}

	stored.Attempts = append(stored.Attempts, attempt)
	stored.UpdatedAt = r.now().UTC()
	return nil
}

// StatusCounts returns the number of events per status
func (r *Repository) StatusCounts(ctx context.Context) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[string]int64{
		webhook.Received.String():   0,
		webhook.Processing.String(): 0,
		webhook.Completed.String():  0,
		webhook.Failed.String():     0,
	}
	for _, e := range r.events {
		counts[e.Status.String()]++
	}
	return counts, nil
}

// ProviderCounts returns the number of stored events per provider
func (r *Repository) ProviderCounts(ctx context.Context) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64)
	for _, e := range r.events {
		counts[e.Provider]++
	}
	return counts, nil
}

// CompletedSince counts events that reached completed at or after since
func (r *Repository) CompletedSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, e := range r.events {
		if e.Status == webhook.Completed && !e.UpdatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory repository
func (r *Repository) Close(ctx context.Context) error {
	return nil
}

var _ webhook.Repository = (*Repository)(nil)
