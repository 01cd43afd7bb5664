package webhook

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no event exists for a (provider, event id) key
	ErrNotFound = errors.New("event not found")
	// ErrDuplicate is returned by Insert when the key is already taken
	ErrDuplicate = errors.New("event already exists")
)

/* Small, focused interfaces
 * Implementations live in webhook/memory, webhook/redis and webhook/postgres
 */

// Reader provides read operations for events
type Reader interface {
	Get(ctx context.Context, provider, eventID string) (Event, error)
}

// Writer provides write operations for events
type Writer interface {
	/* Insert stores a new event if its (provider, event id) key is free
	 * Must be atomic: concurrent inserts of the same key yield exactly one success,
	 * every other caller gets ErrDuplicate
	 */
	Insert(ctx context.Context, event Event) error
	UpdateStatus(ctx context.Context, provider, eventID string, status Status) error
	AppendAttempt(ctx context.Context, provider, eventID string, attempt Attempt) error
}

// Repository combines the read and write sides of event storage
type Repository interface {
	Reader
	Writer
	Close(ctx context.Context) error
}
