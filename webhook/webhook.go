package webhook

import (
	"fmt"
	"time"
)

/* Event is the deduplication unit for one provider occurrence
 * Uses value semantics as it represents data, not behavior
 */
type Event struct {
	Provider  string
	EventID   string
	EventType string
	Status    Status
	Payload   []byte
	// Deduplicable is false when the provider payload carried no event id
	// and EventID was generated locally.
	Deduplicable bool
	Attempts     []Attempt
	ReceivedAt   time.Time
	UpdatedAt    time.Time
}

// Key returns the composite (provider, event id) key
func (e Event) Key() string {
	return Key(e.Provider, e.EventID)
}

// AttemptsFor returns the attempts recorded for a single handler
func (e Event) AttemptsFor(handler string) []Attempt {
	var attempts []Attempt
	for _, a := range e.Attempts {
		if a.Handler == handler {
			attempts = append(attempts, a)
		}
	}
	return attempts
}

// Key builds the composite key used by every repository implementation
func Key(provider, eventID string) string {
	return fmt.Sprintf("%s:%s", provider, eventID)
}

/* Attempt is one execution of one handler against one Event
 * Appended to the Event history, never rewritten
 */
type Attempt struct {
	ID         string
	Handler    string
	Number     int
	Outcome    Outcome
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}
