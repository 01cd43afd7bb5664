package notify

import (
	"context"
	"time"
)

// Kind identifies what happened
type Kind string

const (
	WebhookReceived   Kind = "webhook_received"
	SignatureVerified Kind = "signature_verified"
	SignatureSkipped  Kind = "signature_skipped"
	SignatureFailed   Kind = "signature_failed"
	RateLimitExceeded Kind = "rate_limit_exceeded"
	DuplicateEvent    Kind = "duplicate_event"
	ActionCompleted   Kind = "action_completed"
	ActionFailed      Kind = "action_failed"
)

// Kinds lists every notification kind
var Kinds = []Kind{
	WebhookReceived,
	SignatureVerified,
	SignatureSkipped,
	SignatureFailed,
	RateLimitExceeded,
	DuplicateEvent,
	ActionCompleted,
	ActionFailed,
}

// IsSecurityEvent reports whether k should be surfaced as a security signal
func (k Kind) IsSecurityEvent() bool {
	switch k {
	case SignatureFailed, SignatureSkipped, RateLimitExceeded:
		return true
	default:
		return false
	}
}

/* Notification is one structured outcome of the engine
 * Fields that do not apply to a kind are left zero.
 */
type Notification struct {
	Kind      Kind
	Provider  string
	EventID   string
	EventType string
	Handler   string
	Attempt   int
	// Final is set on action_failed when no further attempt will follow
	Final  bool
	Reason string
	Err    error
	At     time.Time
}

// Observer receives notifications. Implementations must not block for long.
type Observer interface {
	Notify(ctx context.Context, n Notification)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, n Notification)

func (f ObserverFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Nop discards every notification
type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}

// Multi fans a notification out to several observers in order. A panicking
// observer does not keep the others from being notified.
type Multi []Observer

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, o := range m {
		if o != nil {
			safe{inner: o}.Notify(ctx, n)
		}
	}
}

// Safe wraps an observer so a panic inside it never reaches the caller.
// A zero At is stamped with the current time.
func Safe(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return safe{inner: o}
}

type safe struct {
	inner Observer
}

func (s safe) Notify(ctx context.Context, n Notification) {
	defer func() {
		_ = recover()
	}()
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	s.inner.Notify(ctx, n)
}
