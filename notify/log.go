package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Log writes notifications as structured log lines.
// Security events go out at warn level, action failures at error level.
type Log struct {
	Logger zerolog.Logger
}

// NewLog creates a logging observer
func NewLog(logger zerolog.Logger) *Log {
	return &Log{Logger: logger}
}

func (l *Log) Notify(ctx context.Context, n Notification) {
	var event *zerolog.Event
	switch {
	case n.Kind == ActionFailed:
		event = l.Logger.Error()
	case n.Kind.IsSecurityEvent():
		event = l.Logger.Warn()
	default:
		event = l.Logger.Info()
	}

	event = event.
		Str("notification", string(n.Kind)).
		Str("provider", n.Provider)

	if n.EventID != "" {
		event = event.Str("event_id", n.EventID)
	}
	if n.EventType != "" {
		event = event.Str("event_type", n.EventType)
	}
	if n.Handler != "" {
		event = event.Str("handler", n.Handler).Int("attempt", n.Attempt)
	}
	if n.Kind == ActionFailed {
		event = event.Bool("final", n.Final)
	}
	if n.Reason != "" {
		event = event.Str("reason", n.Reason)
	}
	if n.Err != nil {
		event = event.Err(n.Err)
	}
	if !n.At.IsZero() {
		event = event.Time("at", n.At)
	}

	event.Msg("webhook " + string(n.Kind))
}
