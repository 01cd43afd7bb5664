package ratelimit

import (
	"context"
	"time"
)

/* Fixed-window request limiter
 *
 * Each key gets a counter per window of length period. Every call increments
 * the counter, rejected calls included, so a retry storm cannot slip in by
 * hammering the limit. A limit or period <= 0 means "no limit".
 */

// Limiter admits or rejects one request for key
type Limiter interface {
	Admit(ctx context.Context, key string, limit int, period time.Duration) (Decision, error)
}

// Decision is the outcome of Admit
type Decision struct {
	Allowed bool
	Count   int64
	Limit   int
	ResetAt time.Time
}

// RetryAfter returns how long until the current window closes
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Unlimited reports whether the limit settings disable rate limiting
func Unlimited(limit int, period time.Duration) bool {
	return limit <= 0 || period <= 0
}

func windowStart(now time.Time, period time.Duration) time.Time {
	return now.Truncate(period)
}
