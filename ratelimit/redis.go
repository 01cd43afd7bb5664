package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces counters: ratelimit:{key}:{window start unix}
const KeyPrefix = "ratelimit"

// Redis is a Limiter shared by every gateway instance
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedis creates a limiter backed by client
func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		client: client,
		now:    time.Now,
	}
}

// Admit runs INCR and EXPIRE NX in one transaction, so the first request of a
// window sets its expiry and later ones only count
func (r *Redis) Admit(ctx context.Context, key string, limit int, period time.Duration) (Decision, error) {
	if Unlimited(limit, period) {
		return Decision{Allowed: true, Limit: limit}, nil
	}

	start := windowStart(r.now(), period)
	counterKey := fmt.Sprintf("%s:%s:%d", KeyPrefix, key, start.Unix())

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, counterKey)
	pipe.ExpireNX(ctx, counterKey, period)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("incrementing rate limit counter: %w", err)
	}

	count := incr.Val()
	return Decision{
		Allowed: count <= int64(limit),
		Count:   count,
		Limit:   limit,
		ResetAt: start.Add(period),
	}, nil
}

var _ Limiter = (*Redis)(nil)
