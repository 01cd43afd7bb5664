package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marcelsud/webhook-gateway/webhook"
	webhookredis "github.com/marcelsud/webhook-gateway/webhook/redis"
	"github.com/redis/go-redis/v9"
)

// RedisCollector implements the Collector interface for Redis-backed events
type RedisCollector struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisCollector creates a new Redis metrics collector
func NewRedisCollector(client *redis.Client) *RedisCollector {
	return &RedisCollector{
		client: client,
		now:    time.Now,
	}
}

// Collect gathers all metrics from Redis in a single scan
func (c *RedisCollector) Collect(ctx context.Context) (Metrics, error) {
	m := Metrics{
		StatusCounts:   emptyStatusCounts(),
		ProviderCounts: make(map[string]int64),
		Timestamp:      c.now(),
	}

	err := c.scan(ctx, func(fields eventFields) {
		m.ProviderCounts[fields.provider]++
		if _, exists := m.StatusCounts[fields.status]; exists {
			m.StatusCounts[fields.status]++
		}
		if fields.status == completed {
			m.Throughput.countInWindows(m.Timestamp, fields.updatedAt)
		}
	})
	if err != nil {
		return Metrics{}, err
	}

	return m, nil
}

// GetStatusCounts returns counts of events grouped by status
func (c *RedisCollector) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	statusCounts := emptyStatusCounts()

	err := c.scan(ctx, func(fields eventFields) {
		if _, exists := statusCounts[fields.status]; exists {
			statusCounts[fields.status]++
		}
	})
	if err != nil {
		return nil, err
	}

	return statusCounts, nil
}

// GetProviderCounts returns counts of events grouped by provider
func (c *RedisCollector) GetProviderCounts(ctx context.Context) (map[string]int64, error) {
	providerCounts := make(map[string]int64)

	err := c.scan(ctx, func(fields eventFields) {
		providerCounts[fields.provider]++
	})
	if err != nil {
		return nil, err
	}

	return providerCounts, nil
}

// GetThroughput calculates events completed over different time windows
func (c *RedisCollector) GetThroughput(ctx context.Context) (ThroughputMetrics, error) {
	now := c.now()
	var throughput ThroughputMetrics

	err := c.scan(ctx, func(fields eventFields) {
		if fields.status == completed {
			throughput.countInWindows(now, fields.updatedAt)
		}
	})
	if err != nil {
		return ThroughputMetrics{}, err
	}

	return throughput, nil
}

type eventFields struct {
	provider  string
	status    string
	updatedAt time.Time
}

// scan walks every event hash and hands its fields to fn
func (c *RedisCollector) scan(ctx context.Context, fn func(eventFields)) error {
	var cursor uint64
	pattern := webhookredis.KeyPrefix + ":*"

	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return fmt.Errorf("scanning event keys: %w", err)
		}

		// Skip attempt lists (event:*:attempts)
		eventKeys := keys[:0]
		for _, key := range keys {
			if strings.HasSuffix(key, webhookredis.AttemptsSuffix) {
				continue
			}
			eventKeys = append(eventKeys, key)
		}

		if len(eventKeys) > 0 {
			// Use pipeline for efficient batch operations
			pipe := c.client.Pipeline()
			cmds := make([]*redis.SliceCmd, len(eventKeys))
			for i, key := range eventKeys {
				cmds[i] = pipe.HMGet(ctx, key, "provider", "status", "updated_at")
			}

			if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
				return fmt.Errorf("executing pipeline: %w", err)
			}

			for _, cmd := range cmds {
				data, err := cmd.Result()
				if err != nil || len(data) < 3 {
					continue
				}

				provider, ok1 := data[0].(string)
				status, ok2 := data[1].(string)
				if !ok1 || !ok2 {
					// expired between SCAN and HMGET
					continue
				}

				var updatedAt time.Time
				if raw, ok := data[2].(string); ok {
					nanos, _ := strconv.ParseInt(raw, 10, 64)
					updatedAt = time.Unix(0, nanos)
				}

				fn(eventFields{provider: provider, status: status, updatedAt: updatedAt})
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			return nil
		}
	}
}

var completed = webhook.Completed.String()

func emptyStatusCounts() map[string]int64 {
	return map[string]int64{
		webhook.Received.String():   0,
		webhook.Processing.String(): 0,
		webhook.Completed.String():  0,
		webhook.Failed.String():     0,
	}
}

var _ Collector = (*RedisCollector)(nil)
