package metrics

import (
	"context"
	"fmt"
	"time"
)

// StatusSource is the read side a store exposes for metrics.
// webhook/memory and webhook/postgres repositories satisfy it.
type StatusSource interface {
	StatusCounts(ctx context.Context) (map[string]int64, error)
	ProviderCounts(ctx context.Context) (map[string]int64, error)
	CompletedSince(ctx context.Context, since time.Time) (int64, error)
}

// StoreCollector implements Collector on top of a queryable event store
type StoreCollector struct {
	source StatusSource
	now    func() time.Time
}

// NewStoreCollector creates a collector backed by source
func NewStoreCollector(source StatusSource) *StoreCollector {
	return &StoreCollector{source: source, now: time.Now}
}

// Collect gathers all metrics from the store
func (c *StoreCollector) Collect(ctx context.Context) (Metrics, error) {
	statusCounts, err := c.GetStatusCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting status counts: %w", err)
	}

	providerCounts, err := c.GetProviderCounts(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting provider counts: %w", err)
	}

	throughput, err := c.GetThroughput(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("getting throughput: %w", err)
	}

	return Metrics{
		StatusCounts:   statusCounts,
		ProviderCounts: providerCounts,
		Throughput:     throughput,
		Timestamp:      c.now(),
	}, nil
}

// GetStatusCounts returns counts of events grouped by status
func (c *StoreCollector) GetStatusCounts(ctx context.Context) (map[string]int64, error) {
	return c.source.StatusCounts(ctx)
}

// GetProviderCounts returns counts of events grouped by provider
func (c *StoreCollector) GetProviderCounts(ctx context.Context) (map[string]int64, error) {
	return c.source.ProviderCounts(ctx)
}

// GetThroughput counts completed events per window
func (c *StoreCollector) GetThroughput(ctx context.Context) (ThroughputMetrics, error) {
	now := c.now()
	counts := make([]int64, len(windows))

	for i, w := range windows {
		n, err := c.source.CompletedSince(ctx, now.Add(-w))
		if err != nil {
			return ThroughputMetrics{}, fmt.Errorf("counting completed in %s: %w", w, err)
		}
		counts[i] = n
	}

	return ThroughputMetrics{
		LastMinute:         counts[0],
		LastFiveMinutes:    counts[1],
		LastFifteenMinutes: counts[2],
	}, nil
}

var _ Collector = (*StoreCollector)(nil)
