package metrics

import (
	"context"
	"time"
)

// Metrics represents the current state of the event store.
type Metrics struct {
	// StatusCounts maps status name to count of events in that status
	StatusCounts map[string]int64 `json:"status_counts"`

	// ProviderCounts maps provider name to the number of stored events
	ProviderCounts map[string]int64 `json:"provider_counts"`

	// Throughput represents events completed per time window
	Throughput ThroughputMetrics `json:"throughput"`

	// Timestamp when metrics were collected
	Timestamp time.Time `json:"timestamp"`
}

// ThroughputMetrics represents events completed over different time windows.
type ThroughputMetrics struct {
	// LastMinute is events completed in the last 1 minute
	LastMinute int64 `json:"last_minute"`

	// LastFiveMinutes is events completed in the last 5 minutes
	LastFiveMinutes int64 `json:"last_five_minutes"`

	// LastFifteenMinutes is events completed in the last 15 minutes
	LastFifteenMinutes int64 `json:"last_fifteen_minutes"`
}

// Collector defines the interface for collecting metrics from the event store.
type Collector interface {
	// Collect gathers current metrics from the store
	Collect(ctx context.Context) (Metrics, error)

	// GetStatusCounts returns the count of events by status
	GetStatusCounts(ctx context.Context) (map[string]int64, error)

	// GetProviderCounts returns the count of stored events by provider
	GetProviderCounts(ctx context.Context) (map[string]int64, error)

	// GetThroughput returns events completed over time windows
	GetThroughput(ctx context.Context) (ThroughputMetrics, error)
}

// windows are the throughput lookbacks, shortest first
var windows = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute}

// countInWindows buckets a completion time into the throughput windows
func (t *ThroughputMetrics) countInWindows(now, completedAt time.Time) {
	age := now.Sub(completedAt)
	if age > windows[2] {
		return
	}
	t.LastFifteenMinutes++
	if age <= windows[1] {
		t.LastFiveMinutes++
		if age <= windows[0] {
			t.LastMinute++
		}
	}
}
