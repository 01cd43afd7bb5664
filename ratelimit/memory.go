package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int64
}

// Memory is a process-local Limiter
type Memory struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemory creates an in-memory limiter
func NewMemory() *Memory {
	return &Memory{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// WithClock replaces the time source, used by tests
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Admit increments key's counter for the current window and compares it to limit
func (m *Memory) Admit(ctx context.Context, key string, limit int, period time.Duration) (Decision, error) {
	if Unlimited(limit, period) {
		return Decision{Allowed: true, Limit: limit}, nil
	}

	now := m.now()
	start := windowStart(now, period)

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !w.start.Equal(start) {
		// a new window replaces the expired one
		w = &window{start: start}
		m.windows[key] = w
	}
	w.count++

	return Decision{
		Allowed: w.count <= int64(limit),
		Count:   w.count,
		Limit:   limit,
		ResetAt: start.Add(period),
	}, nil
}

var _ Limiter = (*Memory)(nil)
