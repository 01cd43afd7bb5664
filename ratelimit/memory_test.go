package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcelsud/webhook-gateway/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Admit(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("N admitted then N+1 rejected", func(t *testing.T) {
		limiter := ratelimit.NewMemory().WithClock(func() time.Time { return base })

		for i := 1; i <= 5; i++ {
			d, err := limiter.Admit(ctx, "acme", 5, time.Minute)
			require.NoError(t, err)
			assert.True(t, d.Allowed, "request %d", i)
			assert.Equal(t, int64(i), d.Count)
		}

		d, err := limiter.Admit(ctx, "acme", 5, time.Minute)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, base.Add(time.Minute), d.ResetAt)
		assert.Equal(t, time.Minute, d.RetryAfter(base))
	})

	t.Run("rejections still count", func(t *testing.T) {
		limiter := ratelimit.NewMemory().WithClock(func() time.Time { return base })

		for i := 0; i < 4; i++ {
			_, err := limiter.Admit(ctx, "acme", 2, time.Minute)
			require.NoError(t, err)
		}

		d, err := limiter.Admit(ctx, "acme", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(5), d.Count)
	})

	t.Run("new window resets the count", func(t *testing.T) {
		now := base
		limiter := ratelimit.NewMemory().WithClock(func() time.Time { return now })

		_, _ = limiter.Admit(ctx, "acme", 1, time.Minute)
		d, _ := limiter.Admit(ctx, "acme", 1, time.Minute)
		assert.False(t, d.Allowed)

		now = base.Add(time.Minute)
		d, err := limiter.Admit(ctx, "acme", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(1), d.Count)
	})

	t.Run("providers are independent", func(t *testing.T) {
		limiter := ratelimit.NewMemory().WithClock(func() time.Time { return base })

		_, _ = limiter.Admit(ctx, "acme", 1, time.Minute)
		d, err := limiter.Admit(ctx, "globex", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	t.Run("no limit always admits", func(t *testing.T) {
		limiter := ratelimit.NewMemory()

		for i := 0; i < 100; i++ {
			d, err := limiter.Admit(ctx, "acme", 0, time.Minute)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
		}
		d, _ := limiter.Admit(ctx, "acme", 10, 0)
		assert.True(t, d.Allowed)
	})

	t.Run("concurrent arrivals admit exactly N", func(t *testing.T) {
		limiter := ratelimit.NewMemory().WithClock(func() time.Time { return base })
		var admitted atomic.Int32

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d, err := limiter.Admit(ctx, "acme", 10, time.Minute)
				if err == nil && d.Allowed {
					admitted.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(10), admitted.Load())
	})
}
