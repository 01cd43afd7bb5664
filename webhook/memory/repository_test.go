package memory_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/marcelsud/webhook-gateway/webhook"
	"github.com/marcelsud/webhook-gateway/webhook/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRepository_Insert(t *testing.T) {
	ctx := context.Background()

	t.Run("store and retrieve", func(t *testing.T) {
		repo := memory.NewRepository()

		err := repo.Insert(ctx, webhook.Event{Provider: "acme", EventID: "evt_1", EventType: "paid", Status: webhook.Received})
		require.NoError(t, err)

		got, err := repo.Get(ctx, "acme", "evt_1")
		require.NoError(t, err)
		assert.Equal(t, "paid", got.EventType)
		assert.Equal(t, webhook.Received, got.Status)
	})

	t.Run("duplicate key", func(t *testing.T) {
		repo := memory.NewRepository()

		require.NoError(t, repo.Insert(ctx, webhook.Event{Provider: "acme", EventID: "evt_1"}))
		err := repo.Insert(ctx, webhook.Event{Provider: "acme", EventID: "evt_1"})

		assert.ErrorIs(t, err, webhook.ErrDuplicate)
	})

	t.Run("same id under another provider is distinct", func(t *testing.T) {
		repo := memory.NewRepository()

		require.NoError(t, repo.Insert(ctx, webhook.Event{Provider: "acme", EventID: "evt_1"}))
		require.NoError(t, repo.Insert(ctx, webhook.Event{Provider: "globex", EventID: "evt_1"}))
	})

	t.Run("concurrent inserts yield a single winner", func(t *testing.T) {
		repo := memory.NewRepository()
		var winners atomic.Int32

		var g errgroup.Group
		for i := 0; i < 64; i++ {
			g.Go(func() error {
				err := repo.Insert(ctx, webhook.Event{Provider: "acme", EventID: "evt_race"})
				if err == nil {
					winners.Add(1)
					return nil
				}
				if err == webhook.ErrDuplicate {
					return nil
				}
				return err
			})
		}
		require.NoError(t, g.Wait())

		assert.Equal(t, int32(1), winners.Load())
	})
}

func TestRepository_Updates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	require.NoError(t, repo.Insert(ctx, webhook.Event{Provider: "acme", EventID: "evt_1", Status: webhook.Received}))

	require.NoError(t, repo.UpdateStatus(ctx, "acme", "evt_1", webhook.Processing))
	require.NoError(t, repo.AppendAttempt(ctx, "acme", "evt_1", webhook.Attempt{Handler: "h", Number: 1, Outcome: webhook.RetryableFailure}))
	require.NoError(t, repo.AppendAttempt(ctx, "acme", "evt_1", webhook.Attempt{Handler: "h", Number: 2, Outcome: webhook.Success}))

	got, err := repo.Get(ctx, "acme", "evt_1")
	require.NoError(t, err)
	assert.Equal(t, webhook.Processing, got.Status)
	require.Len(t, got.Attempts, 2)
	assert.Equal(t, webhook.Success, got.Attempts[1].Outcome)

	counts, err := repo.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["processing"])

	t.Run("not found", func(t *testing.T) {
		_, err := repo.Get(ctx, "acme", "missing")
		assert.ErrorIs(t, err, webhook.ErrNotFound)
		assert.ErrorIs(t, repo.UpdateStatus(ctx, "acme", "missing", webhook.Completed), webhook.ErrNotFound)
		assert.ErrorIs(t, repo.AppendAttempt(ctx, "acme", "missing", webhook.Attempt{}), webhook.ErrNotFound)
	})
}
