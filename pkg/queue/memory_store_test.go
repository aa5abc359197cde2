package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vergnetp/queuekit/pkg/queue"
)

func TestMemoryStore_PushPop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := queue.NewMemoryStore()

	require.NoError(t, store.Push(ctx, "q:a", []byte("first")))
	require.NoError(t, store.Push(ctx, "q:a", []byte("second")))

	n, err := store.Len(ctx, "q:a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	item, key, err := store.PopFirst(ctx, "q:a")
	require.NoError(t, err)
	assert.Equal(t, "q:a", key)
	assert.Equal(t, []byte("first"), item)

	item, _, err = store.PopFirst(ctx, "q:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), item)

	_, _, err = store.PopFirst(ctx, "q:a")
	require.ErrorIs(t, err, queue.ErrEmptyQueue)
}

func TestMemoryStore_PopFirstHonorsKeyOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := queue.NewMemoryStore()

	require.NoError(t, store.Push(ctx, "q:low", []byte("low")))
	require.NoError(t, store.Push(ctx, "q:high", []byte("high")))

	// The first non-empty key in argument order wins, regardless of
	// insertion time.
	item, key, err := store.PopFirst(ctx, "q:high", "q:normal", "q:low")
	require.NoError(t, err)
	assert.Equal(t, "q:high", key)
	assert.Equal(t, []byte("high"), item)

	item, key, err = store.PopFirst(ctx, "q:high", "q:normal", "q:low")
	require.NoError(t, err)
	assert.Equal(t, "q:low", key)
	assert.Equal(t, []byte("low"), item)
}

func TestMemoryStore_PushBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := queue.NewMemoryStore()

	require.NoError(t, store.PushBatch(ctx, "q:a", [][]byte{[]byte("1"), []byte("2"), []byte("3")}))

	n, err := store.Len(ctx, "q:a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMemoryStore_DelayedPromotion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := queue.NewMemoryStore()

	require.NoError(t, store.PushDelayed(ctx, "q:a", []byte("soon"), 10*time.Millisecond))
	require.NoError(t, store.PushDelayed(ctx, "q:a", []byte("later"), time.Hour))

	// Not yet eligible: nothing promotes, nothing pops.
	require.NoError(t, store.PromoteDue(ctx, "q:a", 100))
	_, _, err := store.PopFirst(ctx, "q:a")
	require.ErrorIs(t, err, queue.ErrEmptyQueue)

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, store.PromoteDue(ctx, "q:a", 100))
	item, _, err := store.PopFirst(ctx, "q:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("soon"), item)

	// The far-future item stays in the delayed set.
	n, err := store.DelayedLen(ctx, "q:a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_Processing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := queue.NewMemoryStore()

	require.NoError(t, store.SaveProcessing(ctx, "op-1", []byte("backup"), time.Minute))

	item, ok := store.Processing("op-1")
	require.True(t, ok)
	assert.Equal(t, []byte("backup"), item)

	require.NoError(t, store.DeleteProcessing(ctx, "op-1"))
	_, ok = store.Processing("op-1")
	assert.False(t, ok)

	t.Run("expires after TTL", func(t *testing.T) {
		t.Parallel()

		s := queue.NewMemoryStore()
		require.NoError(t, s.SaveProcessing(ctx, "op-2", []byte("x"), 5*time.Millisecond))
		time.Sleep(15 * time.Millisecond)
		_, ok := s.Processing("op-2")
		assert.False(t, ok)
	})
}

func TestMemoryStore_ReserveDedup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := queue.NewMemoryStore()

	winner, err := store.ReserveDedup(ctx, "daily-report", "op-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "op-1", winner)

	// Inside the window the original reservation wins.
	winner, err = store.ReserveDedup(ctx, "daily-report", "op-2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "op-1", winner)

	t.Run("window expiry releases the key", func(t *testing.T) {
		t.Parallel()

		s := queue.NewMemoryStore()
		_, err := s.ReserveDedup(ctx, "k", "op-1", 5*time.Millisecond)
		require.NoError(t, err)
		time.Sleep(15 * time.Millisecond)

		winner, err := s.ReserveDedup(ctx, "k", "op-2", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "op-2", winner)
	})
}

func TestMemoryStore_Drain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := queue.NewMemoryStore()

	require.NoError(t, store.Push(ctx, "q:a", []byte("1")))
	require.NoError(t, store.Push(ctx, "q:a", []byte("2")))
	require.NoError(t, store.PushDelayed(ctx, "q:a", []byte("3"), time.Hour))

	removed, err := store.Drain(ctx, "q:a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	n, err := store.Len(ctx, "q:a")
	require.NoError(t, err)
	assert.Zero(t, n)
}
