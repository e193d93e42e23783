package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveenvasou/cerina-v0/core"
	"github.com/naveenvasou/cerina-v0/graph"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func sampleCheckpoint(threadID string) *graph.Checkpoint {
	return &graph.Checkpoint{
		ThreadID: threadID,
		State: graph.State{
			"plan": map[string]any{
				"exercise_type": "thought_record",
				"user_preview":  "A gentle thought record exercise.",
			},
			"hitl_pending":        true,
			"reflection_iteration": float64(1),
		},
		Next:      []string{"await_plan_approval"},
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// stores under test share one contract; every case runs against both.
func eachStore(t *testing.T, fn func(t *testing.T, store graph.CheckpointStore)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("redis", func(t *testing.T) {
		fn(t, NewRedisStoreWithClient(setupTestRedis(t)))
	})
}

func TestStoreRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, store graph.CheckpointStore) {
		ctx := context.Background()
		cp := sampleCheckpoint("t1")

		require.NoError(t, store.Put(ctx, "t1", cp))

		got, err := store.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, cp.Next, got.Next)
		assert.Equal(t, cp.State, got.State)
		assert.Equal(t, "t1", got.ThreadID)
	})
}

func TestStoreGetMissing(t *testing.T) {
	eachStore(t, func(t *testing.T, store graph.CheckpointStore) {
		_, err := store.Get(context.Background(), "nope")
		assert.ErrorIs(t, err, core.ErrNoCheckpoint)
	})
}

func TestStoreOverwrite(t *testing.T) {
	eachStore(t, func(t *testing.T, store graph.CheckpointStore) {
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, "t1", sampleCheckpoint("t1")))

		updated := sampleCheckpoint("t1")
		updated.Next = []string{"draftsman"}
		updated.State["hitl_pending"] = false
		require.NoError(t, store.Put(ctx, "t1", updated))

		got, err := store.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, []string{"draftsman"}, got.Next)
		assert.False(t, got.State.GetBool("hitl_pending"))
	})
}

func TestStoreDelete(t *testing.T) {
	eachStore(t, func(t *testing.T, store graph.CheckpointStore) {
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, "t1", sampleCheckpoint("t1")))
		require.NoError(t, store.Delete(ctx, "t1"))

		_, err := store.Get(ctx, "t1")
		assert.ErrorIs(t, err, core.ErrNoCheckpoint)

		// Deleting again is not an error.
		require.NoError(t, store.Delete(ctx, "t1"))
	})
}

func TestStoreRejectsEmptyThreadID(t *testing.T) {
	eachStore(t, func(t *testing.T, store graph.CheckpointStore) {
		err := store.Put(context.Background(), "", sampleCheckpoint(""))
		assert.Error(t, err)
	})
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	cp := sampleCheckpoint("t1")
	require.NoError(t, store.Put(ctx, "t1", cp))

	// Mutating the caller's copy must not touch the stored snapshot.
	cp.State["hitl_pending"] = false

	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.State.GetBool("hitl_pending"))
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStoreWithClient(client, WithKeyPrefix("custom"))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "t1", sampleCheckpoint("t1")))

	keys, err := client.Keys(ctx, "custom:thread:t1:*").Result()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
