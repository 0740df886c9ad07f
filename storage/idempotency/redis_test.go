package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/uniroute/uniroute/core"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	store := NewRedisStore(core.RedisConfig{Address: srv.Addr()})
	t.Cleanup(func() { _ = store.Close() })
	return store, srv
}

func TestRedisStore_PutIfAbsent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	winnerID, stored, err := store.PutIfAbsent(ctx, "key1", "app1", time.Minute)
	require.NoError(t, err)
	require.True(t, stored)
	require.Equal(t, "app1", winnerID)

	// second claim loses and learns the winner
	winnerID, stored, err = store.PutIfAbsent(ctx, "key1", "app2", time.Minute)
	require.NoError(t, err)
	require.False(t, stored)
	require.Equal(t, "app1", winnerID)

	// a different key claims independently
	winnerID, stored, err = store.PutIfAbsent(ctx, "key2", "app3", time.Minute)
	require.NoError(t, err)
	require.True(t, stored)
	require.Equal(t, "app3", winnerID)
}

func TestRedisStore_PutIfAbsent_Expiry(t *testing.T) {
	store, srv := newTestStore(t)
	ctx := context.Background()

	_, stored, err := store.PutIfAbsent(ctx, "key1", "app1", time.Minute)
	require.NoError(t, err)
	require.True(t, stored)

	srv.FastForward(2 * time.Minute)

	winnerID, stored, err := store.PutIfAbsent(ctx, "key1", "app2", time.Minute)
	require.NoError(t, err)
	require.True(t, stored)
	require.Equal(t, "app2", winnerID)
}

func TestInMemStore_PutIfAbsent(t *testing.T) {
	store := NewInMemStore()
	ctx := context.Background()

	winnerID, stored, err := store.PutIfAbsent(ctx, "key1", "app1", time.Minute)
	require.NoError(t, err)
	require.True(t, stored)
	require.Equal(t, "app1", winnerID)

	winnerID, stored, err = store.PutIfAbsent(ctx, "key1", "app2", time.Minute)
	require.NoError(t, err)
	require.False(t, stored)
	require.Equal(t, "app1", winnerID)
}
