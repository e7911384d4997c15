package cancelflag

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, zap.NewNop()), client
}

func TestIsCancelledFalseByDefault(t *testing.T) {
	store, _ := newTestStore(t)
	assert.False(t, store.IsCancelled(context.Background(), "camp-1"))
}

func TestSetThenIsCancelled(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Set(context.Background(), "camp-1", 0))
	assert.True(t, store.IsCancelled(context.Background(), "camp-1"))

	assert.False(t, store.IsCancelled(context.Background(), "camp-2"))
}

func TestClearRemovesFlag(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Set(context.Background(), "camp-1", 0))
	require.NoError(t, store.Clear(context.Background(), "camp-1"))
	assert.False(t, store.IsCancelled(context.Background(), "camp-1"))
}

func TestSetWithTTLSetsExpiry(t *testing.T) {
	store, client := newTestStore(t)

	require.NoError(t, store.Set(context.Background(), "camp-1", 50*time.Millisecond))
	assert.True(t, store.IsCancelled(context.Background(), "camp-1"))

	ttl, err := client.TTL(context.Background(), key("camp-1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestIsCancelledTreatsReadErrorsAsNotCancelled(t *testing.T) {
	store, client := newTestStore(t)
	require.NoError(t, client.Close())

	assert.False(t, store.IsCancelled(context.Background(), "camp-1"))
}
