package stats

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notify-fanout/internal/channel"
)

func newTestTracker(t *testing.T) (*Tracker, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, zap.NewNop()), client
}

func TestTrackIncrementsSuccessAndErrorCounters(t *testing.T) {
	tracker, _ := newTestTracker(t)

	results := []channel.Result{
		{Status: channel.StatusSuccess, Recipient: "a@x"},
		{Status: channel.StatusSuccess, Recipient: "b@x"},
		{Status: channel.StatusError, Recipient: "c@x", Error: "INVALID_RECIPIENT"},
	}

	require.NoError(t, tracker.Track(context.Background(), "test:stats", results))

	counts, err := tracker.Get(context.Background(), "test:stats")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["success"])
	assert.Equal(t, int64(1), counts["error:INVALID_RECIPIENT"])
}

func TestTrackFallsBackToUnknownErrorWhenErrorFieldEmpty(t *testing.T) {
	tracker, _ := newTestTracker(t)

	results := []channel.Result{
		{Status: channel.StatusError, Recipient: "c@x"},
	}

	require.NoError(t, tracker.Track(context.Background(), "test:stats", results))

	counts, err := tracker.Get(context.Background(), "test:stats")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["error:UNKNOWN_ERROR"])
}

func TestTrackUsesDefaultTrackingKeyWhenEmpty(t *testing.T) {
	tracker, _ := newTestTracker(t)

	results := []channel.Result{{Status: channel.StatusSuccess, Recipient: "a@x"}}
	require.NoError(t, tracker.Track(context.Background(), "", results))

	counts, err := tracker.Get(context.Background(), defaultTrackingKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["success"])
}

func TestTrackIsNoOpWhenResultsEmpty(t *testing.T) {
	tracker, client := newTestTracker(t)

	require.NoError(t, tracker.Track(context.Background(), "test:stats", nil))
	require.NoError(t, tracker.Track(context.Background(), "test:stats", []channel.Result{}))

	exists, err := client.Exists(context.Background(), "test:stats").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}

func TestResetDeletesTrackingKey(t *testing.T) {
	tracker, client := newTestTracker(t)

	require.NoError(t, tracker.Track(context.Background(), "test:stats", []channel.Result{
		{Status: channel.StatusSuccess, Recipient: "a@x"},
	}))
	require.NoError(t, tracker.Reset(context.Background(), "test:stats"))

	exists, err := client.Exists(context.Background(), "test:stats").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}
