package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notify-fanout/internal/cancelflag"
	"notify-fanout/internal/channel"
	"notify-fanout/internal/jobqueue"
	"notify-fanout/internal/registry"
	"notify-fanout/internal/stats"
)

type stubAdapter struct {
	mu    sync.Mutex
	calls int
}

func (a *stubAdapter) Send(recipients []string, metas []channel.Meta, logger *zap.Logger) []channel.Result {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()

	results := make([]channel.Result, len(recipients))
	for i, r := range recipients {
		results[i] = channel.Result{Status: channel.StatusSuccess, Recipient: r}
	}
	return results
}

func (a *stubAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type syncQueue struct {
	handler jobqueue.Handler
}

func (q *syncQueue) Add(ctx context.Context, queueName, jobName string, job *jobqueue.Job, opts jobqueue.Options) error {
	return nil
}

func (q *syncQueue) Consume(ctx context.Context, queueName string, concurrency int, handler jobqueue.Handler) error {
	q.handler = handler
	return nil
}

func (q *syncQueue) GetJobCounts(ctx context.Context, queueName string) (jobqueue.Counts, error) {
	return jobqueue.Counts{}, nil
}

func (q *syncQueue) HealthCheck(ctx context.Context) error { return nil }
func (q *syncQueue) Close() error                          { return nil }

func (q *syncQueue) deliver(ctx context.Context, job *jobqueue.Job) error {
	return q.handler(ctx, job)
}

func newTestManager(t *testing.T, adapter channel.Adapter, q *syncQueue) (*Manager, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	reg := registry.New(zap.NewNop())
	reg.Register(channel.Email, adapter)

	m, err := Start(context.Background(), Config{
		StoreConnection: client,
		Queue:           q,
		QueueName:       "notifications",
		Registry:        reg,
		CancelFlags:     cancelflag.New(client, zap.NewNop()),
		Stats:           stats.New(client, zap.NewNop()),
		Logger:          zap.NewNop(),
	})
	require.NoError(t, err)

	return m, client
}

func rawMetas(n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(`{"Subject":"s"}`)
	}
	return out
}

func TestHandleJobInvokesAdapterAndTracksStats(t *testing.T) {
	adapter := &stubAdapter{}
	q := &syncQueue{}
	_, client := newTestManager(t, adapter, q)

	job := &jobqueue.Job{
		ID:             "job-1",
		UserIDs:        []string{"a@x", "b@x"},
		Channel:        string(channel.Email),
		Meta:           rawMetas(2),
		TrackResponses: true,
		TrackingKey:    "test:stats",
	}

	err := q.deliver(context.Background(), job)
	assert.NoError(t, err)
	assert.Equal(t, 1, adapter.callCount())

	val, err := client.HGet(context.Background(), "test:stats", "success").Result()
	require.NoError(t, err)
	assert.Equal(t, "2", val)
}

func TestHandleJobSkipsWhenCampaignCancelled(t *testing.T) {
	adapter := &stubAdapter{}
	q := &syncQueue{}
	m, client := newTestManager(t, adapter, q)

	require.NoError(t, m.cfg.CancelFlags.Set(context.Background(), "camp-1", 0))

	job := &jobqueue.Job{
		ID:             "job-2",
		UserIDs:        []string{"a@x"},
		Channel:        string(channel.Email),
		Meta:           rawMetas(1),
		TrackResponses: true,
		TrackingKey:    "test:stats-2",
		CampaignID:     "camp-1",
	}

	err := q.deliver(context.Background(), job)
	assert.NoError(t, err)
	assert.Equal(t, 0, adapter.callCount())

	exists, err := client.Exists(context.Background(), "test:stats-2").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}

func TestHandleJobFailsOnInvalidPayload(t *testing.T) {
	adapter := &stubAdapter{}
	q := &syncQueue{}
	_, _ = newTestManager(t, adapter, q)

	job := &jobqueue.Job{
		ID:      "job-3",
		UserIDs: []string{},
		Channel: string(channel.Email),
		Meta:    nil,
	}

	err := q.deliver(context.Background(), job)
	require.Error(t, err)
	var invalidErr *InvalidJobError
	assert.ErrorAs(t, err, &invalidErr)
}

func TestHandleJobFailsOnUnknownChannel(t *testing.T) {
	adapter := &stubAdapter{}
	q := &syncQueue{}
	_, _ = newTestManager(t, adapter, q)

	job := &jobqueue.Job{
		ID:      "job-4",
		UserIDs: []string{"a@x"},
		Channel: "carrier-pigeon",
		Meta:    rawMetas(1),
	}

	err := q.deliver(context.Background(), job)
	require.Error(t, err)
	var unknownErr *UnknownChannelError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestOnCompleteReceivesStatsAndDoesNotPanic(t *testing.T) {
	adapter := &stubAdapter{}
	q := &syncQueue{}

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	reg := registry.New(zap.NewNop())
	reg.Register(channel.Email, adapter)

	var completed map[string]int64
	var mu sync.Mutex

	_, err = Start(context.Background(), Config{
		StoreConnection: client,
		Queue:           q,
		QueueName:       "notifications",
		Registry:        reg,
		CancelFlags:     cancelflag.New(client, zap.NewNop()),
		Stats:           stats.New(client, zap.NewNop()),
		Logger:          zap.NewNop(),
		OnComplete: func(job *jobqueue.Job, jobStats map[string]int64, logger *zap.Logger) {
			mu.Lock()
			defer mu.Unlock()
			completed = jobStats
			panic("on_complete callbacks must never take down the worker")
		},
	})
	require.NoError(t, err)

	job := &jobqueue.Job{
		ID:             "job-5",
		UserIDs:        []string{"a@x"},
		Channel:        string(channel.Email),
		Meta:           rawMetas(1),
		TrackResponses: true,
		TrackingKey:    "test:stats-5",
	}

	err = q.deliver(context.Background(), job)
	assert.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(1), completed["success"])
}

func TestWatchForDrainInvokesOnDrainedWhenCountsHitZero(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	reg := registry.New(zap.NewNop())
	reg.Register(channel.Email, &stubAdapter{})

	done := make(chan struct{})

	m := &Manager{cfg: Config{
		Queue:     &syncQueue{},
		QueueName: "notifications",
		Registry:  reg,
		Logger:    zap.NewNop(),
		OnDrained: func(logger *zap.Logger) { close(done) },
	}}
	m.cfg.applyDefaults()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go m.watchForDrain(ctx)

	select {
	case <-done:
	case <-time.After(4 * time.Second):
		t.Fatal("on_drained was never invoked")
	}

	_ = client.Close()
}
