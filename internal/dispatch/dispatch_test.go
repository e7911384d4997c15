package dispatch

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"notify-fanout/internal/channel"
	"notify-fanout/internal/jobqueue"
)

type record struct {
	id string
}

type fakeQueue struct {
	mu    sync.Mutex
	added []*jobqueue.Job
}

func (f *fakeQueue) Add(ctx context.Context, queueName, jobName string, job *jobqueue.Job, opts jobqueue.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, job)
	return nil
}

func (f *fakeQueue) Consume(ctx context.Context, queueName string, concurrency int, handler jobqueue.Handler) error {
	return nil
}
func (f *fakeQueue) GetJobCounts(ctx context.Context, queueName string) (jobqueue.Counts, error) {
	return jobqueue.Counts{}, nil
}
func (f *fakeQueue) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeQueue) Close() error                          { return nil }

func (f *fakeQueue) jobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.added)
}

func TestDispatchPagesUntilEmpty(t *testing.T) {
	pages := [][]record{
		{{id: "r1"}, {id: "r2"}},
		{{id: "r3"}},
		{},
	}

	var mu sync.Mutex
	calls := 0
	dbQuery := func(ctx context.Context, offset, limit int) ([]record, error) {
		mu.Lock()
		defer mu.Unlock()
		if calls >= len(pages) {
			return nil, nil
		}
		page := pages[calls]
		calls++
		return page, nil
	}

	q := &fakeQueue{}

	cfg := Config[record]{
		Queue:       q,
		ChannelName: channel.Email,
		DBQuery:     dbQuery,
		MapRecordToRecipient: func(r record) string {
			return r.id
		},
		BuildMeta: func(r record) (channel.Meta, error) {
			return channel.EmailMeta{Subject: "hi"}, nil
		},
		QueueName: "notifications",
		JobName:   "send",
		BatchSize: 2,
		Logger:    zap.NewNop(),
	}

	err := Dispatch(context.Background(), cfg)
	assert.NoError(t, err)
	assert.Equal(t, 2, q.jobCount())

	var gotUserIDs [][]string
	for _, job := range q.added {
		gotUserIDs = append(gotUserIDs, job.UserIDs)
	}
	assert.ElementsMatch(t, [][]string{{"r1", "r2"}, {"r3"}}, gotUserIDs)
}

func TestDispatchToleratesPerRecordMetaFailure(t *testing.T) {
	called := false
	dbQuery := func(ctx context.Context, offset, limit int) ([]record, error) {
		if called {
			return nil, nil
		}
		called = true
		return []record{{id: "r1"}, {id: "r2"}}, nil
	}

	q := &fakeQueue{}

	cfg := Config[record]{
		Queue:       q,
		ChannelName: channel.Email,
		DBQuery:     dbQuery,
		MapRecordToRecipient: func(r record) string {
			return r.id
		},
		BuildMeta: func(r record) (channel.Meta, error) {
			if r.id == "r2" {
				return nil, assertErr
			}
			return channel.EmailMeta{Subject: "hi"}, nil
		},
		QueueName: "notifications",
		JobName:   "send",
		BatchSize: 10,
		Logger:    zap.NewNop(),
	}

	err := Dispatch(context.Background(), cfg)
	assert.NoError(t, err)
	assert.Equal(t, 1, q.jobCount())
	assert.Equal(t, []byte(`{}`), []byte(q.added[0].Meta[1]))
}

var assertErr = errFixture{}

type errFixture struct{}

func (errFixture) Error() string { return "meta build failed" }
