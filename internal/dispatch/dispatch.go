package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"notify-fanout/internal/channel"
	"notify-fanout/internal/jobqueue"
	"notify-fanout/internal/ratelimit"
	"notify-fanout/internal/retryutil"
)

const maxConcurrentBatchHandlers = 3

// Config parameterizes one DispatchNotifications run (C6, §4.6). T is the
// caller's database record type; Producer never interprets it beyond
// handing it to DBQuery/MapRecordToRecipient/BuildMeta.
type Config[T any] struct {
	// StoreConnection, if set, is an externally owned Redis handle dispatch
	// must never close. If nil, StoreURL is used to construct a
	// dispatch-owned handle that is closed on exit.
	StoreConnection *redis.Client
	StoreURL        string

	Queue       jobqueue.Queue
	ChannelName channel.Name

	DBQuery              func(ctx context.Context, offset, limit int) ([]T, error)
	MapRecordToRecipient func(record T) string
	BuildMeta            func(record T) (channel.Meta, error)

	QueueName  string
	JobName    string
	CampaignID string

	// ClientID and Express, when set, are stamped onto every Job this run
	// produces so the worker's optional billing hold (§"Supplemented
	// features") can charge the right account.
	ClientID string
	Express  bool

	BatchSize           int // default 1000
	MaxQueriesPerSecond int // optional; 0 = unlimited

	TrackResponses bool
	TrackingKey    string // default "notifications:stats"

	JobOptions       jobqueue.Options
	EnqueueRetries   int   // default 3
	EnqueueBaseDelay int64 // milliseconds, default 200

	Logger *zap.Logger
}

func (c *Config[T]) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.TrackingKey == "" {
		c.TrackingKey = "notifications:stats"
	}
	if c.EnqueueRetries <= 0 {
		c.EnqueueRetries = 3
	}
	if c.EnqueueBaseDelay <= 0 {
		c.EnqueueBaseDelay = 200
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Dispatch runs the paginated, rate-limited producer loop (§4.6 algorithm):
// it pages through DBQuery, builds a Job per batch, and enqueues it onto
// Queue, stopping at the first batch-handler error after awaiting the
// outstanding ones.
func Dispatch[T any](ctx context.Context, cfg Config[T]) error {
	cfg.applyDefaults()

	if cfg.QueueName == "" || cfg.JobName == "" {
		return fmt.Errorf("dispatch: queue_name and job_name are required")
	}
	if cfg.DBQuery == nil || cfg.MapRecordToRecipient == nil || cfg.BuildMeta == nil {
		return fmt.Errorf("dispatch: db_query, map_record_to_recipient, and build_meta are required")
	}
	if cfg.Queue == nil {
		return fmt.Errorf("dispatch: queue is required")
	}

	store, owned, err := resolveStore(ctx, cfg.StoreConnection, cfg.StoreURL)
	if err != nil {
		return fmt.Errorf("dispatch: resolve store handle: %w", err)
	}
	if owned {
		defer func() {
			if store.Ping(context.Background()).Err() == nil {
				_ = store.Close()
			}
		}()
	}

	var limiter *ratelimit.TokenBucket
	if cfg.MaxQueriesPerSecond > 0 {
		limiter, err = ratelimit.NewTokenBucket(cfg.MaxQueriesPerSecond)
		if err != nil {
			return fmt.Errorf("dispatch: construct token bucket: %w", err)
		}
	}

	var (
		sem        = make(chan struct{}, maxConcurrentBatchHandlers)
		wg         sync.WaitGroup
		combined   error
		combinedMu sync.Mutex
		stopped    atomic.Bool
	)

	recordErr := func(err error) {
		combinedMu.Lock()
		combined = multierr.Append(combined, err)
		combinedMu.Unlock()
		stopped.Store(true)
	}

	offset := 0
	for !stopped.Load() {
		if limiter != nil {
			limiter.Acquire()
		}

		records, err := retryutil.Do(ctx, cfg.Logger, "db_query", 5, 500*time.Millisecond,
			func(ctx context.Context) ([]T, error) {
				return cfg.DBQuery(ctx, offset, cfg.BatchSize)
			})
		if err != nil {
			stopped.Store(true)
			recordErr(fmt.Errorf("db_query failed after retries: %w", err))
			break
		}

		if len(records) == 0 {
			break
		}
		offset += len(records)

		sem <- struct{}{}
		wg.Add(1)
		batch := records
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := cfg.handleBatch(ctx, batch); err != nil {
				recordErr(err)
			}
		}()
	}

	wg.Wait()

	if combined != nil {
		errs := multierr.Errors(combined)
		return errs[0]
	}
	return nil
}

func (c *Config[T]) handleBatch(ctx context.Context, records []T) error {
	userIDs := make([]string, len(records))
	metas := make([]json.RawMessage, len(records))

	for i, record := range records {
		userIDs[i] = c.MapRecordToRecipient(record)

		meta, err := c.BuildMeta(record)
		if err != nil {
			c.Logger.Warn("build_meta failed for record, using empty meta",
				zap.Int("index", i), zap.Error(err))
			metas[i] = json.RawMessage(`{}`)
			continue
		}

		raw, err := json.Marshal(meta)
		if err != nil {
			c.Logger.Warn("failed to marshal meta for record, using empty meta",
				zap.Int("index", i), zap.Error(err))
			metas[i] = json.RawMessage(`{}`)
			continue
		}
		metas[i] = raw
	}

	job := &jobqueue.Job{
		UserIDs:        userIDs,
		Channel:        string(c.ChannelName),
		Meta:           metas,
		TrackResponses: c.TrackResponses,
		TrackingKey:    c.TrackingKey,
		CampaignID:     c.CampaignID,
		ClientID:       c.ClientID,
		Express:        c.Express,
	}

	_, err := retryutil.Do(ctx, c.Logger, "enqueue", c.EnqueueRetries, time.Duration(c.EnqueueBaseDelay)*time.Millisecond,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.Queue.Add(ctx, c.QueueName, c.JobName, job, c.JobOptions)
		})
	if err != nil {
		return fmt.Errorf("enqueue failed after retries: %w", err)
	}

	return nil
}

func resolveStore(ctx context.Context, existing *redis.Client, storeURL string) (*redis.Client, bool, error) {
	if existing != nil {
		return existing, false, nil
	}

	if storeURL == "" {
		return nil, false, fmt.Errorf("store_connection or store_url must be provided")
	}

	opts, err := redis.ParseURL(storeURL)
	if err != nil {
		return nil, false, fmt.Errorf("parse store url: %w", err)
	}
	opts.MaxRetries = 100

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, false, fmt.Errorf("ping store: %w", err)
	}

	return client, true, nil
}
