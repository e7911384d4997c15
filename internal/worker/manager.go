package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"notify-fanout/internal/billing"
	"notify-fanout/internal/cancelflag"
	"notify-fanout/internal/channel"
	"notify-fanout/internal/jobqueue"
	"notify-fanout/internal/monitoring"
	"notify-fanout/internal/registry"
	"notify-fanout/internal/stats"
)

// OnStartFunc, OnCompleteFunc, and OnDrainedFunc are the worker lifecycle
// hooks (§4.7). Panics and errors inside them are caught and logged by
// Manager, never propagated to the queue binding.
type OnStartFunc func(job *jobqueue.Job, logger *zap.Logger)
type OnCompleteFunc func(job *jobqueue.Job, jobStats map[string]int64, logger *zap.Logger)
type OnDrainedFunc func(logger *zap.Logger)

// Config configures a WorkerManager (C7, §4.7).
type Config struct {
	StoreConnection *redis.Client
	StoreURL        string

	Queue     jobqueue.Queue
	QueueName string

	Concurrency int
	TrackingKey string

	Registry    *registry.Registry
	CancelFlags *cancelflag.Store
	Stats       *stats.Tracker
	Billing     *billing.Service               // optional; nil disables credit capture/release
	Performance *monitoring.PerformanceMonitor // optional; nil disables send-latency reporting

	// PricePerRecipientCents/ExpressSurchargeCents price a job's credit
	// hold at one unit per recipient (job.UserIDs), the batch analog of the
	// teacher's per-SMS-part pricing; ExpressSurchargeCents applies only
	// when job.Express is set. Used only when Billing is non-nil.
	PricePerRecipientCents int64
	ExpressSurchargeCents  int64

	OnStart                   OnStartFunc
	OnComplete                OnCompleteFunc
	OnDrained                 OnDrainedFunc
	ResetStatsAfterCompletion bool

	Logger *zap.Logger
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.TrackingKey == "" {
		c.TrackingKey = "notifications:stats"
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Manager claims jobs from a jobqueue.Queue and runs them through the
// per-job protocol of §4.7, grounded on the teacher's Worker/EnhancedWorker
// claim-loop shape but generalized from a single SMS send to an arbitrary
// ChannelRegistry-resolved adapter.
type Manager struct {
	cfg         Config
	storeOwned  bool
	queueClosed bool
}

// Start constructs a Manager and begins consuming cfg.QueueName at
// cfg.Concurrency. It returns once consumption has started; delivery
// continues on background goroutines until Close.
func Start(ctx context.Context, cfg Config) (*Manager, error) {
	cfg.applyDefaults()

	if cfg.Queue == nil {
		return nil, fmt.Errorf("worker: Queue is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("worker: QueueName is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("worker: Registry is required")
	}

	storeOwned := false
	if cfg.StoreConnection == nil {
		if cfg.StoreURL == "" {
			return nil, fmt.Errorf("worker: StoreConnection or StoreURL is required")
		}
		opts, err := redis.ParseURL(cfg.StoreURL)
		if err != nil {
			return nil, fmt.Errorf("worker: parse store url: %w", err)
		}
		opts.MaxRetries = 100
		cfg.StoreConnection = redis.NewClient(opts)
		if err := cfg.StoreConnection.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("worker: store ping failed: %w", err)
		}
		storeOwned = true
	}

	if cfg.CancelFlags == nil {
		cfg.CancelFlags = cancelflag.New(cfg.StoreConnection, cfg.Logger)
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.New(cfg.StoreConnection, cfg.Logger)
	}

	m := &Manager{cfg: cfg, storeOwned: storeOwned}

	if err := cfg.Queue.Consume(ctx, cfg.QueueName, cfg.Concurrency, m.handleJob); err != nil {
		return nil, fmt.Errorf("worker: start consuming: %w", err)
	}

	go m.watchForDrain(ctx)

	return m, nil
}

// Close stops accepting new jobs and closes the queue client, and the store
// handle iff Start created it.
func (m *Manager) Close(ctx context.Context) error {
	if !m.queueClosed {
		m.queueClosed = true
		if err := m.cfg.Queue.Close(); err != nil {
			m.cfg.Logger.Warn("worker: queue close failed", zap.Error(err))
		}
	}

	if m.storeOwned {
		return m.cfg.StoreConnection.Close()
	}
	return nil
}

// handleJob runs one claimed job through the §4.7 protocol and is passed to
// the queue binding as its jobqueue.Handler.
func (m *Manager) handleJob(ctx context.Context, job *jobqueue.Job) error {
	logger := m.cfg.Logger.With(
		zap.String("job_id", job.ID),
		zap.String("campaign_id", job.CampaignID),
		zap.String("channel", job.Channel),
	)

	m.safeOnStart(job, logger)

	trackingKey := job.TrackingKey
	if trackingKey == "" {
		trackingKey = m.cfg.TrackingKey
	}

	if job.CampaignID != "" && m.cfg.CancelFlags.IsCancelled(ctx, job.CampaignID) {
		logger.Info("job skipped: campaign cancelled")
		m.safeOnComplete(ctx, job, trackingKey, logger)
		return nil
	}

	if len(job.UserIDs) == 0 || len(job.UserIDs) != len(job.Meta) {
		err := &InvalidJobError{Reason: "user_ids must be a non-empty sequence the same length as meta"}
		m.recordJobError(ctx, job.TrackResponses, trackingKey, err, logger)
		return err
	}

	adapter, ok := m.cfg.Registry.Get(channel.Name(job.Channel))
	if !ok {
		err := &UnknownChannelError{Channel: job.Channel}
		m.recordJobError(ctx, job.TrackResponses, trackingKey, err, logger)
		return err
	}

	metas := make([]channel.Meta, len(job.Meta))
	for i, raw := range job.Meta {
		meta, err := channel.UnmarshalMeta(channel.Name(job.Channel), raw)
		if err != nil {
			logger.Warn("failed to decode meta entry, recipient will fail validation", zap.Int("index", i), zap.Error(err))
			continue
		}
		metas[i] = meta
	}

	itemID, holdAmount, billingOK := m.holdCredits(ctx, job, logger)

	sendStart := time.Now()
	results := adapter.Send(job.UserIDs, metas, logger)
	succeeded := allSucceeded(results)

	if m.cfg.Performance != nil {
		m.cfg.Performance.RecordSend(time.Since(sendStart), succeeded)
	}

	if billingOK {
		m.settleCredits(ctx, itemID, succeeded, holdAmount, logger)
	}

	if job.TrackResponses {
		if err := m.cfg.Stats.Track(ctx, trackingKey, results); err != nil {
			logger.Warn("stats tracking failed", zap.Error(err))
		}
	}

	m.safeOnComplete(ctx, job, trackingKey, logger)
	return nil
}

// recordJobError records one error:<message> counter under trackingKey (if
// tracking is enabled) before returning the error to the queue binding, per
// §4.7 step 7.
func (m *Manager) recordJobError(ctx context.Context, trackResponses bool, trackingKey string, err error, logger *zap.Logger) {
	logger.Error("job failed", zap.Error(err))
	if !trackResponses {
		return
	}
	failure := []channel.Result{{Status: channel.StatusError, Error: err.Error()}}
	if trackErr := m.cfg.Stats.Track(ctx, trackingKey, failure); trackErr != nil {
		logger.Warn("stats tracking failed", zap.Error(trackErr))
	}
}

// holdCredits places a credit hold sized at one unit per recipient (plus
// the express surcharge when requested) against job.ClientID before the
// send attempt, mirroring the teacher's hold-before-send/capture-or-release
// pattern around its SMS provider call. Returns ok=false when billing is
// disabled or job.ClientID/job.ID don't parse as account/item identifiers,
// in which case the caller skips settleCredits entirely rather than erroring
// the job over a billing-adjacent problem.
func (m *Manager) holdCredits(ctx context.Context, job *jobqueue.Job, logger *zap.Logger) (itemID uuid.UUID, amount int64, ok bool) {
	if m.cfg.Billing == nil || job.ClientID == "" {
		return uuid.Nil, 0, false
	}

	clientID, err := uuid.Parse(job.ClientID)
	if err != nil {
		logger.Warn("job client_id is not a valid uuid, skipping billing", zap.String("client_id", job.ClientID), zap.Error(err))
		return uuid.Nil, 0, false
	}
	itemID, err = uuid.Parse(job.ID)
	if err != nil {
		logger.Warn("job id is not a valid uuid, skipping billing", zap.String("job_id", job.ID), zap.Error(err))
		return uuid.Nil, 0, false
	}

	amount = m.cfg.PricePerRecipientCents * int64(len(job.UserIDs))
	if job.Express {
		amount += m.cfg.ExpressSurchargeCents * int64(len(job.UserIDs))
	}

	if _, err := m.cfg.Billing.HoldCredits(ctx, clientID, itemID, amount); err != nil {
		logger.Warn("credit hold failed, proceeding without a billing settlement", zap.Error(err))
		return uuid.Nil, 0, false
	}

	return itemID, amount, true
}

// settleCredits captures the hold on a fully successful send, or releases it
// otherwise — the same binary capture/release decision the teacher makes
// around its own SMS provider call, generalized to a batch's aggregate
// outcome instead of one message's status.
func (m *Manager) settleCredits(ctx context.Context, itemID uuid.UUID, succeeded bool, amount int64, logger *zap.Logger) {
	if succeeded {
		if err := m.cfg.Billing.CaptureCredits(ctx, itemID); err != nil {
			logger.Warn("credit capture failed", zap.Int64("amount_cents", amount), zap.Error(err))
		}
		return
	}
	if err := m.cfg.Billing.ReleaseCredits(ctx, itemID); err != nil {
		logger.Warn("credit release failed", zap.Int64("amount_cents", amount), zap.Error(err))
	}
}

// allSucceeded reports whether every Result in a batch succeeded, the
// single success/failure bit PerformanceMonitor.RecordSend tracks per job.
func allSucceeded(results []channel.Result) bool {
	for _, r := range results {
		if r.Status != channel.StatusSuccess {
			return false
		}
	}
	return len(results) > 0
}

func (m *Manager) safeOnStart(job *jobqueue.Job, logger *zap.Logger) {
	if m.cfg.OnStart == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("on_start callback panicked", zap.Any("panic", r))
		}
	}()
	m.cfg.OnStart(job, logger)
}

func (m *Manager) safeOnComplete(ctx context.Context, job *jobqueue.Job, trackingKey string, logger *zap.Logger) {
	jobStats, err := m.cfg.Stats.Get(ctx, trackingKey)
	if err != nil {
		logger.Warn("failed to read stats for on_complete", zap.Error(err))
		jobStats = map[string]int64{}
	}

	if m.cfg.OnComplete != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("on_complete callback panicked", zap.Any("panic", r))
				}
			}()
			m.cfg.OnComplete(job, jobStats, logger)
		}()
	}

	if m.cfg.ResetStatsAfterCompletion {
		if err := m.cfg.Stats.Reset(ctx, trackingKey); err != nil {
			logger.Warn("failed to reset stats after completion", zap.Error(err))
		}
	}
}

const (
	drainPollAttempts = 10
	drainPollInterval = 1500 * time.Millisecond
)

// watchForDrain polls GetJobCounts until the queue is empty or the poll
// budget is exhausted, invoking OnDrained on the first all-zero observation
// (§4.7 drain detection). Queue bindings in this repo have no native
// "drained" event, so this substitutes polling for the event the spec
// assumes the queue library emits.
func (m *Manager) watchForDrain(ctx context.Context) {
	if m.cfg.OnDrained == nil {
		return
	}

	for i := 0; i < drainPollAttempts; i++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(drainPollInterval):
		}

		counts, err := m.cfg.Queue.GetJobCounts(ctx, m.cfg.QueueName)
		if err != nil {
			m.cfg.Logger.Warn("drain poll: get job counts failed", zap.Error(err))
			continue
		}

		if counts.Total() == 0 {
			m.safeOnDrained()
			return
		}
	}

	m.cfg.Logger.Warn("drain poll exhausted without observing an empty queue", zap.Int("attempts", drainPollAttempts))
}

func (m *Manager) safeOnDrained() {
	defer func() {
		if r := recover(); r != nil {
			m.cfg.Logger.Error("on_drained callback panicked", zap.Any("panic", r))
		}
	}()
	m.cfg.OnDrained(m.cfg.Logger)
}
