package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"notify-fanout/internal/channel"
	"notify-fanout/internal/config"
	"notify-fanout/internal/db"
	"notify-fanout/internal/dispatch"
	"notify-fanout/internal/jobqueue"
	"notify-fanout/internal/jobqueue/dbqueue"
	"notify-fanout/internal/jobqueue/natsqueue"
	"notify-fanout/internal/observability"
	"notify-fanout/internal/persistence"
)

// recipient is one row of the notification_recipients table a campaign
// dispatch pages through, the producer's equivalent of the teacher's
// Message record read out of its `messages` table.
type recipient struct {
	Address string
	Meta    []byte // raw channel-specific JSON, shaped by the selected channel
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		logger = observability.GetLoggerFromEnv()
	}
	defer logger.Sync()

	logger.Info("starting notify-fanout producer",
		zap.String("channel", cfg.DispatchChannel),
		zap.String("campaign_id", cfg.DispatchCampaignID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgres, err := db.NewPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer postgres.Close()

	if err := migrateRecipients(ctx, postgres.DB); err != nil {
		logger.Fatal("failed to migrate notification_recipients table", zap.Error(err))
	}

	redisClient, err := persistence.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	queue, err := buildQueue(ctx, cfg, postgres, logger)
	if err != nil {
		logger.Fatal("failed to build job queue", zap.Error(err))
	}

	channelName := channel.Name(cfg.DispatchChannel)

	err = dispatch.Dispatch(ctx, dispatch.Config[recipient]{
		StoreConnection: redisClient.Client,
		Queue:           queue,
		ChannelName:     channelName,

		DBQuery: func(ctx context.Context, offset, limit int) ([]recipient, error) {
			return queryRecipients(ctx, postgres.DB, cfg.DispatchCampaignID, string(channelName), offset, limit)
		},
		MapRecordToRecipient: func(r recipient) string { return r.Address },
		BuildMeta: func(r recipient) (channel.Meta, error) {
			return channel.UnmarshalMeta(channelName, r.Meta)
		},

		QueueName:  cfg.QueueName,
		JobName:    cfg.DispatchJobName,
		CampaignID: cfg.DispatchCampaignID,

		BatchSize:           cfg.ProducerBatchSize,
		MaxQueriesPerSecond: cfg.ProducerMaxQueriesPerSec,

		TrackResponses: true,
		TrackingKey:    "notifications:stats:" + cfg.DispatchCampaignID,

		EnqueueRetries:   cfg.EnqueueRetries,
		EnqueueBaseDelay: cfg.EnqueueBaseDelayMs,

		Logger: logger,
	})
	if err != nil {
		logger.Fatal("dispatch failed", zap.Error(err))
	}

	logger.Info("dispatch complete", zap.String("campaign_id", cfg.DispatchCampaignID))
}

// buildQueue mirrors cmd/worker's backend selection so producer and worker
// agree on which jobqueue.Queue binding a deployment is running.
func buildQueue(ctx context.Context, cfg *config.Config, postgres *db.PostgresDB, logger *zap.Logger) (jobqueue.Queue, error) {
	switch cfg.QueueBackend {
	case "db":
		if err := dbqueue.Migrate(ctx, postgres.DB); err != nil {
			return nil, err
		}
		return dbqueue.New(postgres.DB, logger), nil
	default:
		return natsqueue.NewQueue(cfg.NATSURL, logger)
	}
}

const recipientsSchema = `
CREATE TABLE IF NOT EXISTS notification_recipients (
	id BIGSERIAL PRIMARY KEY,
	campaign_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	address TEXT NOT NULL,
	meta JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS notification_recipients_campaign_idx ON notification_recipients (campaign_id, channel, id);
`

// migrateRecipients creates the recipients table a campaign pages through,
// inline the same way internal/jobqueue/dbqueue.Migrate does for its own
// small self-contained table rather than through golang-migrate.
func migrateRecipients(ctx context.Context, sqlDB *sql.DB) error {
	_, err := sqlDB.ExecContext(ctx, recipientsSchema)
	return err
}

// queryRecipients pages through one campaign's recipient rows ordered by id,
// using OFFSET/LIMIT pagination over the (campaign_id, channel, id) index.
func queryRecipients(ctx context.Context, sqlDB *sql.DB, campaignID, channelName string, offset, limit int) ([]recipient, error) {
	rows, err := sqlDB.QueryContext(ctx,
		`SELECT address, meta FROM notification_recipients
		 WHERE campaign_id = $1 AND channel = $2
		 ORDER BY id ASC OFFSET $3 LIMIT $4`,
		campaignID, channelName, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []recipient
	for rows.Next() {
		var r recipient
		if err := rows.Scan(&r.Address, &r.Meta); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
