package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"notify-fanout/internal/billing"
	"notify-fanout/internal/cancelflag"
	"notify-fanout/internal/channel"
	"notify-fanout/internal/config"
	"notify-fanout/internal/db"
	"notify-fanout/internal/jobqueue"
	"notify-fanout/internal/jobqueue/dbqueue"
	"notify-fanout/internal/jobqueue/natsqueue"
	"notify-fanout/internal/monitoring"
	"notify-fanout/internal/observability"
	"notify-fanout/internal/persistence"
	"notify-fanout/internal/registry"
	"notify-fanout/internal/stats"
	"notify-fanout/internal/worker"
)

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

	logger.Info("starting notify-fanout worker", zap.String("log_level", cfg.LogLevel), zap.String("queue_backend", cfg.QueueBackend))

	if cfg.MetricsEnabled {
		observability.NewMetrics()

		shutdownOtel, err := observability.SetupOpenTelemetry("notify-fanout-worker", logger)
		if err != nil {
			logger.Warn("failed to initialize OpenTelemetry, continuing without it", zap.Error(err))
		} else {
			defer shutdownOtel()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgres, err := db.NewPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer postgres.Close()

	redisClient, err := persistence.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	queue, err := buildQueue(ctx, cfg, postgres, logger)
	if err != nil {
		logger.Fatal("failed to build job queue", zap.Error(err))
	}

	reg := registry.New(logger)
	registerAdapters(ctx, reg, cfg, logger)

	billingService := billing.NewService(postgres, logger)

	perfMonitor := monitoring.NewPerformanceMonitor(logger)
	perfMonitor.Start(ctx)
	defer perfMonitor.Stop()

	m, err := worker.Start(ctx, worker.Config{
		StoreConnection:           redisClient.Client,
		Queue:                     queue,
		QueueName:                 cfg.QueueName,
		Concurrency:               cfg.WorkerConcurrency,
		Registry:                  reg,
		CancelFlags:               cancelflag.New(redisClient.Client, logger),
		Stats:                     stats.New(redisClient.Client, logger),
		Billing:                   billingService,
		Performance:               perfMonitor,
		PricePerRecipientCents:    cfg.PricePerPartCents,
		ExpressSurchargeCents:     cfg.ExpressSurchargeCents,
		ResetStatsAfterCompletion: cfg.ResetStatsAfterCompletion,
		OnComplete: func(job *jobqueue.Job, jobStats map[string]int64, jobLogger *zap.Logger) {
			jobLogger.Info("job completed", zap.Any("stats", jobStats))
		},
		OnDrained: func(jobLogger *zap.Logger) {
			jobLogger.Info("queue drained")
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("failed to start worker", zap.Error(err))
	}

	logger.Info("worker started, claiming jobs", zap.String("queue", cfg.QueueName), zap.Int("concurrency", cfg.WorkerConcurrency))

	<-ctx.Done()
	logger.Info("shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.Close(shutdownCtx); err != nil {
		logger.Error("error during worker shutdown", zap.Error(err))
	}

	logger.Info("worker shutdown complete")
}

// buildQueue selects the jobqueue.Queue binding per QUEUE_BACKEND, mirroring
// the teacher's single-binding cmd/worker wiring but parameterized over the
// two bindings this repo ships.
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

// registerAdapters constructs and registers every channel adapter whose
// credentials are configured, logging and skipping the rest so a worker can
// run with a partial channel set (e.g. email + telegram only).
func registerAdapters(ctx context.Context, reg *registry.Registry, cfg *config.Config, logger *zap.Logger) {
	if cfg.SMTPHost != "" {
		reg.Register(channel.Email, channel.NewEmailAdapter(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom,
			cfg.EmailRatePerSec, cfg.EmailConcurrency))
	} else {
		logger.Warn("email channel not configured, skipping registration")
	}

	if cfg.FirebaseCredentialsJSON != "" || cfg.FirebaseCredentialsPath != "" {
		pushAdapter, err := channel.NewPushAdapter(ctx, []byte(cfg.FirebaseCredentialsJSON), cfg.FirebaseCredentialsPath, cfg.PushRatePerSec, cfg.PushConcurrency)
		if err != nil {
			logger.Error("failed to initialize push adapter, skipping registration", zap.Error(err))
		} else {
			reg.Register(channel.Firebase, pushAdapter)
		}
	} else {
		logger.Warn("push channel not configured, skipping registration")
	}

	if cfg.TelegramBotToken != "" {
		chatAdapter, err := channel.NewChatAdapter(cfg.TelegramBotToken, cfg.ChatRatePerSec, cfg.ChatConcurrency)
		if err != nil {
			logger.Error("failed to initialize chat adapter, skipping registration", zap.Error(err))
		} else {
			reg.Register(channel.Telegram, chatAdapter)
		}
	} else {
		logger.Warn("chat channel not configured, skipping registration")
	}

	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		reg.Register(channel.Web, channel.NewWebAdapter(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDContact, cfg.WebRatePerSec, cfg.WebConcurrency))
	} else {
		logger.Warn("web push channel not configured, skipping registration")
	}
}
