package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"notify-fanout/internal/api"
	"notify-fanout/internal/auth"
	"notify-fanout/internal/billing"
	"notify-fanout/internal/cancelflag"
	"notify-fanout/internal/config"
	"notify-fanout/internal/db"
	"notify-fanout/internal/observability"
	"notify-fanout/internal/persistence"
	"notify-fanout/internal/stats"
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

	logger.Info("starting notify-fanout admin api")

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	if cfg.MetricsEnabled {
		shutdownOtel, err := observability.SetupOpenTelemetry("notify-fanout-api", logger)
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

	authService := auth.NewService(postgres, logger)
	billingService := billing.NewService(postgres, logger)
	statsTracker := stats.New(redisClient.Client, logger)
	cancelFlags := cancelflag.New(redisClient.Client, logger)

	healthCheck := func(ctx context.Context) error {
		if err := postgres.PingContext(ctx); err != nil {
			return err
		}
		return redisClient.HealthCheck(ctx)
	}

	handlers := api.NewHandlers(logger, statsTracker, cancelFlags, billingService, healthCheck)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logger.Error("fiber error", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		},
	})

	api.SetupRoutes(app, logger, metrics, handlers, authService)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("admin api started", zap.String("port", cfg.Port))

	<-ctx.Done()
	logger.Info("shutting down admin api...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("failed to shutdown gracefully", zap.Error(err))
	}

	logger.Info("admin api stopped")
}
