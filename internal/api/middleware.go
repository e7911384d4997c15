package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"notify-fanout/internal/observability"
)

// SetupMiddleware installs the same recover/request-id/CORS/logging stack
// the teacher's admin surface uses. The teacher's per-client rate-limiting
// middleware (internal/rate, guarding /v1/messages) has no analog here:
// this admin surface has no client-facing send endpoint to protect, and
// rate limiting against the channel adapters themselves is already handled
// per-channel by internal/ratelimit inside the worker.
func SetupMiddleware(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics) {
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key",
	}))

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		logger.Info("http_request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.Get("X-Request-ID")),
		)

		return err
	})
}
