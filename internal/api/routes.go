package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"notify-fanout/internal/auth"
	"notify-fanout/internal/observability"
)

// SetupRoutes wires the admin surface (§"Supplemented features"): a health
// probe, per-tracking-key stats lookup, and campaign cancellation, plus the
// client-facing credit lookup carried over from the teacher's /v1/me. The
// teacher's /v1/messages send/DLR/OTP endpoints have no analog here — jobs
// are enqueued by internal/dispatch, not by an inbound HTTP request — and
// /docs, /swagger, /api-spec are dropped with the swaggo dependency (see
// DESIGN.md) since a handful of simple routes need no generated OpenAPI doc.
func SetupRoutes(
	app *fiber.App,
	logger *zap.Logger,
	metrics *observability.Metrics,
	handlers *Handlers,
	authService *auth.Service,
) {
	SetupMiddleware(app, logger, metrics)

	// Health endpoint (no auth required)
	app.Get("/healthz", handlers.HealthCheck)

	// Metrics endpoint (no auth required, but could be restricted in production)
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricFamilies, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error gathering metrics")
		}

		c.Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		for _, mf := range metricFamilies {
			name := mf.GetName()
			for _, m := range mf.GetMetric() {
				switch {
				case m.GetCounter() != nil:
					c.WriteString(fmt.Sprintf("# TYPE %s counter\n%s %g\n", name, name, m.GetCounter().GetValue()))
				case m.GetGauge() != nil:
					c.WriteString(fmt.Sprintf("# TYPE %s gauge\n%s %g\n", name, name, m.GetGauge().GetValue()))
				case m.GetHistogram() != nil:
					h := m.GetHistogram()
					c.WriteString(fmt.Sprintf("# TYPE %s histogram\n%s_count %d\n%s_sum %g\n",
						name, name, h.GetSampleCount(), name, h.GetSampleSum()))
				}
			}
		}
		return nil
	})

	// Client info (requires auth)
	v1 := app.Group("/v1", authService.RequireAPIKey())
	v1.Get("/me", handlers.GetClientInfo)

	// Campaign admin surface (requires auth)
	app.Get("/stats/:trackingKey", authService.RequireAPIKey(), handlers.GetStats)
	app.Post("/campaigns/:id/cancel", authService.RequireAPIKey(), handlers.CancelCampaign)
}
