package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"notify-fanout/internal/auth"
	"notify-fanout/internal/billing"
	"notify-fanout/internal/cancelflag"
	"notify-fanout/internal/stats"
)

// Handlers holds the operator-facing admin endpoints (§"Supplemented
// features"): a health probe, client credit lookup, per-campaign stats
// lookup, and campaign cancellation. This replaces the teacher's SMS
// send/DLR/OTP surface — those are client-facing message APIs with no
// analog once sending is driven by internal/dispatch rather than an
// inbound HTTP request.
type Handlers struct {
	logger      *zap.Logger
	stats       *stats.Tracker
	cancelFlags *cancelflag.Store
	billing     *billing.Service
	healthCheck func(ctx context.Context) error
}

func NewHandlers(logger *zap.Logger, statsTracker *stats.Tracker, cancelFlags *cancelflag.Store, billingService *billing.Service, healthCheck func(ctx context.Context) error) *Handlers {
	return &Handlers{
		logger:      logger,
		stats:       statsTracker,
		cancelFlags: cancelFlags,
		billing:     billingService,
		healthCheck: healthCheck,
	}
}

// HealthCheck handles GET /healthz, pinging the store handles the caller
// supplied at construction time.
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	if h.healthCheck != nil {
		if err := h.healthCheck(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "error": err.Error()})
		}
	}
	return c.JSON(fiber.Map{"status": "ok", "time": time.Now().Unix()})
}

// GetStats handles GET /stats/:trackingKey, returning the StatsHash (§4.8)
// accumulated for that tracking key.
func (h *Handlers) GetStats(c *fiber.Ctx) error {
	trackingKey := c.Params("trackingKey")
	if trackingKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tracking key is required"})
	}

	counts, err := h.stats.Get(c.Context(), trackingKey)
	if err != nil {
		h.logger.Error("failed to read stats", zap.String("tracking_key", trackingKey), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read stats"})
	}

	return c.JSON(fiber.Map{"tracking_key": trackingKey, "counts": counts})
}

// CancelCampaign handles POST /campaigns/:id/cancel, raising the
// CancellationFlag (§3) a running WorkerManager checks on each claimed job
// of that campaign before sending it.
func (h *Handlers) CancelCampaign(c *fiber.Ctx) error {
	campaignID := c.Params("id")
	if campaignID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "campaign id is required"})
	}

	if err := h.cancelFlags.Set(c.Context(), campaignID, 0); err != nil {
		h.logger.Error("failed to set cancellation flag", zap.String("campaign_id", campaignID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to cancel campaign"})
	}

	h.logger.Info("campaign cancelled", zap.String("campaign_id", campaignID))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"campaign_id": campaignID, "status": "cancelling"})
}

// GetClientInfo handles GET /v1/me, returning the authenticated client's
// credit balance (kept from the teacher's client-info endpoint since
// billing/credits survive unchanged in the new domain).
func (h *Handlers) GetClientInfo(c *fiber.Ctx) error {
	client, err := auth.GetClientFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "not authenticated"})
	}

	credits, err := h.billing.GetCredits(c.Context(), client.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	return c.JSON(fiber.Map{"id": client.ID, "name": client.Name, "credit_cents": credits})
}
