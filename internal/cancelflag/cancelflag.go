package cancelflag

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store reads and writes the campaign cancellation flag at
// `worker:cancel:campaign:<campaign_id>` (§3 CancellationFlag). Adapted
// from the teacher's internal/idempotency.Store, which keyed a similar
// Redis lookup on client+request rather than campaign.
type Store struct {
	redis  *redis.Client
	logger *zap.Logger
}

func New(redisClient *redis.Client, logger *zap.Logger) *Store {
	return &Store{redis: redisClient, logger: logger}
}

func key(campaignID string) string {
	return fmt.Sprintf("worker:cancel:campaign:%s", campaignID)
}

// IsCancelled reports whether campaignID's flag is literally "true". A
// missing key means "not cancelled"; other read errors are logged and also
// treated as "not cancelled" per §4.7 step 2 — the worker must never block
// a job on a flaky flag store.
func (s *Store) IsCancelled(ctx context.Context, campaignID string) bool {
	val, err := s.redis.Get(ctx, key(campaignID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("cancellation flag read failed, treating as not cancelled",
				zap.String("campaign_id", campaignID), zap.Error(err))
		}
		return false
	}
	return val == "true"
}

// Set raises campaignID's cancellation flag, optionally expiring after ttl
// (ttl <= 0 means no expiry, per §3's operator-controlled lifetime).
func (s *Store) Set(ctx context.Context, campaignID string, ttl time.Duration) error {
	return s.redis.Set(ctx, key(campaignID), "true", ttl).Err()
}

// Clear removes campaignID's cancellation flag.
func (s *Store) Clear(ctx context.Context, campaignID string) error {
	return s.redis.Del(ctx, key(campaignID)).Err()
}
