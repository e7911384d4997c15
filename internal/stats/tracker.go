package stats

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"notify-fanout/internal/channel"
)

// Tracker updates the StatsHash at a tracking_key (§4.8), using a single
// pipelined HINCRBY per Send call so concurrent jobs' increments are
// commutative and atomic, the same pipelining idiom the teacher reaches for
// in internal/persistence and internal/billing's transactional updates.
type Tracker struct {
	redis  *redis.Client
	logger *zap.Logger
}

func New(redisClient *redis.Client, logger *zap.Logger) *Tracker {
	return &Tracker{redis: redisClient, logger: logger}
}

const defaultTrackingKey = "notifications:stats"

// Track increments one counter per Result in results under trackingKey
// (falling back to the package default when trackingKey is empty):
// "success" for a success Result, "error:<body>" for a failure, falling
// back to "error:UNKNOWN_ERROR" when the error field is empty. An empty or
// nil results slice is a no-op: no writes, per §4.8.
func (t *Tracker) Track(ctx context.Context, trackingKey string, results []channel.Result) error {
	if trackingKey == "" {
		trackingKey = defaultTrackingKey
	}

	if len(results) == 0 {
		return nil
	}

	pipe := t.redis.Pipeline()
	for _, res := range results {
		counter := counterName(res)
		pipe.HIncrBy(ctx, trackingKey, counter, 1)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		t.logger.Warn("stats pipeline exec failed", zap.String("tracking_key", trackingKey), zap.Error(err))
	}
	return err
}

func counterName(res channel.Result) string {
	if res.Status == channel.StatusSuccess {
		return "success"
	}
	if res.Error == "" {
		return "error:UNKNOWN_ERROR"
	}
	return "error:" + res.Error
}

// Get reads trackingKey's full StatsHash.
func (t *Tracker) Get(ctx context.Context, trackingKey string) (map[string]int64, error) {
	raw, err := t.redis.HGetAll(ctx, trackingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read stats hash: %w", err)
	}

	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

// Reset deletes trackingKey, used after on_complete when
// reset_stats_after_completion is enabled (§4.7 step 8).
func (t *Tracker) Reset(ctx context.Context, trackingKey string) error {
	return t.redis.Del(ctx, trackingKey).Err()
}
