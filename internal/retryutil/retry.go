package retryutil

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Do retries fn up to maxAttempts times with exponential backoff
// (baseDelay * 2^(attempt-1)), the shape the teacher's
// WorkerService.calculateRetryDelay uses for send retries, applied here to
// any transient external call (DB query, enqueue) per §4.9. It logs each
// attempt at trace, each retry at warn with {attempt, maxAttempts, delay,
// err, name}, and the final failure at error before returning it.
func Do[T any](ctx context.Context, logger *zap.Logger, name string, maxAttempts int, baseDelay time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		logger.Debug("retry attempt", zap.String("name", name), zap.Int("attempt", attempt))

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			logger.Error("retry exhausted", zap.String("name", name), zap.Int("max_attempts", maxAttempts), zap.Error(err))
			break
		}

		delay := baseDelay * time.Duration(1<<uint(attempt-1))
		logger.Warn("retrying after failure",
			zap.String("name", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, lastErr
}
