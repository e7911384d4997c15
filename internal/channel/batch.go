package channel

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"notify-fanout/internal/ratelimit"
)

// SendOneFunc delivers a single message to a single recipient and returns the
// Result for it. idx is the recipient's position in the original batch, used
// by adapters that need to synthesize a placeholder Recipient when the
// recipient string itself can't be echoed back (e.g. an unparseable web-push
// subscription). Implementations never throw past this boundary — every
// adapter funnels its transport call through one of these, per §4.4.
type SendOneFunc func(idx int, recipient string, meta Meta, logger *zap.Logger) Result

// Send is the adapter-agnostic orchestrator shared by every channel adapter
// (C3, §4.3). It validates each (recipient, meta) pair, schedules valid pairs
// through limiter with at most `concurrency` concurrently in flight, and
// returns Results positionally aligned with recipients. Grounded on the
// teacher's worker.processMessage / EnhancedWorker.processMessageByID
// concurrency-with-cap pattern, generalized from one message to a positional
// batch of N.
func Send(recipients []string, metas []Meta, limiter *ratelimit.MinTimeLimiter, sendOne SendOneFunc, concurrency int, logger *zap.Logger) []Result {
	if concurrency <= 0 {
		concurrency = 5
	}

	results := make([]Result, len(recipients))
	done := make([]bool, len(recipients))

	var skipped, submitted int

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i := range recipients {
		recipient := recipients[i]

		if recipient == "" {
			results[i] = Result{
				Status:    StatusError,
				Recipient: fmt.Sprintf("invalid_recipient_at_index_%d", i),
				Error:     "Invalid recipient data",
			}
			done[i] = true
			skipped++
			continue
		}

		if i >= len(metas) || metas[i] == nil {
			results[i] = Result{
				Status:    StatusError,
				Recipient: recipient,
				Error:     "Missing meta for recipient",
			}
			done[i] = true
			skipped++
			continue
		}

		submitted++
		wg.Add(1)
		sem <- struct{}{}

		go func(idx int, recipient string, meta Meta) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					results[idx] = Result{
						Status:    StatusError,
						Recipient: recipient,
						Error:     "INTERNAL_SEND_ERROR",
						Response:  fmt.Sprintf("%v", r),
					}
					done[idx] = true
				}
			}()

			childLogger := logger.With(zap.String("recipient", lastChars(recipient, 10)))

			// sendOne runs on the limiter's own goroutine, so a panic in it
			// has to be recovered here rather than by the defer above.
			value, err := limiter.Schedule(func() (res any, err error) {
				defer func() {
					if r := recover(); r != nil {
						res = Result{
							Status:    StatusError,
							Recipient: recipient,
							Error:     "INTERNAL_SEND_ERROR",
							Response:  fmt.Sprintf("%v", r),
						}
					}
				}()
				return sendOne(idx, recipient, meta, childLogger), nil
			})
			if err != nil {
				results[idx] = Result{
					Status:    StatusError,
					Recipient: recipient,
					Error:     "INTERNAL_SEND_ERROR",
					Response:  err.Error(),
				}
				done[idx] = true
				return
			}

			res, ok := value.(Result)
			if !ok {
				results[idx] = Result{
					Status:    StatusError,
					Recipient: recipient,
					Error:     "INTERNAL_SEND_ERROR",
				}
				done[idx] = true
				return
			}

			results[idx] = res
			done[idx] = true
		}(i, recipient, metas[i])
	}

	wg.Wait()

	var successCount, failureCount int
	for i := range results {
		if !done[i] {
			results[i] = Result{Status: StatusError, Recipient: recipientOrPlaceholder(recipients, i), Error: "PROCESSING_ERROR_OR_SKIPPED"}
		}
		if results[i].Status == StatusSuccess {
			successCount++
		} else {
			failureCount++
		}
	}

	logger.Info("batch send complete",
		zap.Int("success_count", successCount),
		zap.Int("failure_count", failureCount),
		zap.Int("skipped_count", skipped),
		zap.Int("total_attempted", submitted))

	return results
}

func recipientOrPlaceholder(recipients []string, i int) string {
	if i < len(recipients) && recipients[i] != "" {
		return recipients[i]
	}
	return fmt.Sprintf("invalid_recipient_at_index_%d", i)
}

func lastChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
