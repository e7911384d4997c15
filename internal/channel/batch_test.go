package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"notify-fanout/internal/ratelimit"
)

func TestSendPositionalAlignment(t *testing.T) {
	logger := zap.NewNop()
	limiter := ratelimit.NewChannelLimiter(5, 1000)

	recipients := []string{"a@example.com", "", "c@example.com"}
	metas := []Meta{EmailMeta{Subject: "hi"}, EmailMeta{Subject: "hi"}, nil}

	sendOne := func(idx int, recipient string, meta Meta, logger *zap.Logger) Result {
		return Result{Status: StatusSuccess, Recipient: recipient}
	}

	results := Send(recipients, metas, limiter, sendOne, 2, logger)

	if assert.Len(t, results, 3) {
		assert.Equal(t, StatusSuccess, results[0].Status)
		assert.Equal(t, StatusError, results[1].Status)
		assert.Equal(t, "Invalid recipient data", results[1].Error)
		assert.Equal(t, StatusError, results[2].Status)
		assert.Equal(t, "Missing meta for recipient", results[2].Error)
	}
}

func TestSendRecoversPanic(t *testing.T) {
	logger := zap.NewNop()
	limiter := ratelimit.NewChannelLimiter(5, 1000)

	recipients := []string{"a@example.com"}
	metas := []Meta{EmailMeta{Subject: "hi"}}

	sendOne := func(idx int, recipient string, meta Meta, logger *zap.Logger) Result {
		panic("boom")
	}

	results := Send(recipients, metas, limiter, sendOne, 2, logger)

	if assert.Len(t, results, 1) {
		assert.Equal(t, StatusError, results[0].Status)
		assert.Equal(t, "INTERNAL_SEND_ERROR", results[0].Error)
	}
}

func TestSendPropagatesLimiterError(t *testing.T) {
	logger := zap.NewNop()
	limiter := ratelimit.NewChannelLimiter(5, 1000)
	limiter.Close()

	recipients := []string{"a@example.com"}
	metas := []Meta{EmailMeta{Subject: "hi"}}

	sendOne := func(idx int, recipient string, meta Meta, logger *zap.Logger) Result {
		return Result{Status: StatusSuccess, Recipient: recipient}
	}

	results := Send(recipients, metas, limiter, sendOne, 2, logger)

	if assert.Len(t, results, 1) {
		assert.Equal(t, StatusError, results[0].Status)
		assert.Equal(t, "INTERNAL_SEND_ERROR", results[0].Error)
		assert.Equal(t, ratelimit.ErrCancelled.Error(), results[0].Response)
	}
}

func TestSendRespectsConcurrencyCap(t *testing.T) {
	logger := zap.NewNop()
	limiter := ratelimit.NewChannelLimiter(2, 1000)

	n := 10
	recipients := make([]string, n)
	metas := make([]Meta, n)
	for i := range recipients {
		recipients[i] = "r"
		metas[i] = EmailMeta{Subject: "hi"}
	}

	var maxObserved int
	sendOne := func(idx int, recipient string, meta Meta, logger *zap.Logger) Result {
		if cur := limiter.InFlight(); cur > maxObserved {
			maxObserved = cur
		}
		return Result{Status: StatusSuccess, Recipient: recipient}
	}

	results := Send(recipients, metas, limiter, sendOne, 8, logger)
	assert.Len(t, results, n)
	assert.LessOrEqual(t, maxObserved, 2)
}
