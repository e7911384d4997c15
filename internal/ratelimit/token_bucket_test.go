package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTokenBucketRejectsNonPositiveRate(t *testing.T) {
	_, err := NewTokenBucket(0)
	assert.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestTokenBucketStartsFull(t *testing.T) {
	b, err := NewTokenBucket(5)
	assert.NoError(t, err)

	for i := 0; i < 5; i++ {
		wait, ok := b.tryAcquire()
		assert.True(t, ok, "token %d should be immediately available", i)
		assert.Zero(t, wait)
	}

	_, ok := b.tryAcquire()
	assert.False(t, ok, "bucket should be empty after capacity tokens consumed")
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	b, err := NewTokenBucket(100)
	assert.NoError(t, err)

	for i := 0; i < 100; i++ {
		b.tryAcquire()
	}
	_, ok := b.tryAcquire()
	assert.False(t, ok)

	time.Sleep(50 * time.Millisecond)
	_, ok = b.tryAcquire()
	assert.True(t, ok, "bucket should have refilled at least one token after 50ms at 100/s")
}

func TestTokenBucketAcquireRateBound(t *testing.T) {
	b, err := NewTokenBucket(50)
	assert.NoError(t, err)

	start := time.Now()
	n := 75
	for i := 0; i < n; i++ {
		b.Acquire()
	}
	elapsed := time.Since(start)

	minExpected := time.Duration(float64(n-50) / 50 * float64(time.Second))
	assert.GreaterOrEqual(t, elapsed, minExpected/2, "acquiring beyond capacity should take roughly rate-bound time")
}
