package retryutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDoReturnsOnFirstSuccess(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), zap.NewNop(), "test", 3, time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), zap.NewNop(), "test", 5, time.Millisecond, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	calls := 0
	wantErr := errors.New("permanent")
	_, err := Do(context.Background(), zap.NewNop(), "test", 3, time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		return 0, wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
}

func TestDoAbortsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, zap.NewNop(), "test", 5, 50*time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
