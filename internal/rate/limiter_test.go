package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowSpendsBurst(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerSecond: 1, Burst: 3})

	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())
}

func TestAllowRefillsOverTime(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerSecond: 100, Burst: 1})

	require.True(t, limiter.Allow())
	require.False(t, limiter.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, limiter.Allow())
}

func TestWaitBlocksUntilToken(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerSecond: 50, Burst: 1})
	require.True(t, limiter.Allow())

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	assert.Greater(t, time.Since(start), 10*time.Millisecond)
}

func TestWaitHonorsContextCancel(t *testing.T) {
	limiter := NewLimiter(Config{RequestsPerSecond: 1, Burst: 1})
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
