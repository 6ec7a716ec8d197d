package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalLimiter_FirstAcquireImmediate(t *testing.T) {
	limiter := NewIntervalLimiter(time.Second)

	start := time.Now()
	err := limiter.Acquire(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestIntervalLimiter_EnforcesMinimumSpacing(t *testing.T) {
	const (
		interval = 30 * time.Millisecond
		calls    = 4
	)
	limiter := NewIntervalLimiter(interval)

	start := time.Now()
	for i := 0; i < calls; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}
	elapsed := time.Since(start)

	// N acquisitions must take no less than (N-1) * interval of wall time.
	assert.GreaterOrEqual(t, elapsed, (calls-1)*interval)
}

func TestIntervalLimiter_ContextCancellation(t *testing.T) {
	limiter := NewIntervalLimiter(time.Minute)

	// Drain the initial grant so the next Acquire has to wait.
	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Acquire(ctx)
	assert.Error(t, err)
}

func TestNewIntervalLimiter_NonPositiveIntervalDefaults(t *testing.T) {
	limiter := NewIntervalLimiter(0)
	require.NotNil(t, limiter)

	// Still usable: first grant is immediate.
	assert.NoError(t, limiter.Acquire(context.Background()))
}
