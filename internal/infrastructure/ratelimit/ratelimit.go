// Package ratelimit provides the outbound-call pacing used when talking to
// the selling-partner API. The external per-second quota is the binding
// constraint of the whole pipeline, so every order page, fee estimate and
// tracking lookup acquires from a shared limiter before going on the wire.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for outbound call pacing.
//
// Thread Safety: implementations must be safe for concurrent use.
type Limiter interface {
	// Acquire blocks until at least the configured minimum interval has
	// elapsed since the previous granted acquisition. It only fails when the
	// context is cancelled; pacing itself cannot fail, only delay.
	Acquire(ctx context.Context) error
}

// IntervalLimiter enforces a minimum spacing between grants, first come first
// served. The first acquisition is granted immediately.
type IntervalLimiter struct {
	lim *rate.Limiter
}

// NewIntervalLimiter creates a limiter that grants at most one acquisition
// per minInterval. A non-positive interval falls back to one second, the
// upstream API's published per-second quota.
func NewIntervalLimiter(minInterval time.Duration) *IntervalLimiter {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	return &IntervalLimiter{
		lim: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// Acquire waits for the next grant.
func (l *IntervalLimiter) Acquire(ctx context.Context) error {
	return l.lim.Wait(ctx)
}

// Ensure IntervalLimiter implements Limiter
var _ Limiter = (*IntervalLimiter)(nil)
