package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// CycleTrigger
// ---------------------------------------------------------------------------

// CycleTrigger runs sync cycles on a fixed interval. The first cycle starts
// immediately; a trigger that fires while a cycle is still running is a
// no-op because the service rejects overlapping cycles.
type CycleTrigger struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewCycleTrigger creates a trigger firing every interval.
func NewCycleTrigger(service *Service, interval time.Duration, logger *zap.Logger) *CycleTrigger {
	return &CycleTrigger{
		service:  service,
		interval: interval,
		logger:   logger.Named("sync_trigger"),
	}
}

// Start starts the trigger loop.
func (t *CycleTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Sync trigger started", zap.Duration("interval", t.interval))
	return nil
}

// Stop stops the trigger loop and waits for the in-flight cycle, bounded by
// the given context.
func (t *CycleTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Sync trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *CycleTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	// Run immediately on start
	t.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.runCycle(ctx)
		}
	}
}

func (t *CycleTrigger) runCycle(ctx context.Context) {
	if _, err := t.service.RunCycle(ctx); err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			t.logger.Debug("Skipped trigger, cycle still running")
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		t.logger.Error("Triggered cycle failed", zap.Error(err))
	}
}
