// Package tracking provides the background shipment-status refresh queue.
// The queue is process-local by design: its state is rebuilt from the order
// store on restart, never carried over.
package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/order"
)

// ---------------------------------------------------------------------------
// Task Types
// ---------------------------------------------------------------------------

// TaskState represents where a task is in its lifecycle
type TaskState string

const (
	TaskStatePending   TaskState = "PENDING"
	TaskStateInFlight  TaskState = "IN_FLIGHT"
	TaskStateCompleted TaskState = "COMPLETED"
	TaskStateDropped   TaskState = "DROPPED"
)

// Task is a pending request to refresh one order's shipment status
type Task struct {
	// ItemID is the order line item the task refreshes
	ItemID string
	// TrackingNumber is the shipment tracking number to look up
	TrackingNumber string
	// Status is the last known shipment status, used for admission checks
	Status string
	// RetryCount is the number of consecutive failed attempts so far
	RetryCount int
	// EnqueuedAt is when the task was (last) admitted
	EnqueuedAt time.Time

	state TaskState
}

// State returns the task's current lifecycle state
func (t *Task) State() TaskState {
	return t.state
}

// UpdateFunc performs the actual tracking refresh for one task: look up the
// carrier status and persist it. A returned error counts as a failed attempt.
type UpdateFunc func(ctx context.Context, task *Task) error

// ---------------------------------------------------------------------------
// Admission Errors
// ---------------------------------------------------------------------------

var (
	// ErrTaskDelivered indicates the item is already in a delivered-family
	// state and has nothing left to track
	ErrTaskDelivered = errors.New("tracking: item already in a delivered state")
	// ErrTaskInFlight indicates an update for the item is being processed
	// right now
	ErrTaskInFlight = errors.New("tracking: item update already in flight")
	// ErrTaskThrottled indicates the item was successfully refreshed within
	// the minimum update interval
	ErrTaskThrottled = errors.New("tracking: item was refreshed too recently")
	// ErrNoTrackingNumber indicates the task carries no tracking number
	ErrNoTrackingNumber = errors.New("tracking: tracking number is required")
)

// ---------------------------------------------------------------------------
// Queue Config
// ---------------------------------------------------------------------------

// Config holds configuration for the tracking queue
type Config struct {
	// MaxRetries is how many consecutive failures drop a task
	MaxRetries int
	// MinUpdateInterval is the minimum time between successful refreshes of
	// the same item
	MinUpdateInterval time.Duration
	// TaskDelay is the fixed delay between the start of consecutive tasks
	TaskDelay time.Duration
	// IdleDelay is the delay before re-checking after the queue empties
	IdleDelay time.Duration
}

// DefaultConfig returns the production defaults: conservative pacing that
// mirrors the fee client's quota-respecting posture.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		MinUpdateInterval: 12 * time.Hour,
		TaskDelay:         time.Second,
		IdleDelay:         5 * time.Second,
	}
}

// ---------------------------------------------------------------------------
// Queue
// ---------------------------------------------------------------------------

// Queue is a single-consumer work queue for shipment-status refreshes with
// per-item single-flight admission, dedup on enqueue and bounded retries.
// All state transitions happen under one mutex; the drain goroutine is the
// only consumer.
type Queue struct {
	config Config
	update UpdateFunc
	logger *zap.Logger

	// clearMu serializes Clear against Enqueue: no new drain goroutine may
	// start until the cancelled one has fully exited.
	clearMu sync.Mutex

	mu            sync.Mutex
	pending       map[string]*Task
	fifo          []string
	inFlight      string
	lastCompleted map[string]time.Time
	draining      bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewQueue creates a new tracking queue. The drain loop starts lazily on the
// first admitted task.
func NewQueue(config Config, update UpdateFunc, logger *zap.Logger) *Queue {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	return &Queue{
		config:        config,
		update:        update,
		logger:        logger,
		pending:       make(map[string]*Task),
		lastCompleted: make(map[string]time.Time),
	}
}

// Enqueue admits a tracking refresh task for one item. At most one task per
// item is ever pending: re-enqueueing replaces the stale entry with the newer
// tracking number and resets the retry counter. Returns a sentinel error when
// the task is not admitted.
func (q *Queue) Enqueue(itemID, trackingNumber, status string) error {
	if trackingNumber == "" {
		return ErrNoTrackingNumber
	}
	if order.IsDeliveredFamily(status) {
		return ErrTaskDelivered
	}

	q.clearMu.Lock()
	defer q.clearMu.Unlock()
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.inFlight == itemID {
		return ErrTaskInFlight
	}
	if last, ok := q.lastCompleted[itemID]; ok && time.Since(last) < q.config.MinUpdateInterval {
		return ErrTaskThrottled
	}

	task := &Task{
		ItemID:         itemID,
		TrackingNumber: trackingNumber,
		Status:         status,
		EnqueuedAt:     time.Now(),
		state:          TaskStatePending,
	}

	if _, exists := q.pending[itemID]; exists {
		// Replace in place, keeping the original queue position.
		q.pending[itemID] = task
		return nil
	}

	q.pending[itemID] = task
	q.fifo = append(q.fifo, itemID)
	q.startDrainLocked()
	return nil
}

// Clear idempotently empties all queue state and cancels the pending drain.
// Blocks concurrent enqueues until the drain goroutine has exited, so exactly
// one drain can ever run. Used for process shutdown and test reset.
func (q *Queue) Clear() {
	q.clearMu.Lock()
	defer q.clearMu.Unlock()

	q.mu.Lock()
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	q.pending = make(map[string]*Task)
	q.fifo = nil
	q.inFlight = ""
	q.lastCompleted = make(map[string]time.Time)
	q.mu.Unlock()

	q.wg.Wait()

	q.mu.Lock()
	q.draining = false
	q.mu.Unlock()
}

// Stats reports the queue's current occupancy for monitoring.
func (q *Queue) Stats() map[string]interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := make(map[string]interface{})
	stats["pending"] = len(q.pending)
	stats["in_flight"] = q.inFlight
	stats["draining"] = q.draining
	stats["recently_completed"] = len(q.lastCompleted)
	return stats
}

// ---------------------------------------------------------------------------
// Drain Loop
// ---------------------------------------------------------------------------

// startDrainLocked launches the drain goroutine if it is not already running.
// Caller must hold q.mu.
func (q *Queue) startDrainLocked() {
	if q.draining {
		return
	}
	q.draining = true

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	q.wg.Add(1)
	go q.drainLoop(ctx)
}

// drainLoop processes tasks one at a time until the queue stays empty through
// a full idle delay, then exits. The next admitted task restarts it.
func (q *Queue) drainLoop(ctx context.Context) {
	defer q.wg.Done()

	for {
		task := q.next()
		if task == nil {
			if !q.sleep(ctx, q.config.IdleDelay) {
				return
			}
			if q.stopIfEmpty() {
				return
			}
			continue
		}

		q.process(ctx, task)

		// Sleeping after the attempt spaces task starts by at least
		// TaskDelay; the carrier API never sees a tighter cadence.
		if !q.sleep(ctx, q.config.TaskDelay) {
			return
		}
	}
}

// next pops the head task and marks its item in flight
func (q *Queue) next() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.fifo) > 0 {
		itemID := q.fifo[0]
		q.fifo = q.fifo[1:]
		task, ok := q.pending[itemID]
		if !ok {
			continue
		}
		delete(q.pending, itemID)
		task.state = TaskStateInFlight
		q.inFlight = itemID
		return task
	}
	return nil
}

// process runs one task attempt and applies the resulting state transition
func (q *Queue) process(ctx context.Context, task *Task) {
	err := q.update(ctx, task)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight = ""

	if ctx.Err() != nil {
		return
	}

	if err != nil {
		task.RetryCount++
		if task.RetryCount >= q.config.MaxRetries {
			task.state = TaskStateDropped
			q.logger.Error("Tracking update dropped after exhausting retries",
				zap.String("item_id", task.ItemID),
				zap.String("tracking_number", task.TrackingNumber),
				zap.Int("attempts", task.RetryCount),
				zap.Error(err),
			)
			return
		}

		task.state = TaskStatePending
		q.logger.Warn("Tracking update failed, will retry",
			zap.String("item_id", task.ItemID),
			zap.Int("retry_count", task.RetryCount),
			zap.Int("max_retries", q.config.MaxRetries),
			zap.Error(err),
		)

		// A newer enqueue during the attempt wins over the retry.
		if _, exists := q.pending[task.ItemID]; !exists {
			q.pending[task.ItemID] = task
			q.fifo = append(q.fifo, task.ItemID)
		}
		return
	}

	task.state = TaskStateCompleted
	q.lastCompleted[task.ItemID] = time.Now()
	q.pruneCompletedLocked()

	q.logger.Debug("Tracking update completed",
		zap.String("item_id", task.ItemID),
		zap.String("tracking_number", task.TrackingNumber),
	)
}

// stopIfEmpty stops the drain loop when nothing arrived during the idle delay
func (q *Queue) stopIfEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.fifo) == 0 {
		q.draining = false
		q.cancel = nil
		return true
	}
	return false
}

// sleep waits for d, returning false when the context is cancelled
func (q *Queue) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// pruneCompletedLocked drops completion records older than the minimum update
// interval so the map cannot grow without bound. Caller must hold q.mu.
func (q *Queue) pruneCompletedLocked() {
	cutoff := time.Now().Add(-q.config.MinUpdateInterval)
	for itemID, completedAt := range q.lastCompleted {
		if completedAt.Before(cutoff) {
			delete(q.lastCompleted, itemID)
		}
	}
}
