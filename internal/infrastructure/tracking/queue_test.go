package tracking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fastConfig keeps the drain loop snappy for tests.
func fastConfig() Config {
	return Config{
		MaxRetries:        3,
		MinUpdateInterval: 12 * time.Hour,
		TaskDelay:         time.Millisecond,
		IdleDelay:         5 * time.Millisecond,
	}
}

// recordingUpdate collects processed tasks and optionally fails.
type recordingUpdate struct {
	mu        sync.Mutex
	processed []Task
	err       error
	block     chan struct{}
}

func (r *recordingUpdate) fn(ctx context.Context, task *Task) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.processed = append(r.processed, *task)
	r.mu.Unlock()
	return r.err
}

func (r *recordingUpdate) tasks() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, len(r.processed))
	copy(out, r.processed)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}

func TestQueue_Enqueue(t *testing.T) {
	t.Run("processes an admitted task", func(t *testing.T) {
		rec := &recordingUpdate{}
		q := NewQueue(fastConfig(), rec.fn, zap.NewNop())
		defer q.Clear()

		require.NoError(t, q.Enqueue("10001", "1Z999AA10123456784", "In transit"))

		waitFor(t, func() bool { return len(rec.tasks()) == 1 })
		assert.Equal(t, "10001", rec.tasks()[0].ItemID)
	})

	t.Run("rejects empty tracking number", func(t *testing.T) {
		q := NewQueue(fastConfig(), (&recordingUpdate{}).fn, zap.NewNop())
		defer q.Clear()

		assert.ErrorIs(t, q.Enqueue("10002", "", "In transit"), ErrNoTrackingNumber)
	})

	t.Run("never admits delivered-family statuses regardless of case", func(t *testing.T) {
		q := NewQueue(fastConfig(), (&recordingUpdate{}).fn, zap.NewNop())
		defer q.Clear()

		for _, status := range []string{"Delivered", "DELIVERED", "delivered", "Completed", "final delivery", "Delivered to neighbor"} {
			assert.ErrorIs(t, q.Enqueue("10003", "1Z1", status), ErrTaskDelivered, "status %q", status)
		}
		assert.Equal(t, 0, q.Stats()["pending"])
	})

	t.Run("dedup keeps one task with the most recent tracking number", func(t *testing.T) {
		rec := &recordingUpdate{block: make(chan struct{})}
		q := NewQueue(fastConfig(), rec.fn, zap.NewNop())
		defer q.Clear()

		// First task occupies the drain goroutine so the next two stay queued.
		require.NoError(t, q.Enqueue("blocker", "1Z0", "In transit"))
		waitFor(t, func() bool { return q.Stats()["in_flight"] == "blocker" })

		require.NoError(t, q.Enqueue("10004", "1Z-OLD", "In transit"))
		require.NoError(t, q.Enqueue("10004", "1Z-NEW", "In transit"))
		assert.Equal(t, 1, q.Stats()["pending"])

		// Receiving from the closed channel is a no-op for later tasks
		close(rec.block)

		waitFor(t, func() bool { return len(rec.tasks()) == 2 })
		processed := rec.tasks()[1]
		assert.Equal(t, "10004", processed.ItemID)
		assert.Equal(t, "1Z-NEW", processed.TrackingNumber)
	})

	t.Run("throttles re-enqueue within the minimum update interval", func(t *testing.T) {
		rec := &recordingUpdate{}
		q := NewQueue(fastConfig(), rec.fn, zap.NewNop())
		defer q.Clear()

		require.NoError(t, q.Enqueue("10005", "1Z5", "In transit"))
		waitFor(t, func() bool { return len(rec.tasks()) == 1 })

		assert.ErrorIs(t, q.Enqueue("10005", "1Z5", "In transit"), ErrTaskThrottled)
	})
}

func TestQueue_RetryExhaustion(t *testing.T) {
	rec := &recordingUpdate{err: errors.New("carrier timeout")}
	cfg := fastConfig()
	q := NewQueue(cfg, rec.fn, zap.NewNop())
	defer q.Clear()

	require.NoError(t, q.Enqueue("10006", "1Z6", "In transit"))

	// Dropped after exactly MaxRetries attempts
	waitFor(t, func() bool { return len(rec.tasks()) == cfg.MaxRetries })

	// The task must not reappear without a fresh enqueue
	time.Sleep(20 * cfg.IdleDelay)
	assert.Len(t, rec.tasks(), cfg.MaxRetries)
	assert.Equal(t, 0, q.Stats()["pending"])

	// A failed item is not throttled; it can be re-admitted
	assert.NoError(t, q.Enqueue("10006", "1Z6", "In transit"))
}

func TestQueue_SingleFlight(t *testing.T) {
	rec := &recordingUpdate{block: make(chan struct{})}
	q := NewQueue(fastConfig(), rec.fn, zap.NewNop())
	defer q.Clear()

	require.NoError(t, q.Enqueue("10007", "1Z7", "In transit"))
	waitFor(t, func() bool { return q.Stats()["in_flight"] == "10007" })

	assert.ErrorIs(t, q.Enqueue("10007", "1Z7", "In transit"), ErrTaskInFlight)

	close(rec.block)
	waitFor(t, func() bool { return len(rec.tasks()) == 1 })
}

func TestQueue_Clear(t *testing.T) {
	rec := &recordingUpdate{}
	q := NewQueue(fastConfig(), rec.fn, zap.NewNop())

	require.NoError(t, q.Enqueue("10008", "1Z8", "In transit"))
	waitFor(t, func() bool { return len(rec.tasks()) == 1 })

	q.Clear()
	// Idempotent on an already-empty queue
	q.Clear()

	stats := q.Stats()
	assert.Equal(t, 0, stats["pending"])
	assert.Equal(t, "", stats["in_flight"])
	assert.Equal(t, false, stats["draining"])

	// Clear also resets throttling state
	assert.NoError(t, q.Enqueue("10008", "1Z8", "In transit"))
	q.Clear()
}

func TestQueue_ClearBlocksEnqueueUntilDrainExit(t *testing.T) {
	var overlapped atomic.Bool
	var active atomic.Int32
	var done atomic.Int32
	release := make(chan struct{})

	fn := func(_ context.Context, task *Task) error {
		if active.Add(1) > 1 {
			overlapped.Store(true)
		}
		defer active.Add(-1)
		if task.ItemID == "10011" {
			<-release
		}
		done.Add(1)
		return nil
	}

	q := NewQueue(fastConfig(), fn, zap.NewNop())
	defer q.Clear()

	require.NoError(t, q.Enqueue("10011", "1Z11", "In transit"))
	waitFor(t, func() bool { return q.Stats()["in_flight"] == "10011" })

	cleared := make(chan struct{})
	go func() {
		q.Clear()
		close(cleared)
	}()
	// Clear has wiped the queue state and is now waiting on the blocked
	// drain goroutine.
	waitFor(t, func() bool { return q.Stats()["in_flight"] == "" })

	admitted := make(chan error, 1)
	go func() {
		admitted <- q.Enqueue("10012", "1Z12", "In transit")
	}()

	// The enqueue must not get through while the old drain is still running.
	select {
	case <-admitted:
		t.Fatal("enqueue admitted while clear was still draining")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-cleared
	require.NoError(t, <-admitted)

	waitFor(t, func() bool { return done.Load() == 2 })
	assert.False(t, overlapped.Load(), "two drain goroutines ran a task concurrently")
}

func TestQueue_DrainRestartsAfterIdle(t *testing.T) {
	rec := &recordingUpdate{}
	q := NewQueue(fastConfig(), rec.fn, zap.NewNop())
	defer q.Clear()

	require.NoError(t, q.Enqueue("10009", "1Z9", "In transit"))
	waitFor(t, func() bool { return len(rec.tasks()) == 1 })

	// Let the drain goroutine go idle and exit
	waitFor(t, func() bool { return q.Stats()["draining"] == false })

	// A new enqueue restarts it
	require.NoError(t, q.Enqueue("10010", "1Z10", "In transit"))
	waitFor(t, func() bool { return len(rec.tasks()) == 2 })
}
