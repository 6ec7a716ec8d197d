package tracking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/order"
)

// NoopUpdateFunc completes every task without doing anything. Used when no
// carrier API is configured so the queue still drains instead of retrying
// tasks it can never serve.
func NoopUpdateFunc(_ context.Context, _ *Task) error {
	return nil
}

// NewOrderStatusUpdateFunc builds the queue's production update function:
// fetch the carrier status for the task's tracking number and persist it on
// the order. Both the lookup failure and the persistence failure count as a
// failed attempt, feeding the queue's bounded retry.
func NewOrderStatusUpdateFunc(fetcher StatusFetcher, orders order.Repository, logger *zap.Logger) UpdateFunc {
	return func(ctx context.Context, task *Task) error {
		status, err := fetcher.FetchStatus(ctx, task.TrackingNumber)
		if err != nil {
			return err
		}

		o, err := orders.FindByItemID(ctx, task.ItemID)
		if err != nil {
			return fmt.Errorf("tracking: failed to load order %s: %w", task.ItemID, err)
		}

		o.ApplyTrackingStatus(status, time.Now())
		if err := orders.Upsert(ctx, o); err != nil {
			return fmt.Errorf("tracking: failed to persist status for %s: %w", task.ItemID, err)
		}

		// Carry the fresh status back so a delivered-family result is visible
		// to the queue's admission bookkeeping.
		task.Status = status

		logger.Info("Shipment status refreshed",
			zap.String("item_id", task.ItemID),
			zap.String("tracking_number", task.TrackingNumber),
			zap.String("status", status),
		)
		return nil
	}
}
