// Package sync implements the marketplace order synchronization cycle: it
// pulls order pages from the marketplace, merges them into the local order
// book, settles fee estimates, recomputes financial metrics and feeds the
// tracking refresh queue.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/marketplace"
	"github.com/sellerpulse/backend/internal/domain/order"
	"github.com/sellerpulse/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrCycleInProgress is returned when RunCycle is called while another
	// cycle is still running. Callers treat it as a no-op.
	ErrCycleInProgress = errors.New("sync: cycle already in progress")

	// ErrCycleFailed wraps fatal cycle errors (auth, state store, first page).
	ErrCycleFailed = errors.New("sync: cycle failed")
)

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// StateStore persists the sync high-water mark and cycle outcomes.
type StateStore interface {
	// HighWaterMark returns the purchase-date watermark of the last
	// successful cycle, or nil when no cycle has completed yet.
	HighWaterMark(ctx context.Context) (*time.Time, error)

	// SaveCycleOutcome records the watermark and status of a finished cycle.
	SaveCycleOutcome(ctx context.Context, highWaterMark *time.Time, status string) error
}

// TrackingEnqueuer accepts shipments for asynchronous tracking refresh.
type TrackingEnqueuer interface {
	Enqueue(itemID, trackingNumber, status string) error
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Config holds sync cycle tuning parameters.
type Config struct {
	// Lookback bounds the first fetch window when no high-water mark exists.
	Lookback time.Duration

	// HistorySize caps the number of retained cycle summaries.
	HistorySize int
}

// Validate fills defaults for unset values.
func (c *Config) Validate() error {
	if c.Lookback <= 0 {
		c.Lookback = 30 * 24 * time.Hour
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 50
	}
	return nil
}

// Service orchestrates order sync cycles. At most one cycle runs at a time;
// overlapping triggers are rejected with ErrCycleInProgress.
type Service struct {
	client   marketplace.Client
	orders   order.Repository
	state    StateStore
	tracking TrackingEnqueuer
	notifier marketplace.Notifier
	config   Config
	logger   *zap.Logger

	running atomic.Bool

	historyMu sync.Mutex
	history   []marketplace.CycleSummary
}

// NewService creates a sync service.
func NewService(
	client marketplace.Client,
	orders order.Repository,
	state StateStore,
	tracking TrackingEnqueuer,
	notifier marketplace.Notifier,
	config Config,
	logger *zap.Logger,
) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		client:   client,
		orders:   orders,
		state:    state,
		tracking: tracking,
		notifier: notifier,
		config:   config,
		logger:   logger.Named("sync"),
	}, nil
}

// cycleTally accumulates per-cycle counters while pages are processed.
type cycleTally struct {
	newOrders        int
	updatedOrders    int
	feeLookups       int
	trackingEnqueued int
	errorCount       int
	totalValue       decimal.Decimal

	// maxPurchase is the latest purchase date among successfully stored
	// orders; earliestFailed the earliest among failed ones. The next
	// watermark is held back below every failure so failed orders are
	// re-fetched by the following cycle.
	maxPurchase    *time.Time
	earliestFailed *time.Time
}

// RunCycle executes one full synchronization cycle. A second concurrent call
// returns ErrCycleInProgress without doing any work.
func (s *Service) RunCycle(ctx context.Context) (*marketplace.CycleSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer s.running.Store(false)

	cycleID := uuid.New()
	startedAt := time.Now()
	logger := s.logger.With(zap.String("cycle_id", cycleID.String()))

	logger.Info("Starting sync cycle")

	// Authenticate up front: without a token nothing else can proceed.
	if _, err := s.client.GetAccessToken(ctx); err != nil {
		return nil, s.failCycle(ctx, logger, cycleID, startedAt, fmt.Errorf("token refresh: %w", err))
	}

	priorMark, err := s.state.HighWaterMark(ctx)
	if err != nil {
		return nil, s.failCycle(ctx, logger, cycleID, startedAt, fmt.Errorf("load high-water mark: %w", err))
	}

	since := startedAt.Add(-s.config.Lookback)
	if priorMark != nil {
		since = *priorMark
	}

	tally := &cycleTally{totalValue: decimal.Zero}

	// Pull pages until the marketplace reports no more.
	nextToken := ""
	pageNo := 0
	var pageErr error
	for {
		select {
		case <-ctx.Done():
			pageErr = ctx.Err()
		default:
		}
		if pageErr != nil {
			break
		}

		page, err := s.client.FetchOrders(ctx, since, nextToken)
		if err != nil {
			logger.Error("Failed to fetch order page",
				zap.Int("page_no", pageNo),
				zap.Error(err),
			)
			pageErr = err
			break
		}
		pageNo++

		for i := range page.Orders {
			s.processOrder(ctx, logger, &page.Orders[i], tally)
		}

		logger.Debug("Processed page of orders",
			zap.Int("page_no", pageNo),
			zap.Int("orders_in_page", len(page.Orders)),
		)

		if !page.HasMore || len(page.Orders) == 0 {
			break
		}
		nextToken = page.NextToken
	}

	processed := tally.newOrders + tally.updatedOrders
	if pageErr != nil && processed == 0 {
		// Nothing landed before the failure: the whole cycle failed.
		return nil, s.failCycle(ctx, logger, cycleID, startedAt, fmt.Errorf("fetch orders: %w", pageErr))
	}
	if pageErr != nil {
		tally.errorCount++
	}

	// Advance the watermark, held back below the earliest failed order.
	newMark := priorMark
	if tally.maxPurchase != nil {
		newMark = tally.maxPurchase
	}
	if tally.earliestFailed != nil {
		holdback := tally.earliestFailed.Add(-time.Second)
		if newMark == nil || holdback.Before(*newMark) {
			newMark = &holdback
		}
	}

	summary := marketplace.CycleSummary{
		CycleID:          cycleID,
		Status:           cycleStatus(tally, processed),
		StartedAt:        startedAt,
		Duration:         time.Since(startedAt),
		NewOrders:        tally.newOrders,
		UpdatedOrders:    tally.updatedOrders,
		FeeLookups:       tally.feeLookups,
		TotalValue:       tally.totalValue.Round(2),
		TrackingEnqueued: tally.trackingEnqueued,
		ErrorCount:       tally.errorCount,
	}
	if pageErr != nil {
		summary.Error = pageErr.Error()
	}

	if err := s.state.SaveCycleOutcome(ctx, newMark, string(summary.Status)); err != nil {
		logger.Warn("Failed to persist cycle outcome", zap.Error(err))
		// Re-fetching already-stored orders is safe; don't fail the cycle.
	}

	s.recordHistory(summary)
	s.notifier.Report(ctx, summary)

	logger.Info("Sync cycle completed",
		zap.String("status", string(summary.Status)),
		zap.Int("new_orders", summary.NewOrders),
		zap.Int("updated_orders", summary.UpdatedOrders),
		zap.Int("fee_lookups", summary.FeeLookups),
		zap.Int("tracking_enqueued", summary.TrackingEnqueued),
		zap.Int("error_count", summary.ErrorCount),
		zap.Duration("duration", summary.Duration),
	)

	return &summary, nil
}

// processOrder merges one marketplace observation into the order book.
func (s *Service) processOrder(ctx context.Context, logger *zap.Logger, po *marketplace.PlatformOrder, tally *cycleTally) {
	created, err := s.mergeOrder(ctx, po, tally)
	if err != nil {
		logger.Error("Failed to process order",
			zap.String("item_id", po.ItemID),
			zap.Error(err),
		)
		tally.errorCount++
		if tally.earliestFailed == nil || po.PurchaseDate.Before(*tally.earliestFailed) {
			t := po.PurchaseDate
			tally.earliestFailed = &t
		}
		return
	}

	if created {
		tally.newOrders++
	} else {
		tally.updatedOrders++
	}
	tally.totalValue = tally.totalValue.Add(po.ListPrice)
	if tally.maxPurchase == nil || po.PurchaseDate.After(*tally.maxPurchase) {
		t := po.PurchaseDate
		tally.maxPurchase = &t
	}

	if po.TrackingNumber != "" && !order.IsDeliveredFamily(po.Status) {
		if err := s.tracking.Enqueue(po.ItemID, po.TrackingNumber, po.Status); err == nil {
			tally.trackingEnqueued++
		}
	}
}

// mergeOrder upserts one observation: loads or creates the entity, settles
// the fee estimate, recomputes metrics and stores the result. Returns true
// when the order was seen for the first time.
func (s *Service) mergeOrder(ctx context.Context, po *marketplace.PlatformOrder, tally *cycleTally) (bool, error) {
	status := order.Status(po.Status).Normalize()

	existing, err := s.orders.FindByItemID(ctx, po.ItemID)
	created := false
	switch {
	case err == nil:
		// Fee must be re-estimated when the price moved; check against the
		// stored price before the observation overwrites it.
		if existing.NeedsFeeEstimate(po.ListPrice) {
			existing.MarketplaceFee = decimal.NullDecimal{}
		}
		existing.ApplyObservation(status, po.ListPrice, po.QuantitySold, po.TrackingNumber)
	case errors.Is(err, shared.ErrNotFound):
		existing, err = order.NewOrder(po.ItemID, po.OrderID, po.ASIN, po.SKU, po.PurchaseDate, status, po.ListPrice, po.QuantitySold)
		if err != nil {
			return false, err
		}
		if po.TrackingNumber != "" {
			tn := po.TrackingNumber
			existing.TrackingNumber = &tn
		}
		created = true
	default:
		return false, err
	}

	if !existing.MarketplaceFee.Valid {
		tally.feeLookups++
		fee, err := s.client.EstimateFee(ctx, existing.ASIN, existing.ListPrice, "")
		if err != nil {
			// Only context cancellation surfaces here; estimate failures
			// already degraded to zero inside the client.
			return created, err
		}
		existing.SetMarketplaceFee(fee)
	}

	existing.ApplyMetrics(order.ComputeMetrics(existing))

	if err := s.orders.Upsert(ctx, existing); err != nil {
		return created, err
	}
	return created, nil
}

// EnqueueActiveShipments loads every order with an in-flight shipment and
// feeds it to the tracking queue. Called at startup so shipments that were
// pending when the process last stopped are picked up again.
func (s *Service) EnqueueActiveShipments(ctx context.Context) (int, error) {
	shipments, err := s.orders.FindActiveShipments(ctx)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for i := range shipments {
		o := &shipments[i]
		if !o.HasActiveShipment() {
			continue
		}
		// Admit with the freshest terminal-capable status we know: the
		// carrier's when one was recorded, the order's own otherwise.
		status := string(o.Status)
		if o.TrackingStatus != nil {
			status = *o.TrackingStatus
		}
		if err := s.tracking.Enqueue(o.ItemID, *o.TrackingNumber, status); err == nil {
			enqueued++
		}
	}

	s.logger.Info("Requeued active shipments",
		zap.Int("found", len(shipments)),
		zap.Int("enqueued", enqueued),
	)
	return enqueued, nil
}

// History returns retained cycle summaries, most recent first.
func (s *Service) History() []marketplace.CycleSummary {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	out := make([]marketplace.CycleSummary, len(s.history))
	for i := range s.history {
		out[i] = s.history[len(s.history)-1-i]
	}
	return out
}

// IsRunning reports whether a cycle is currently executing.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

func (s *Service) recordHistory(summary marketplace.CycleSummary) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append(s.history, summary)
	if len(s.history) > s.config.HistorySize {
		s.history = s.history[len(s.history)-s.config.HistorySize:]
	}
}

// failCycle records and reports a fatal cycle error.
func (s *Service) failCycle(ctx context.Context, logger *zap.Logger, cycleID uuid.UUID, startedAt time.Time, cause error) error {
	logger.Error("Sync cycle failed", zap.Error(cause))

	if err := s.state.SaveCycleOutcome(ctx, nil, string(marketplace.CycleStatusFailed)); err != nil {
		logger.Warn("Failed to persist cycle outcome", zap.Error(err))
	}

	summary := marketplace.CycleSummary{
		CycleID:   cycleID,
		Status:    marketplace.CycleStatusFailed,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Error:     cause.Error(),
	}
	s.recordHistory(summary)
	s.notifier.ReportError(ctx, cause)

	return fmt.Errorf("%w: %v", ErrCycleFailed, cause)
}

func cycleStatus(tally *cycleTally, processed int) marketplace.CycleStatus {
	switch {
	case tally.errorCount == 0:
		return marketplace.CycleStatusSuccess
	case processed > 0:
		return marketplace.CycleStatusPartial
	default:
		return marketplace.CycleStatusFailed
	}
}
