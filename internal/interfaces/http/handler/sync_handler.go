// Package handler exposes the pipeline's operational HTTP surface: health,
// manual sync triggering, cycle history and tracking queue statistics.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/application/sync"
	"github.com/sellerpulse/backend/internal/domain/marketplace"
	"github.com/sellerpulse/backend/internal/interfaces/http/dto"
)

// CycleRunner is the slice of the sync service the handlers need.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*marketplace.CycleSummary, error)
	History() []marketplace.CycleSummary
	IsRunning() bool
}

// QueueStats exposes tracking queue statistics.
type QueueStats interface {
	Stats() map[string]interface{}
}

// Pinger reports storage liveness.
type Pinger interface {
	Ping() error
}

// SyncHandler handles sync pipeline endpoints
type SyncHandler struct {
	runner CycleRunner
	queue  QueueStats
	db     Pinger
	logger *zap.Logger
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(runner CycleRunner, queue QueueStats, db Pinger, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		runner: runner,
		queue:  queue,
		db:     db,
		logger: logger.Named("http"),
	}
}

// Health handles GET /healthz
func (h *SyncHandler) Health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse("DB_UNAVAILABLE", "database unreachable"))
			return
		}
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{
		"status":       "ok",
		"sync_running": h.runner.IsRunning(),
	}))
}

// TriggerSync handles POST /api/v1/sync/trigger. The cycle runs in the
// background; the response only acknowledges acceptance.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	if h.runner.IsRunning() {
		c.JSON(http.StatusConflict, dto.NewErrorResponse("CYCLE_IN_PROGRESS", "a sync cycle is already running"))
		return
	}

	go func() {
		// Detach from the request context; the cycle outlives the response.
		if _, err := h.runner.RunCycle(context.Background()); err != nil {
			if errors.Is(err, sync.ErrCycleInProgress) {
				return
			}
			h.logger.Error("Manually triggered cycle failed", zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(gin.H{"triggered": true}))
}

// cycleSummaryResponse is the JSON shape of one cycle history entry.
type cycleSummaryResponse struct {
	CycleID          string `json:"cycle_id"`
	Status           string `json:"status"`
	StartedAt        string `json:"started_at"`
	DurationMs       int64  `json:"duration_ms"`
	NewOrders        int    `json:"new_orders"`
	UpdatedOrders    int    `json:"updated_orders"`
	FeeLookups       int    `json:"fee_lookups"`
	TotalValue       string `json:"total_value"`
	TrackingEnqueued int    `json:"tracking_enqueued"`
	ErrorCount       int    `json:"error_count"`
	Error            string `json:"error,omitempty"`
}

// History handles GET /api/v1/sync/history
func (h *SyncHandler) History(c *gin.Context) {
	history := h.runner.History()
	out := make([]cycleSummaryResponse, 0, len(history))
	for _, s := range history {
		out = append(out, cycleSummaryResponse{
			CycleID:          s.CycleID.String(),
			Status:           string(s.Status),
			StartedAt:        s.StartedAt.UTC().Format(time.RFC3339),
			DurationMs:       s.Duration.Milliseconds(),
			NewOrders:        s.NewOrders,
			UpdatedOrders:    s.UpdatedOrders,
			FeeLookups:       s.FeeLookups,
			TotalValue:       s.TotalValue.StringFixed(2),
			TrackingEnqueued: s.TrackingEnqueued,
			ErrorCount:       s.ErrorCount,
			Error:            s.Error,
		})
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(out))
}

// TrackingStats handles GET /api/v1/tracking/stats
func (h *SyncHandler) TrackingStats(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(h.queue.Stats()))
}
