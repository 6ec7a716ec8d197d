// Package notify delivers sync cycle reports to operators, either by
// posting them to a webhook or by writing them to the application log.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/domain/marketplace"
)

// ---------------------------------------------------------------------------
// Log notifier
// ---------------------------------------------------------------------------

// LogNotifier reports cycle outcomes through the structured log only.
// It is the fallback when no webhook is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that writes reports to the log.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

var _ marketplace.Notifier = (*LogNotifier)(nil)

// Report logs a completed cycle summary.
func (n *LogNotifier) Report(ctx context.Context, summary marketplace.CycleSummary) {
	n.logger.Info("sync cycle completed",
		zap.String("cycle_id", summary.CycleID.String()),
		zap.String("status", string(summary.Status)),
		zap.Duration("duration", summary.Duration),
		zap.Int("new_orders", summary.NewOrders),
		zap.Int("updated_orders", summary.UpdatedOrders),
		zap.Int("fee_lookups", summary.FeeLookups),
		zap.String("total_value", summary.TotalValue.StringFixed(2)),
		zap.Int("tracking_enqueued", summary.TrackingEnqueued),
		zap.Int("error_count", summary.ErrorCount),
	)
}

// ReportError logs a cycle-level failure.
func (n *LogNotifier) ReportError(ctx context.Context, err error) {
	n.logger.Error("sync cycle failed", zap.Error(err))
}

// ---------------------------------------------------------------------------
// Webhook notifier
// ---------------------------------------------------------------------------

// WebhookNotifier posts cycle summaries as JSON to a configured endpoint.
// Delivery is best-effort: failures are logged and never surfaced to the
// caller, so a broken webhook cannot fail a sync cycle.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhookNotifier creates a notifier posting to the given webhook URL.
func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("notify"),
	}
}

var _ marketplace.Notifier = (*WebhookNotifier)(nil)

type webhookPayload struct {
	Event            string `json:"event"`
	CycleID          string `json:"cycle_id,omitempty"`
	Status           string `json:"status,omitempty"`
	StartedAt        string `json:"started_at,omitempty"`
	DurationMs       int64  `json:"duration_ms,omitempty"`
	NewOrders        int    `json:"new_orders,omitempty"`
	UpdatedOrders    int    `json:"updated_orders,omitempty"`
	FeeLookups       int    `json:"fee_lookups,omitempty"`
	TotalValue       string `json:"total_value,omitempty"`
	TrackingEnqueued int    `json:"tracking_enqueued,omitempty"`
	ErrorCount       int    `json:"error_count,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Report posts a cycle summary to the webhook.
func (n *WebhookNotifier) Report(ctx context.Context, summary marketplace.CycleSummary) {
	payload := webhookPayload{
		Event:            "sync.cycle.completed",
		CycleID:          summary.CycleID.String(),
		Status:           string(summary.Status),
		StartedAt:        summary.StartedAt.UTC().Format(time.RFC3339),
		DurationMs:       summary.Duration.Milliseconds(),
		NewOrders:        summary.NewOrders,
		UpdatedOrders:    summary.UpdatedOrders,
		FeeLookups:       summary.FeeLookups,
		TotalValue:       summary.TotalValue.StringFixed(2),
		TrackingEnqueued: summary.TrackingEnqueued,
		ErrorCount:       summary.ErrorCount,
		Error:            summary.Error,
	}
	n.post(ctx, payload)
}

// ReportError posts a cycle-level failure to the webhook.
func (n *WebhookNotifier) ReportError(ctx context.Context, err error) {
	n.post(ctx, webhookPayload{
		Event: "sync.cycle.failed",
		Error: err.Error(),
	})
}

func (n *WebhookNotifier) post(ctx context.Context, payload webhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("failed to encode webhook payload", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("failed to build webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			zap.String("event", payload.Event),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		n.logger.Warn("webhook rejected report",
			zap.String("event", payload.Event),
			zap.Error(fmt.Errorf("webhook returned status %d", resp.StatusCode)))
	}
}
