package marketplace

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CycleStatus is the overall outcome of one sync cycle.
type CycleStatus string

const (
	CycleStatusSuccess CycleStatus = "SUCCESS"
	CycleStatusPartial CycleStatus = "PARTIAL"
	CycleStatusFailed  CycleStatus = "FAILED"
)

// String returns the string representation of CycleStatus
func (s CycleStatus) String() string {
	return string(s)
}

// CycleSummary is the human-relevant outcome of one sync cycle, delivered to
// the operations recipient through a Notifier. A partially failed cycle still
// reports its success counts next to the error count; the pipeline never
// fails silently.
type CycleSummary struct {
	// CycleID uniquely identifies this cycle run
	CycleID uuid.UUID
	// Status is the overall cycle outcome
	Status CycleStatus
	// StartedAt is when the cycle began
	StartedAt time.Time
	// Duration is how long the cycle took
	Duration time.Duration
	// NewOrders is the count of orders observed for the first time
	NewOrders int
	// UpdatedOrders is the count of existing orders touched this cycle
	UpdatedOrders int
	// FeeLookups is the count of fee-estimate calls made
	FeeLookups int
	// TotalValue is the summed list value of all touched orders
	TotalValue decimal.Decimal
	// TrackingEnqueued is the count of tracking refresh tasks admitted
	TrackingEnqueued int
	// ErrorCount is the count of recoverable per-order failures
	ErrorCount int
	// Error holds the fatal error message when Status is FAILED
	Error string
}

// Notifier delivers cycle outcomes to a human recipient. Both methods are
// fire-and-forget: a failure to notify must never fail the pipeline, so
// implementations log delivery problems instead of returning them.
type Notifier interface {
	// Report delivers a cycle summary.
	Report(ctx context.Context, summary CycleSummary)

	// ReportError delivers a fatal cycle error.
	ReportError(ctx context.Context, err error)
}
