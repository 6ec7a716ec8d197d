package order

import "strings"

// Status represents the marketplace-reported status of an order line item.
// Upstream feeds are not consistent about casing or vocabulary, so the
// constants below cover the known values and all comparisons normalize first.
type Status string

const (
	StatusOrdered   Status = "ordered"
	StatusPending   Status = "pending"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCanceled  Status = "canceled"
	StatusRefunded  Status = "refunded"
)

// deliveredFamilyMarkers are substrings that identify a terminal successful
// delivery, regardless of the exact wording the carrier or marketplace uses.
var deliveredFamilyMarkers = []string{"delivered", "completed", "final delivery"}

// Normalize returns the lower-cased, trimmed form used for all comparisons.
func (s Status) Normalize() Status {
	return Status(strings.ToLower(strings.TrimSpace(string(s))))
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsCanceled returns true if the order was canceled.
func (s Status) IsCanceled() bool {
	return s.Normalize() == StatusCanceled
}

// IsRefunded returns true if the order was refunded.
func (s Status) IsRefunded() bool {
	return s.Normalize() == StatusRefunded
}

// IsDeliveredFamily returns true if the status indicates terminal successful
// delivery. Matching is a case-insensitive substring check so that carrier
// variants such as "Delivered to neighbor" or "Final Delivery" are caught.
func IsDeliveredFamily(status string) bool {
	lowered := strings.ToLower(status)
	for _, marker := range deliveredFamilyMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// SuggestsActiveShipment returns true if the status indicates a shipment that
// is in motion and worth tracking. Canceled, refunded and delivered-family
// orders have nothing left to track.
func (s Status) SuggestsActiveShipment() bool {
	n := s.Normalize()
	if n.IsCanceled() || n.IsRefunded() {
		return false
	}
	if IsDeliveredFamily(string(n)) {
		return false
	}
	return n == StatusShipped || n == StatusOrdered || n == StatusPending
}
