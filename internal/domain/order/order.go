package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sellerpulse/backend/internal/domain/shared"
)

// Order represents one marketplace order line item together with the supplier
// costs entered against it and the financial metrics derived from both.
//
// ItemID is the marketplace's unique line-item identifier and is immutable
// once the order has been observed. Supplier* fields are entered outside this
// pipeline and are preserved across syncs; everything else is refreshed from
// the marketplace feed.
type Order struct {
	ItemID       string `gorm:"primaryKey;size:64"`
	OrderID      string `gorm:"size:64;index"`
	ASIN         string `gorm:"size:16;index"`
	SKU          string `gorm:"size:64"`
	PurchaseDate time.Time
	Status       Status `gorm:"size:32"`

	ListPrice      decimal.Decimal     `gorm:"type:numeric(12,2)"`
	MarketplaceFee decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	QuantitySold   int

	SupplierUnitCost      decimal.Decimal `gorm:"type:numeric(12,2)"`
	SupplierUnitTax       decimal.Decimal `gorm:"type:numeric(12,2)"`
	SupplierShippingTotal decimal.Decimal `gorm:"type:numeric(12,2)"`
	CustomerShippingTotal decimal.Decimal `gorm:"type:numeric(12,2)"`

	Profit decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	Margin decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	ROI    decimal.NullDecimal `gorm:"type:numeric(12,2)"`

	TrackingNumber    *string `gorm:"size:64"`
	TrackingStatus    *string `gorm:"size:128"`
	LastTrackingCheck *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// NewOrder creates a new order line item from its first marketplace
// observation. QuantitySold defaults to 1 when the feed omits it.
func NewOrder(itemID, orderID, asin, sku string, purchaseDate time.Time, status Status, listPrice decimal.Decimal, quantitySold int) (*Order, error) {
	if itemID == "" {
		return nil, shared.NewDomainError("INVALID_ITEM_ID", "Item ID cannot be empty")
	}
	if listPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "List price cannot be negative")
	}
	if quantitySold <= 0 {
		quantitySold = 1
	}

	now := time.Now()
	return &Order{
		ItemID:       itemID,
		OrderID:      orderID,
		ASIN:         asin,
		SKU:          sku,
		PurchaseDate: purchaseDate,
		Status:       status.Normalize(),
		ListPrice:    listPrice,
		QuantitySold: quantitySold,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// EffectiveQuantity returns the quantity used in financial formulas,
// defaulting to 1 when the stored value is absent or zero.
func (o *Order) EffectiveQuantity() int64 {
	if o.QuantitySold <= 0 {
		return 1
	}
	return int64(o.QuantitySold)
}

// FeeOrZero returns the marketplace fee, or zero when no estimate has been
// recorded yet. A zero fee overstates profit, which downstream reporting
// surfaces as an anomaly instead of silently understating revenue risk.
func (o *Order) FeeOrZero() decimal.Decimal {
	if o.MarketplaceFee.Valid {
		return o.MarketplaceFee.Decimal
	}
	return decimal.Zero
}

// SetMarketplaceFee records a fee estimate for this item.
func (o *Order) SetMarketplaceFee(fee decimal.Decimal) {
	o.MarketplaceFee = decimal.NullDecimal{Decimal: fee, Valid: true}
	o.UpdatedAt = time.Now()
}

// NeedsFeeEstimate returns true when the item has no recorded fee or its list
// price changed against the previously observed one, so the stored estimate
// no longer applies.
func (o *Order) NeedsFeeEstimate(observedPrice decimal.Decimal) bool {
	if !o.MarketplaceFee.Valid {
		return true
	}
	return !o.ListPrice.Equal(observedPrice)
}

// ApplyObservation refreshes the marketplace-owned fields from a sync cycle
// observation. Supplier cost fields and the computed metrics are untouched;
// metrics are recomputed by the caller after fees are settled.
func (o *Order) ApplyObservation(status Status, listPrice decimal.Decimal, quantitySold int, trackingNumber string) {
	o.Status = status.Normalize()
	o.ListPrice = listPrice
	if quantitySold > 0 {
		o.QuantitySold = quantitySold
	}
	if trackingNumber != "" {
		o.TrackingNumber = &trackingNumber
	}
	o.UpdatedAt = time.Now()
}

// ApplyMetrics records a freshly computed set of financial metrics. The three
// values are always written together so they can never be partially stale.
func (o *Order) ApplyMetrics(m Metrics) {
	o.Profit = decimal.NullDecimal{Decimal: m.Profit, Valid: true}
	o.Margin = decimal.NullDecimal{Decimal: m.Margin, Valid: true}
	o.ROI = decimal.NullDecimal{Decimal: m.ROI, Valid: true}
	o.UpdatedAt = time.Now()
}

// ApplyTrackingStatus records the latest shipment status observation.
func (o *Order) ApplyTrackingStatus(status string, checkedAt time.Time) {
	o.TrackingStatus = &status
	o.LastTrackingCheck = &checkedAt
	o.UpdatedAt = time.Now()
}

// HasActiveShipment returns true if this order should be considered for
// tracking refresh: it carries a tracking number and neither the order status
// nor the last known tracking status is terminal.
func (o *Order) HasActiveShipment() bool {
	if o.TrackingNumber == nil || *o.TrackingNumber == "" {
		return false
	}
	if o.TrackingStatus != nil && IsDeliveredFamily(*o.TrackingStatus) {
		return false
	}
	return o.Status.SuggestsActiveShipment()
}
