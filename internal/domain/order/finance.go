package order

import "github.com/shopspring/decimal"

// refundFeeRetentionRate is the share of the marketplace fee that is not
// returned to the seller when an order is refunded.
var refundFeeRetentionRate = decimal.NewFromFloat(0.20)

var hundred = decimal.NewFromInt(100)

// Metrics holds the three financial figures derived for an order. They are
// always produced together and rounded to two decimal places.
type Metrics struct {
	Profit decimal.Decimal
	Margin decimal.Decimal
	ROI    decimal.Decimal
}

// ComputeMetrics derives profit, margin and ROI for an order. It is a pure
// function of the order's stored fields: no I/O, same input same output, so
// recomputation on every sync cycle is safe and idempotent.
//
// The formula branches on the normalized status:
//
//   - canceled: all three metrics are zero.
//   - refunded: profit reverses the non-recoverable costs. The supplier unit
//     cost is intentionally NOT multiplied by quantity here; this mirrors the
//     established refund accounting and must not be changed without product
//     sign-off (refunds are overwhelmingly single-unit).
//   - anything else: standard revenue minus total cost.
//
// Division guards return zero instead of propagating NaN or infinity into
// stored data. Rounding (half away from zero, 2 dp) is applied once at the
// end of each full expression, never at intermediate steps.
func ComputeMetrics(o *Order) Metrics {
	status := o.Status.Normalize()
	qty := decimal.NewFromInt(o.EffectiveQuantity())
	fee := o.FeeOrZero()

	if status.IsCanceled() {
		return Metrics{Profit: decimal.Zero, Margin: decimal.Zero, ROI: decimal.Zero}
	}

	supplierCost := o.SupplierUnitCost.Mul(qty).
		Add(o.SupplierUnitTax.Mul(qty)).
		Add(o.SupplierShippingTotal)

	if status.IsRefunded() {
		refundCost := refundFeeRetentionRate.Mul(fee).
			Add(o.SupplierUnitCost).
			Add(o.SupplierShippingTotal).
			Add(o.CustomerShippingTotal)
		profit := refundCost.Neg()

		margin := decimal.Zero
		if !o.ListPrice.IsZero() {
			margin = profit.Div(o.ListPrice).Mul(hundred)
		}
		roi := decimal.Zero
		if !supplierCost.IsZero() {
			roi = profit.Div(supplierCost).Mul(hundred)
		}
		return Metrics{
			Profit: profit.Round(2),
			Margin: margin.Round(2),
			ROI:    roi.Round(2),
		}
	}

	revenue := o.ListPrice.Sub(fee)
	totalCost := supplierCost.Add(o.CustomerShippingTotal)
	profit := revenue.Sub(totalCost)

	margin := decimal.Zero
	if !revenue.IsZero() {
		margin = profit.Div(revenue).Mul(hundred)
	}
	roi := decimal.Zero
	if !supplierCost.IsZero() {
		roi = profit.Div(supplierCost).Mul(hundred)
	}

	return Metrics{
		Profit: profit.Round(2),
		Margin: margin.Round(2),
		ROI:    roi.Round(2),
	}
}
