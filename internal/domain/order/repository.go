package order

import "context"

// Repository defines the persistence port for orders. Implementations must be
// safe for concurrent use: the sync cycle and the tracking queue both write
// through it, keyed by the immutable ItemID (last writer wins is acceptable
// because both writers converge on the same computed values).
type Repository interface {
	// Upsert creates the order or updates it in place, keyed on ItemID.
	Upsert(ctx context.Context, o *Order) error

	// FindByItemID finds an order by its unique item ID.
	// Returns shared.ErrNotFound when the item has never been observed.
	FindByItemID(ctx context.Context, itemID string) (*Order, error)

	// FindActiveShipments returns orders that carry a tracking number and are
	// not yet in a delivered-family state, for tracking refresh scheduling.
	FindActiveShipments(ctx context.Context) ([]Order, error)
}
