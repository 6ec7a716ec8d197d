package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sellerpulse/backend/internal/domain/order"
	"github.com/sellerpulse/backend/internal/domain/shared"
)

// deliveredFamilyPatterns are the ILIKE patterns matching terminal shipment
// states; kept in sync with order.IsDeliveredFamily.
var deliveredFamilyPatterns = []string{"%delivered%", "%completed%", "%final delivery%"}

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Upsert creates or updates an order keyed on its item ID. Safe for
// concurrent calls from the sync cycle and the tracking queue: writes are
// whole-row and both writers converge on the same computed values.
func (r *GormOrderRepository) Upsert(ctx context.Context, o *order.Order) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}},
			UpdateAll: true,
		}).
		Create(o).Error
}

// FindByItemID finds an order by its unique item ID
func (r *GormOrderRepository) FindByItemID(ctx context.Context, itemID string) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).
		First(&o, "item_id = ?", itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// FindActiveShipments returns orders with a tracking number where neither the
// order status nor the last known tracking status is in the delivered family
func (r *GormOrderRepository) FindActiveShipments(ctx context.Context) ([]order.Order, error) {
	var orders []order.Order
	query := r.db.WithContext(ctx).
		Model(&order.Order{}).
		Where("tracking_number IS NOT NULL AND tracking_number <> ''").
		Where("status NOT IN ?", []string{string(order.StatusCanceled), string(order.StatusRefunded)})

	for _, pattern := range deliveredFamilyPatterns {
		query = query.Where("status NOT ILIKE ?", pattern).
			Where("tracking_status IS NULL OR tracking_status NOT ILIKE ?", pattern)
	}

	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// Ensure GormOrderRepository implements order.Repository
var _ order.Repository = (*GormOrderRepository)(nil)
