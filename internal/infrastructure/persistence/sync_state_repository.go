package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// syncStateKey is the single row key: one marketplace credential set per
// process means one sync state.
const syncStateKey = "marketplace"

// SyncState persists the sync pipeline's durable cursor so restarts resume
// from the correct point instead of re-ingesting the lookback window.
type SyncState struct {
	Key             string `gorm:"primaryKey;size:64"`
	HighWaterMark   *time.Time
	LastCycleAt     *time.Time
	LastCycleStatus string `gorm:"size:16"`
	UpdatedAt       time.Time
}

// TableName returns the table name for GORM
func (SyncState) TableName() string {
	return "sync_states"
}

// GormSyncStateRepository persists the sync high-water mark using GORM
type GormSyncStateRepository struct {
	db *gorm.DB
}

// NewGormSyncStateRepository creates a new GormSyncStateRepository
func NewGormSyncStateRepository(db *gorm.DB) *GormSyncStateRepository {
	return &GormSyncStateRepository{db: db}
}

// HighWaterMark returns the timestamp of the most recent successfully
// processed order, or nil when no cycle has completed yet.
func (r *GormSyncStateRepository) HighWaterMark(ctx context.Context) (*time.Time, error) {
	var state SyncState
	if err := r.db.WithContext(ctx).
		First(&state, "key = ?", syncStateKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return state.HighWaterMark, nil
}

// SaveCycleOutcome records the cycle outcome and, when highWaterMark is
// non-nil, advances the watermark. A nil mark leaves the stored watermark
// untouched so a failed cycle never loses sync progress.
func (r *GormSyncStateRepository) SaveCycleOutcome(ctx context.Context, highWaterMark *time.Time, status string) error {
	now := time.Now()
	state := SyncState{
		Key:             syncStateKey,
		HighWaterMark:   highWaterMark,
		LastCycleAt:     &now,
		LastCycleStatus: status,
		UpdatedAt:       now,
	}

	updated := []string{"last_cycle_at", "last_cycle_status", "updated_at"}
	if highWaterMark != nil {
		updated = append(updated, "high_water_mark")
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns(updated),
		}).
		Create(&state).Error
}
