package persistence

import (
	"context"
	"fmt"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInboxRepository implements shared.InboxRepository using GORM
type GormInboxRepository struct {
	db *gorm.DB
}

// NewGormInboxRepository creates a new GormInboxRepository
func NewGormInboxRepository(db *gorm.DB) *GormInboxRepository {
	return &GormInboxRepository{db: db}
}

// Inbound inserts the entry with ON CONFLICT DO NOTHING. Zero affected rows
// means the pair was already recorded.
func (r *GormInboxRepository) Inbound(ctx context.Context, entry shared.InboxEntry) (bool, error) {
	result := DB(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_key"}, {Name: "event_name"}},
			DoNothing: true,
		}).
		Create(models.InboxModelFromDomain(entry))
	if result.Error != nil {
		return false, fmt.Errorf("failed to record inbox entry: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Exists reports whether the pair was recorded
func (r *GormInboxRepository) Exists(ctx context.Context, eventKey, eventName string) (bool, error) {
	var count int64
	err := DB(ctx, r.db).Model(&models.InboxModel{}).
		Where("event_key = ? AND event_name = ?", eventKey, eventName).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check inbox entry: %w", err)
	}
	return count > 0, nil
}

var _ shared.InboxRepository = (*GormInboxRepository)(nil)
