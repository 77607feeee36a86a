package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/fulfillment/internal/domain/point"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPointRepository implements point.Repository using GORM
type GormPointRepository struct {
	db *gorm.DB
}

// NewGormPointRepository creates a new GormPointRepository
func NewGormPointRepository(db *gorm.DB) *GormPointRepository {
	return &GormPointRepository{db: db}
}

// FindByUserIDForUpdate loads the balance with SELECT ... FOR UPDATE
func (r *GormPointRepository) FindByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*point.Point, error) {
	var model models.PointModel
	err := DB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(fmt.Sprintf("Point balance of user %s not found", userID))
		}
		return nil, fmt.Errorf("failed to lock point balance: %w", err)
	}
	return model.ToDomain(), nil
}

// Update persists the balance
func (r *GormPointRepository) Update(ctx context.Context, p *point.Point) error {
	result := DB(ctx, r.db).Model(&models.PointModel{}).
		Where("user_id = ?", p.UserID).
		Updates(map[string]any{"balance": p.Balance, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to update point balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError(fmt.Sprintf("Point balance of user %s not found", p.UserID))
	}
	return nil
}

// Save inserts or replaces a balance
func (r *GormPointRepository) Save(ctx context.Context, p *point.Point) error {
	if err := DB(ctx, r.db).Save(models.PointModelFromDomain(p)).Error; err != nil {
		return fmt.Errorf("failed to save point balance: %w", err)
	}
	return nil
}

var _ point.Repository = (*GormPointRepository)(nil)
