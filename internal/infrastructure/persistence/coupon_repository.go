package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/fulfillment/internal/domain/coupon"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCouponRepository implements coupon.Repository using GORM
type GormCouponRepository struct {
	db *gorm.DB
}

// NewGormCouponRepository creates a new GormCouponRepository
func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// FindByIDs returns the coupons found, keyed by ID
func (r *GormCouponRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*coupon.UserCoupon, error) {
	result := make(map[uuid.UUID]*coupon.UserCoupon, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []models.UserCouponModel
	if err := DB(ctx, r.db).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find coupons: %w", err)
	}
	for i := range rows {
		result[rows[i].ID] = rows[i].ToDomain()
	}
	return result, nil
}

// FindByIDForUpdate loads a coupon with SELECT ... FOR UPDATE
func (r *GormCouponRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*coupon.UserCoupon, error) {
	var model models.UserCouponModel
	err := DB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(fmt.Sprintf("Coupon %s not found", id))
		}
		return nil, fmt.Errorf("failed to lock coupon: %w", err)
	}
	return model.ToDomain(), nil
}

// Update persists the used flag
func (r *GormCouponRepository) Update(ctx context.Context, c *coupon.UserCoupon) error {
	result := DB(ctx, r.db).Model(&models.UserCouponModel{}).
		Where("id = ?", c.ID).
		Updates(map[string]any{"used": c.Used, "used_at": c.UsedAt, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to update coupon: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError(fmt.Sprintf("Coupon %s not found", c.ID))
	}
	return nil
}

// Save inserts or replaces a coupon
func (r *GormCouponRepository) Save(ctx context.Context, c *coupon.UserCoupon) error {
	if err := DB(ctx, r.db).Save(models.UserCouponModelFromDomain(c)).Error; err != nil {
		return fmt.Errorf("failed to save coupon: %w", err)
	}
	return nil
}

var _ coupon.Repository = (*GormCouponRepository)(nil)
