package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Save inserts the order, its lines and coupon references
func (r *GormOrderRepository) Save(ctx context.Context, o *order.Order) error {
	model := models.OrderModelFromDomain(o)
	if err := DB(ctx, r.db).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError(shared.ErrConflict.Code, fmt.Sprintf("Order %s already exists", o.ID))
		}
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// UpdateStatus persists the order status
func (r *GormOrderRepository) UpdateStatus(ctx context.Context, o *order.Order) error {
	result := DB(ctx, r.db).Model(&models.OrderModel{}).
		Where("id = ?", o.ID.UUID()).
		Updates(map[string]any{"status": o.Status, "updated_at": o.UpdatedAt})
	if result.Error != nil {
		return fmt.Errorf("failed to update order status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return orderNotFound(o.ID)
	}
	return nil
}

// FindByID loads an order with its lines and coupon references
func (r *GormOrderRepository) FindByID(ctx context.Context, id order.OrderID) (*order.Order, error) {
	return r.find(ctx, DB(ctx, r.db), id)
}

// FindByIDForUpdate loads an order with SELECT ... FOR UPDATE on the order row
func (r *GormOrderRepository) FindByIDForUpdate(ctx context.Context, id order.OrderID) (*order.Order, error) {
	return r.find(ctx, DB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormOrderRepository) find(_ context.Context, db *gorm.DB, id order.OrderID) (*order.Order, error) {
	var model models.OrderModel
	err := db.
		Preload("Products", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Coupons").
		Where("id = ?", id.UUID()).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orderNotFound(id)
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return model.ToDomain(), nil
}

func orderNotFound(id order.OrderID) error {
	return shared.NewNotFoundError(fmt.Sprintf("Order %s not found", id))
}

var _ order.Repository = (*GormOrderRepository)(nil)
