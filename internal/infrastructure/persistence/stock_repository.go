package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/domain/stock"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockRepository implements stock.Repository using GORM
type GormStockRepository struct {
	db *gorm.DB
}

// NewGormStockRepository creates a new GormStockRepository
func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

// FindByIDs returns the options found, keyed by ID
func (r *GormStockRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*stock.Option, error) {
	result := make(map[uuid.UUID]*stock.Option, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []models.OptionModel
	if err := DB(ctx, r.db).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find options: %w", err)
	}
	for i := range rows {
		result[rows[i].ID] = rows[i].ToDomain()
	}
	return result, nil
}

// FindByIDForUpdate loads an option with SELECT ... FOR UPDATE
func (r *GormStockRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*stock.Option, error) {
	var model models.OptionModel
	err := DB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(fmt.Sprintf("Option %s not found", id))
		}
		return nil, fmt.Errorf("failed to lock option: %w", err)
	}
	return model.ToDomain(), nil
}

// UpdateStock persists the stock quantity
func (r *GormStockRepository) UpdateStock(ctx context.Context, o *stock.Option) error {
	result := DB(ctx, r.db).Model(&models.OptionModel{}).
		Where("id = ?", o.ID).
		Updates(map[string]any{"stock_quantity": o.StockQuantity, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to update stock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError(fmt.Sprintf("Option %s not found", o.ID))
	}
	return nil
}

// Save inserts or replaces an option
func (r *GormStockRepository) Save(ctx context.Context, o *stock.Option) error {
	if err := DB(ctx, r.db).Save(models.OptionModelFromDomain(o)).Error; err != nil {
		return fmt.Errorf("failed to save option: %w", err)
	}
	return nil
}

var _ stock.Repository = (*GormStockRepository)(nil)
