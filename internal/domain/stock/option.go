package stock

import (
	"context"
	"fmt"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Option is a purchasable product option together with its stock row
type Option struct {
	ID            uuid.UUID
	ProductID     uuid.UUID
	Name          string
	Price         decimal.Decimal
	StockQuantity int64
}

// HasEnough reports whether quantity can be taken from the observed stock
func (o *Option) HasEnough(quantity int64) bool {
	return quantity > 0 && o.StockQuantity >= quantity
}

// Deduct takes quantity from stock. It never drives stock negative.
func (o *Option) Deduct(quantity int64) error {
	if quantity <= 0 {
		return shared.NewInvalidError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if o.StockQuantity < quantity {
		return shared.NewUnprocessableError(shared.ErrNotEnough.Code,
			fmt.Sprintf("Option %s has %d in stock, %d wanted", o.ID, o.StockQuantity, quantity))
	}
	o.StockQuantity -= quantity
	return nil
}

// Restore puts quantity back into stock
func (o *Option) Restore(quantity int64) error {
	if quantity <= 0 {
		return shared.NewInvalidError("INVALID_QUANTITY", "Quantity must be positive")
	}
	o.StockQuantity += quantity
	return nil
}

// Repository loads and stores options
type Repository interface {
	// FindByIDs returns the options found, keyed by ID, without locking
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Option, error)
	// FindByIDForUpdate loads one option holding a row lock until commit
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Option, error)
	// UpdateStock persists the stock quantity
	UpdateStock(ctx context.Context, o *Option) error
	// Save inserts or updates an option
	Save(ctx context.Context, o *Option) error
}
