package order

import "context"

// Repository persists orders. All methods take part in the transaction
// carried by ctx, if any.
type Repository interface {
	// Save inserts a new order with its products and coupon references
	Save(ctx context.Context, o *Order) error
	// UpdateStatus persists a status transition
	UpdateStatus(ctx context.Context, o *Order) error
	// FindByID loads an order with its lines
	FindByID(ctx context.Context, id OrderID) (*Order, error)
	// FindByIDForUpdate loads an order holding a row lock until commit
	FindByIDForUpdate(ctx context.Context, id OrderID) (*Order, error)
}
