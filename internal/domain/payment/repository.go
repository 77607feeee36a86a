package payment

import (
	"context"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/google/uuid"
)

// Repository persists payments and their attempt log. All methods take part
// in the transaction carried by ctx, if any.
type Repository interface {
	// Save inserts a new payment; a second payment for the same order fails
	// with a CONFLICT error
	Save(ctx context.Context, p *Payment) error
	// UpdateStatus persists a status transition
	UpdateStatus(ctx context.Context, p *Payment) error
	// FindByOrderID loads the payment of an order
	FindByOrderID(ctx context.Context, orderID order.OrderID) (*Payment, error)
	// FindByOrderIDForUpdate loads the payment holding a row lock until commit
	FindByOrderIDForUpdate(ctx context.Context, orderID order.OrderID) (*Payment, error)
	// FindByStatus lists payments in the given status, oldest first
	FindByStatus(ctx context.Context, status Status, limit int) ([]*Payment, error)
	// FindAwaitingGateway lists READY card payments with a REQUESTED attempt,
	// oldest first
	FindAwaitingGateway(ctx context.Context, limit int) ([]*Payment, error)
	// AppendAttempt inserts an attempt row
	AppendAttempt(ctx context.Context, a *Attempt) error
	// FindAttempts lists attempts of a payment in creation order
	FindAttempts(ctx context.Context, paymentID uuid.UUID) ([]*Attempt, error)
}
