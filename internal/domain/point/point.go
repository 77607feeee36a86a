package point

import (
	"context"
	"fmt"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Point is a user's point balance
type Point struct {
	UserID  uuid.UUID
	Balance decimal.Decimal
}

// Use debits amount; the balance never goes negative
func (p *Point) Use(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.NewInvalidError(shared.ErrInvalidAmount.Code, "Amount cannot be negative")
	}
	if p.Balance.LessThan(amount) {
		return shared.NewUnprocessableError(shared.ErrNotEnough.Code,
			fmt.Sprintf("Point balance %s is less than %s", p.Balance, amount))
	}
	p.Balance = p.Balance.Sub(amount)
	return nil
}

// Charge credits amount
func (p *Point) Charge(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewInvalidError(shared.ErrInvalidAmount.Code, "Amount must be positive")
	}
	p.Balance = p.Balance.Add(amount)
	return nil
}

// Repository loads and stores point balances
type Repository interface {
	FindByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*Point, error)
	Update(ctx context.Context, p *Point) error
	Save(ctx context.Context, p *Point) error
}
