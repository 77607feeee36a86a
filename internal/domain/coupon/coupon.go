package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType selects how a coupon reduces the price
type DiscountType string

const (
	DiscountFixed DiscountType = "FIXED"
	DiscountRate  DiscountType = "RATE"
)

// UserCoupon is a coupon issued to one user
type UserCoupon struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	Used          bool
	UsedAt        *time.Time
}

// CheckUsableBy returns an error if userID cannot apply the coupon
func (c *UserCoupon) CheckUsableBy(userID uuid.UUID) error {
	if c.UserID != userID {
		return shared.NewInvalidError(shared.ErrCouponUnusable.Code,
			fmt.Sprintf("Coupon %s does not belong to the user", c.ID))
	}
	if c.Used {
		return shared.NewUnprocessableError(shared.ErrCouponUnusable.Code,
			fmt.Sprintf("Coupon %s has already been used", c.ID))
	}
	return nil
}

// Discount returns the amount this coupon takes off subtotal, capped at subtotal
func (c *UserCoupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.DiscountType {
	case DiscountFixed:
		d = c.DiscountValue
	case DiscountRate:
		d = subtotal.Mul(c.DiscountValue).Div(decimal.NewFromInt(100)).Floor()
	}
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Use consumes the coupon
func (c *UserCoupon) Use(now time.Time) error {
	if c.Used {
		return shared.NewUnprocessableError(shared.ErrCouponUnusable.Code,
			fmt.Sprintf("Coupon %s has already been used", c.ID))
	}
	c.Used = true
	c.UsedAt = &now
	return nil
}

// Release makes a consumed coupon usable again
func (c *UserCoupon) Release() {
	c.Used = false
	c.UsedAt = nil
}

// Repository loads and stores user coupons
type Repository interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*UserCoupon, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*UserCoupon, error)
	Update(ctx context.Context, c *UserCoupon) error
	Save(ctx context.Context, c *UserCoupon) error
}
