package coupon

import (
	"testing"
	"time"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCoupon_Discount(t *testing.T) {
	subtotal := decimal.NewFromInt(10000)

	fixed := &UserCoupon{DiscountType: DiscountFixed, DiscountValue: decimal.NewFromInt(3000)}
	assert.True(t, decimal.NewFromInt(3000).Equal(fixed.Discount(subtotal)))

	rate := &UserCoupon{DiscountType: DiscountRate, DiscountValue: decimal.NewFromInt(15)}
	assert.True(t, decimal.NewFromInt(1500).Equal(rate.Discount(subtotal)))

	big := &UserCoupon{DiscountType: DiscountFixed, DiscountValue: decimal.NewFromInt(20000)}
	assert.True(t, subtotal.Equal(big.Discount(subtotal)))
}

func TestUserCoupon_UseAndRelease(t *testing.T) {
	userID := uuid.New()
	c := &UserCoupon{ID: uuid.New(), UserID: userID, DiscountType: DiscountFixed}

	require.NoError(t, c.CheckUsableBy(userID))
	require.NoError(t, c.Use(time.Now()))
	assert.True(t, c.Used)
	assert.ErrorIs(t, c.Use(time.Now()), shared.ErrCouponUnusable)
	assert.ErrorIs(t, c.CheckUsableBy(userID), shared.ErrCouponUnusable)

	c.Release()
	assert.False(t, c.Used)
	assert.Nil(t, c.UsedAt)

	err := c.CheckUsableBy(uuid.New())
	assert.Equal(t, shared.KindInvalid, shared.KindOf(err))
}
