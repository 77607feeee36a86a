package order

import (
	"time"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is one requested line of a new order
type CartItem struct {
	OptionID uuid.UUID `json:"optionId" binding:"required"`
	Quantity int64     `json:"quantity" binding:"required,gt=0"`
}

// CreateOrderRequest represents a request to place an order
type CreateOrderRequest struct {
	Products      []CartItem  `json:"products" binding:"required,min=1,dive"`
	UserCouponIDs []uuid.UUID `json:"userCouponIds"`
}

// CreateOrderResponse is returned after an order is placed
type CreateOrderResponse struct {
	OrderID    string          `json:"orderId"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Status     string          `json:"status"`
}

// OrderProductResponse is one order line
type OrderProductResponse struct {
	OptionID  uuid.UUID       `json:"optionId"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Amount    decimal.Decimal `json:"amount"`
}

// OrderResponse is the full order detail
type OrderResponse struct {
	OrderID        string                 `json:"orderId"`
	UserID         uuid.UUID              `json:"userId"`
	TotalPrice     decimal.Decimal        `json:"totalPrice"`
	DiscountAmount decimal.Decimal        `json:"discountAmount"`
	Status         string                 `json:"status"`
	Products       []OrderProductResponse `json:"products"`
	CouponIDs      []uuid.UUID            `json:"userCouponIds"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// ToOrderResponse converts the aggregate into its response form
func ToOrderResponse(o *order.Order) *OrderResponse {
	products := make([]OrderProductResponse, len(o.Products))
	for i, p := range o.Products {
		products[i] = OrderProductResponse{
			OptionID:  p.OptionID,
			Quantity:  p.Quantity,
			UnitPrice: p.UnitPrice,
			Amount:    p.Amount(),
		}
	}
	couponIDs := o.CouponIDs
	if couponIDs == nil {
		couponIDs = []uuid.UUID{}
	}
	return &OrderResponse{
		OrderID:        o.ID.String(),
		UserID:         o.UserID,
		TotalPrice:     o.TotalPrice,
		DiscountAmount: o.DiscountAmount,
		Status:         o.Status.String(),
		Products:       products,
		CouponIDs:      couponIDs,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}
