package models

import (
	"time"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderModel is the persistence model for the Order aggregate
type OrderModel struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID           `gorm:"type:uuid;not null;index"`
	TotalPrice     decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	DiscountAmount decimal.Decimal     `gorm:"type:decimal(18,2);not null;default:0"`
	Status         order.Status        `gorm:"type:varchar(20);not null;index"`
	Products       []OrderProductModel `gorm:"foreignKey:OrderID;references:ID"`
	Coupons        []OrderCouponModel  `gorm:"foreignKey:OrderID;references:ID"`
	CreatedAt      time.Time           `gorm:"not null"`
	UpdatedAt      time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderProductModel is an immutable order line
type OrderProductModel struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	OptionID  uuid.UUID       `gorm:"type:uuid;not null"`
	Quantity  int64           `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(18,2);not null"`
}

// TableName returns the table name for GORM
func (OrderProductModel) TableName() string {
	return "order_products"
}

// OrderCouponModel links an order to a user coupon it applied
type OrderCouponModel struct {
	OrderID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserCouponID uuid.UUID `gorm:"type:uuid;primaryKey"`
}

// TableName returns the table name for GORM
func (OrderCouponModel) TableName() string {
	return "order_coupons"
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *order.Order {
	products := make([]order.Product, len(m.Products))
	for i, p := range m.Products {
		products[i] = order.Product{
			OptionID:  p.OptionID,
			Quantity:  p.Quantity,
			UnitPrice: p.UnitPrice,
		}
	}
	var couponIDs []uuid.UUID
	for _, c := range m.Coupons {
		couponIDs = append(couponIDs, c.UserCouponID)
	}
	return &order.Order{
		ID:             order.OrderIDFromUUID(m.ID),
		UserID:         m.UserID,
		TotalPrice:     m.TotalPrice,
		DiscountAmount: m.DiscountAmount,
		Status:         m.Status,
		Products:       products,
		CouponIDs:      couponIDs,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// OrderModelFromDomain creates a persistence model from a domain Order
func OrderModelFromDomain(o *order.Order) *OrderModel {
	m := &OrderModel{
		ID:             o.ID.UUID(),
		UserID:         o.UserID,
		TotalPrice:     o.TotalPrice,
		DiscountAmount: o.DiscountAmount,
		Status:         o.Status,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	for _, p := range o.Products {
		m.Products = append(m.Products, OrderProductModel{
			OrderID:   m.ID,
			OptionID:  p.OptionID,
			Quantity:  p.Quantity,
			UnitPrice: p.UnitPrice,
		})
	}
	for _, id := range o.CouponIDs {
		m.Coupons = append(m.Coupons, OrderCouponModel{OrderID: m.ID, UserCouponID: id})
	}
	return m
}
