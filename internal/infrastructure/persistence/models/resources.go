package models

import (
	"time"

	"github.com/erp/fulfillment/internal/domain/coupon"
	"github.com/erp/fulfillment/internal/domain/point"
	"github.com/erp/fulfillment/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OptionModel is a product option and its stock row
type OptionModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ProductID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Name          string          `gorm:"type:varchar(200);not null"`
	Price         decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	StockQuantity int64           `gorm:"not null;check:stock_quantity >= 0"`
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM
func (OptionModel) TableName() string {
	return "product_options"
}

// ToDomain converts the model to a domain Option
func (m *OptionModel) ToDomain() *stock.Option {
	return &stock.Option{
		ID:            m.ID,
		ProductID:     m.ProductID,
		Name:          m.Name,
		Price:         m.Price,
		StockQuantity: m.StockQuantity,
	}
}

// OptionModelFromDomain creates a model from a domain Option
func OptionModelFromDomain(o *stock.Option) *OptionModel {
	return &OptionModel{
		ID:            o.ID,
		ProductID:     o.ProductID,
		Name:          o.Name,
		Price:         o.Price,
		StockQuantity: o.StockQuantity,
	}
}

// UserCouponModel is a coupon issued to a user
type UserCouponModel struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID           `gorm:"type:uuid;not null;index"`
	DiscountType  coupon.DiscountType `gorm:"type:varchar(10);not null"`
	DiscountValue decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	Used          bool                `gorm:"not null;default:false"`
	UsedAt        *time.Time
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM
func (UserCouponModel) TableName() string {
	return "user_coupons"
}

// ToDomain converts the model to a domain UserCoupon
func (m *UserCouponModel) ToDomain() *coupon.UserCoupon {
	return &coupon.UserCoupon{
		ID:            m.ID,
		UserID:        m.UserID,
		DiscountType:  m.DiscountType,
		DiscountValue: m.DiscountValue,
		Used:          m.Used,
		UsedAt:        m.UsedAt,
	}
}

// UserCouponModelFromDomain creates a model from a domain UserCoupon
func UserCouponModelFromDomain(c *coupon.UserCoupon) *UserCouponModel {
	return &UserCouponModel{
		ID:            c.ID,
		UserID:        c.UserID,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
		Used:          c.Used,
		UsedAt:        c.UsedAt,
	}
}

// PointModel is a user's point balance
type PointModel struct {
	UserID    uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Balance   decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (PointModel) TableName() string {
	return "points"
}

// ToDomain converts the model to a domain Point
func (m *PointModel) ToDomain() *point.Point {
	return &point.Point{UserID: m.UserID, Balance: m.Balance}
}

// PointModelFromDomain creates a model from a domain Point
func PointModelFromDomain(p *point.Point) *PointModel {
	return &PointModel{UserID: p.UserID, Balance: p.Balance}
}

// All returns every model, in dependency order, for AutoMigrate in tests
func All() []any {
	return []any{
		&OptionModel{},
		&UserCouponModel{},
		&PointModel{},
		&OrderModel{},
		&OrderProductModel{},
		&OrderCouponModel{},
		&PaymentModel{},
		&PaymentAttemptModel{},
		&InboxModel{},
		&OutboxEntryModel{},
	}
}
