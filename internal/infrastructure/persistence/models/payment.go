package models

import (
	"time"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentModel is the persistence model for the Payment aggregate
type PaymentModel struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	OrderID    uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex"`
	UserID     uuid.UUID         `gorm:"type:uuid;not null;index"`
	Method     payment.Method    `gorm:"type:varchar(20);not null"`
	Amount     decimal.Decimal   `gorm:"type:decimal(18,2);not null"`
	CardType   *payment.CardType `gorm:"type:varchar(20)"`
	CardNumber *string           `gorm:"type:varchar(32)"`
	Status     payment.Status    `gorm:"type:varchar(20);not null;index"`
	CreatedAt  time.Time         `gorm:"not null"`
	UpdatedAt  time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *payment.Payment {
	return &payment.Payment{
		ID:         m.ID,
		OrderID:    order.OrderIDFromUUID(m.OrderID),
		UserID:     m.UserID,
		Method:     m.Method,
		Amount:     m.Amount,
		CardType:   m.CardType,
		CardNumber: m.CardNumber,
		Status:     m.Status,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// PaymentModelFromDomain creates a persistence model from a domain Payment
func PaymentModelFromDomain(p *payment.Payment) *PaymentModel {
	return &PaymentModel{
		ID:         p.ID,
		OrderID:    p.OrderID.UUID(),
		UserID:     p.UserID,
		Method:     p.Method,
		Amount:     p.Amount,
		CardType:   p.CardType,
		CardNumber: p.CardNumber,
		Status:     p.Status,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

// PaymentAttemptModel is an append-only gateway interaction record
type PaymentAttemptModel struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey"`
	PaymentID      uuid.UUID    `gorm:"type:uuid;not null;index:idx_attempt_payment_created,priority:1"`
	OrderID        uuid.UUID    `gorm:"type:uuid;not null;index"`
	Step           payment.Step `gorm:"type:varchar(20);not null"`
	TransactionKey *string      `gorm:"type:varchar(64)"`
	FailReason     *string      `gorm:"type:text"`
	CreatedAt      time.Time    `gorm:"not null;index:idx_attempt_payment_created,priority:2"`
}

// TableName returns the table name for GORM
func (PaymentAttemptModel) TableName() string {
	return "payment_attempts"
}

// ToDomain converts the persistence model to a domain Attempt
func (m *PaymentAttemptModel) ToDomain() *payment.Attempt {
	return &payment.Attempt{
		ID:             m.ID,
		PaymentID:      m.PaymentID,
		OrderID:        order.OrderIDFromUUID(m.OrderID),
		Step:           m.Step,
		TransactionKey: m.TransactionKey,
		FailReason:     m.FailReason,
		CreatedAt:      m.CreatedAt,
	}
}

// PaymentAttemptModelFromDomain creates a persistence model from a domain Attempt
func PaymentAttemptModelFromDomain(a *payment.Attempt) *PaymentAttemptModel {
	return &PaymentAttemptModel{
		ID:             a.ID,
		PaymentID:      a.PaymentID,
		OrderID:        a.OrderID.UUID(),
		Step:           a.Step,
		TransactionKey: a.TransactionKey,
		FailReason:     a.FailReason,
		CreatedAt:      a.CreatedAt,
	}
}
