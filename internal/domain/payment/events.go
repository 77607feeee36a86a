package payment

import (
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	AggregateTypePayment = "Payment"

	PaymentReadyEventType     = "PaymentReady"
	PaymentConcludedEventType = "PaymentConcluded"
)

// PaymentReadyEvent starts the fulfillment saga for a payment
type PaymentReadyEvent struct {
	shared.BaseDomainEvent
	PaymentID uuid.UUID       `json:"payment_id"`
	OrderID   string          `json:"order_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Method    Method          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
}

// NewPaymentReadyEvent builds the event from a payment
func NewPaymentReadyEvent(p *Payment) *PaymentReadyEvent {
	return &PaymentReadyEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(PaymentReadyEventType, AggregateTypePayment, p.ID.String()),
		PaymentID:       p.ID,
		OrderID:         p.OrderID.String(),
		UserID:          p.UserID,
		Method:          p.Method,
		Amount:          p.Amount,
	}
}

// PaymentConcludedEvent is raised when a payment reaches a terminal state
type PaymentConcludedEvent struct {
	shared.BaseDomainEvent
	PaymentID      uuid.UUID `json:"payment_id"`
	OrderID        string    `json:"order_id"`
	Status         Status    `json:"status"`
	TransactionKey string    `json:"transaction_key,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// NewPaymentConcludedEvent builds the event from a payment
func NewPaymentConcludedEvent(p *Payment, transactionKey, reason string) *PaymentConcludedEvent {
	return &PaymentConcludedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(PaymentConcludedEventType, AggregateTypePayment, p.ID.String()),
		PaymentID:       p.ID,
		OrderID:         p.OrderID.String(),
		Status:          p.Status,
		TransactionKey:  transactionKey,
		Reason:          reason,
	}
}
