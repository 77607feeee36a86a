package payment

import (
	"fmt"
	"regexp"
	"time"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a payment
type Status string

const (
	StatusReady    Status = "READY"
	StatusPaid     Status = "PAID"
	StatusFailed   Status = "FAILED"
	StatusCanceled Status = "CANCELED"
)

// IsValid checks if the status is a known Status
func (s Status) IsValid() bool {
	switch s {
	case StatusReady, StatusPaid, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsConcluding reports whether the status is terminal
func (s Status) IsConcluding() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusCanceled
}

// CanTransitionTo checks if the status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	if s != StatusReady {
		return false
	}
	return target.IsConcluding()
}

// Method is the payment instrument
type Method string

const (
	MethodPoint Method = "POINT"
	MethodCard  Method = "CARD"
)

// IsValid checks if the method is known
func (m Method) IsValid() bool {
	return m == MethodPoint || m == MethodCard
}

// CardType is the card issuer accepted by the gateway
type CardType string

const (
	CardTypeSamsung CardType = "SAMSUNG"
	CardTypeKB      CardType = "KB"
	CardTypeHyundai CardType = "HYUNDAI"
)

// IsValid checks if the card type is known
func (c CardType) IsValid() bool {
	switch c {
	case CardTypeSamsung, CardTypeKB, CardTypeHyundai:
		return true
	}
	return false
}

var cardNumberPattern = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{4}$`)

// ValidCardNumber reports whether s has the xxxx-xxxx-xxxx-xxxx form
func ValidCardNumber(s string) bool {
	return cardNumberPattern.MatchString(s)
}

// Payment is the aggregate root for settling one order. There is at most one
// payment per order.
type Payment struct {
	shared.BaseAggregateRoot
	ID         uuid.UUID
	OrderID    order.OrderID
	UserID     uuid.UUID
	Method     Method
	Amount     decimal.Decimal
	CardType   *CardType
	CardNumber *string
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewPayment creates a READY payment for a payable order and raises PaymentReady
func NewPayment(o *order.Order, method Method, cardType *CardType, cardNumber *string) (*Payment, error) {
	if !o.IsPayable() {
		return nil, shared.NewUnprocessableError(shared.ErrNotPayable.Code,
			fmt.Sprintf("Order %s is %s and cannot be paid", o.ID, o.Status))
	}
	if !method.IsValid() {
		return nil, shared.NewInvalidError("INVALID_METHOD", fmt.Sprintf("Unknown payment method %q", method))
	}
	if o.TotalPrice.IsNegative() {
		return nil, shared.NewInvalidError(shared.ErrInvalidAmount.Code, "Payment amount cannot be negative")
	}

	now := time.Now()
	p := &Payment{
		ID:         uuid.New(),
		OrderID:    o.ID,
		UserID:     o.UserID,
		Method:     method,
		Amount:     o.TotalPrice,
		CardType:   cardType,
		CardNumber: cardNumber,
		Status:     StatusReady,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	p.AddDomainEvent(NewPaymentReadyEvent(p))
	return p, nil
}

// IsConcluding reports whether the payment reached a terminal state
func (p *Payment) IsConcluding() bool {
	return p.Status.IsConcluding()
}

// Pay marks the payment PAID; the owning order must still be payable
func (p *Payment) Pay(o *order.Order) error {
	if !o.IsPayable() {
		return shared.NewUnprocessableError(shared.ErrNotPayable.Code,
			fmt.Sprintf("Order %s is %s and cannot be paid", o.ID, o.Status))
	}
	return p.Conclude(StatusPaid, "", "")
}

// Conclude is the only path into a terminal state
func (p *Payment) Conclude(target Status, transactionKey, reason string) error {
	if p.Status.IsConcluding() {
		return shared.NewUnprocessableError(shared.ErrAlreadyConcluded.Code,
			fmt.Sprintf("Payment %s is already %s", p.ID, p.Status))
	}
	if !p.Status.CanTransitionTo(target) {
		return shared.NewInvalidError("INVALID_TRANSITION",
			fmt.Sprintf("Payment cannot move from %s to %s", p.Status, target))
	}
	p.Status = target
	p.UpdatedAt = time.Now()
	p.AddDomainEvent(NewPaymentConcludedEvent(p, transactionKey, reason))
	return nil
}
