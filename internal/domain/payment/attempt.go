package payment

import (
	"time"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/google/uuid"
)

// Step identifies one interaction with the gateway
type Step string

const (
	StepRequested Step = "REQUESTED"
	StepResponded Step = "RESPONDED"
	StepSuccess   Step = "SUCCESS"
	StepFailed    Step = "FAILED"
)

// Attempt is an append-only record of a gateway interaction step.
// Rows are never updated or deleted. IDs are UUIDv7, so they order attempts
// created within the same clock tick.
type Attempt struct {
	ID             uuid.UUID
	PaymentID      uuid.UUID
	OrderID        order.OrderID
	Step           Step
	TransactionKey *string
	FailReason     *string
	CreatedAt      time.Time
}

// NewAttempt creates an attempt row for the given step
func NewAttempt(p *Payment, step Step, transactionKey, failReason string) *Attempt {
	a := &Attempt{
		ID:        uuid.Must(uuid.NewV7()),
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Step:      step,
		CreatedAt: time.Now(),
	}
	if transactionKey != "" {
		a.TransactionKey = &transactionKey
	}
	if failReason != "" {
		a.FailReason = &failReason
	}
	return a
}
