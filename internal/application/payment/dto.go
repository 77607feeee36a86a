package payment

import (
	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReadyRequest represents a request to start paying an order
type ReadyRequest struct {
	OrderID       string  `json:"orderId" binding:"required"`
	PaymentMethod string  `json:"paymentMethod" binding:"required,oneof=POINT CARD"`
	CardType      *string `json:"cardType"`
	CardNumber    *string `json:"cardNumber"`
}

// ReadyResponse is returned once the payment is READY
type ReadyResponse struct {
	PaymentID     uuid.UUID `json:"paymentId"`
	PaymentStatus string    `json:"paymentStatus"`
}

// CallbackRequest is the body the gateway posts when a transaction settles
type CallbackRequest struct {
	TransactionKey string          `json:"transactionKey" binding:"required"`
	OrderID        string          `json:"orderId"`
	CardType       string          `json:"cardType"`
	CardNo         string          `json:"cardNo"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status" binding:"required,oneof=SUCCESS FAILED PENDING"`
	Reason         string          `json:"reason"`
}

// Outcome is how a payment ends
type Outcome struct {
	Status         payment.Status
	TransactionKey string
	Reason         string
}

// Paid is a PAID outcome for the given transaction
func Paid(transactionKey string) Outcome {
	return Outcome{Status: payment.StatusPaid, TransactionKey: transactionKey}
}

// Failed is a FAILED outcome
func Failed(transactionKey, reason string) Outcome {
	return Outcome{Status: payment.StatusFailed, TransactionKey: transactionKey, Reason: reason}
}
