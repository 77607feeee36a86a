package payment

import (
	"context"
	"errors"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the gateway's own status vocabulary. It is not a
// payment Status.
type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "SUCCESS"
	TransactionFailed  TransactionStatus = "FAILED"
	TransactionPending TransactionStatus = "PENDING"
)

// ErrRejected is returned by a Gateway that definitively refused a request.
// No transaction was created, so the request will not settle later.
var ErrRejected = errors.New("payment gateway rejected request")

// Transaction is one gateway-side transaction for an order
type Transaction struct {
	TransactionKey string            `json:"transactionKey"`
	Status         TransactionStatus `json:"status"`
	Reason         string            `json:"reason,omitempty"`
}

// TransactRequest asks the gateway to charge a card
type TransactRequest struct {
	OrderID    order.OrderID
	CardType   CardType
	CardNumber string
	Amount     decimal.Decimal
}

// Gateway is the external settlement provider
type Gateway interface {
	Transact(ctx context.Context, req TransactRequest) (Transaction, error)
	GetTransactions(ctx context.Context, orderID order.OrderID) ([]Transaction, error)
}
