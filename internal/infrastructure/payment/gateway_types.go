package payment

import (
	"encoding/json"

	"github.com/erp/fulfillment/internal/domain/payment"
)

// Envelope result values
const (
	resultSuccess = "SUCCESS"
	resultFail    = "FAIL"
)

// gatewayResponse is the envelope every gateway endpoint answers with
type gatewayResponse struct {
	Meta gatewayMeta     `json:"meta"`
	Data json.RawMessage `json:"data"`
}

type gatewayMeta struct {
	Result    string `json:"result"`
	ErrorCode string `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

// transactRequest is the POST /api/v1/payments body
type transactRequest struct {
	OrderID     string      `json:"orderId"`
	CardType    string      `json:"cardType"`
	CardNo      string      `json:"cardNo"`
	Amount      json.Number `json:"amount"`
	CallbackURL string      `json:"callbackUrl"`
}

// orderTransactions is the GET /api/v1/payments?orderId= data
type orderTransactions struct {
	OrderID      string                `json:"orderId"`
	Transactions []payment.Transaction `json:"transactions"`
}
