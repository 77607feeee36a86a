package payment

import (
	"context"
	"fmt"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/erp/fulfillment/internal/domain/shared"
)

// methodHandler is the per-method behaviour of the payment flow
type methodHandler struct {
	// validate checks the instrument fields of a ready request
	validate func(cardType, cardNumber *string) (*payment.CardType, *string, error)
	// settle runs inside the saga's deduction savepoint
	settle func(o *Orchestrator, ctx context.Context, p *payment.Payment, ord *order.Order) error
}

var methods = map[payment.Method]methodHandler{
	payment.MethodPoint: {
		validate: validatePointInput,
		settle:   (*Orchestrator).settleWithPoints,
	},
	payment.MethodCard: {
		validate: validateCardInput,
		settle:   (*Orchestrator).requestCardTransaction,
	},
}

func lookupMethod(m payment.Method) (methodHandler, error) {
	h, ok := methods[m]
	if !ok {
		return methodHandler{}, shared.NewInvalidError("INVALID_METHOD", fmt.Sprintf("Unknown payment method %q", m))
	}
	return h, nil
}

func validatePointInput(cardType, cardNumber *string) (*payment.CardType, *string, error) {
	if cardType != nil || cardNumber != nil {
		return nil, nil, shared.NewInvalidError(shared.ErrInvalidCard.Code, "Point payments take no card information")
	}
	return nil, nil, nil
}

func validateCardInput(cardType, cardNumber *string) (*payment.CardType, *string, error) {
	if cardType == nil || cardNumber == nil {
		return nil, nil, shared.NewInvalidError(shared.ErrInvalidCard.Code, "Card payments require card type and number")
	}
	ct := payment.CardType(*cardType)
	if !ct.IsValid() {
		return nil, nil, shared.NewInvalidError(shared.ErrInvalidCard.Code, fmt.Sprintf("Unknown card type %q", *cardType))
	}
	if !payment.ValidCardNumber(*cardNumber) {
		return nil, nil, shared.NewInvalidError(shared.ErrInvalidCard.Code, "Card number must look like xxxx-xxxx-xxxx-xxxx")
	}
	number := *cardNumber
	return &ct, &number, nil
}
