package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/erp/fulfillment/internal/domain/shared"
	"go.uber.org/zap"
)

// CallbackKeyTTL is how long a handled callback is remembered by the fast path
const CallbackKeyTTL = 24 * time.Hour

// CallbackResult tells the caller what a callback did
type CallbackResult string

const (
	CallbackConcluded CallbackResult = "CONCLUDED"
	CallbackPending   CallbackResult = "PENDING"
	CallbackDuplicate CallbackResult = "DUPLICATE"
)

// CallbackService applies gateway settlement callbacks. Callbacks are
// idempotent: repeats, PENDING notices and callbacks for payments that
// already concluded are successful no-ops.
//
// The callback endpoint is unauthenticated, so a callback only concludes a
// payment once the gateway confirms the transaction with the same status and
// the saga has requested a transaction for the order.
type CallbackService struct {
	svc     *Service
	gateway payment.Gateway
	store   shared.IdempotencyStore
	logger  *zap.Logger
}

// NewCallbackService creates a callback service. store may be nil, in which
// case only the payment status guards against repeats.
func NewCallbackService(svc *Service, gateway payment.Gateway, store shared.IdempotencyStore, logger *zap.Logger) *CallbackService {
	return &CallbackService{
		svc:     svc,
		gateway: gateway,
		store:   store,
		logger:  logger,
	}
}

// Handle applies one callback for the order in the path
func (c *CallbackService) Handle(ctx context.Context, pathOrderID string, req CallbackRequest) (CallbackResult, error) {
	orderID, err := order.ParseOrderID(pathOrderID)
	if err != nil {
		return "", err
	}
	if req.OrderID != "" && req.OrderID != orderID.String() {
		return "", shared.NewInvalidError(shared.ErrInvalidOrderID.Code,
			fmt.Sprintf("Callback order %s does not match path order %s", req.OrderID, orderID))
	}

	status := payment.TransactionStatus(req.Status)
	switch status {
	case payment.TransactionPending:
		c.logger.Debug("Pending callback ignored",
			zap.String("order_id", orderID.String()),
			zap.String("transaction_key", req.TransactionKey),
		)
		return CallbackPending, nil
	case payment.TransactionSuccess, payment.TransactionFailed:
	default:
		return "", shared.NewInvalidError(shared.ErrInvalidInput.Code,
			fmt.Sprintf("Unknown transaction status %q", req.Status))
	}

	key := callbackKey(orderID, req.TransactionKey)
	if c.store != nil {
		fresh, err := c.store.MarkProcessed(ctx, key, CallbackKeyTTL)
		if err != nil {
			c.logger.Warn("Idempotency store unavailable, relying on payment status", zap.Error(err))
		} else if !fresh {
			return CallbackDuplicate, nil
		}
	}

	outcome, err := c.confirm(ctx, orderID, req.TransactionKey, status)
	if err == nil {
		err = c.svc.ConcludeRequested(ctx, orderID, outcome)
	}
	switch {
	case err == nil:
		return CallbackConcluded, nil
	case errors.Is(err, shared.ErrAlreadyConcluded):
		c.logger.Info("Callback for concluded payment ignored",
			zap.String("order_id", orderID.String()),
			zap.String("transaction_key", req.TransactionKey),
		)
		return CallbackDuplicate, nil
	default:
		c.forget(ctx, key)
		return "", err
	}
}

// confirm looks the transaction up at the gateway and returns the outcome it
// reports. The callback's status must agree with the gateway's.
func (c *CallbackService) confirm(ctx context.Context, orderID order.OrderID, transactionKey string, claimed payment.TransactionStatus) (Outcome, error) {
	txs, err := c.gateway.GetTransactions(ctx, orderID)
	if err != nil {
		return Outcome{}, fmt.Errorf("confirm transaction %s: %w", transactionKey, err)
	}
	for _, tx := range txs {
		if tx.TransactionKey != transactionKey {
			continue
		}
		if tx.Status != claimed {
			c.logger.Warn("Callback status disagrees with gateway",
				zap.String("order_id", orderID.String()),
				zap.String("transaction_key", transactionKey),
				zap.String("callback_status", string(claimed)),
				zap.String("gateway_status", string(tx.Status)),
			)
			return Outcome{}, shared.NewUnprocessableError(shared.ErrUnknownTransaction.Code,
				fmt.Sprintf("Transaction %s is %s at the gateway", transactionKey, tx.Status))
		}
		if tx.Status == payment.TransactionSuccess {
			return Paid(tx.TransactionKey), nil
		}
		return Failed(tx.TransactionKey, tx.Reason), nil
	}
	c.logger.Warn("Callback for unknown transaction rejected",
		zap.String("order_id", orderID.String()),
		zap.String("transaction_key", transactionKey),
	)
	return Outcome{}, shared.NewUnprocessableError(shared.ErrUnknownTransaction.Code,
		fmt.Sprintf("Transaction %s is not known to the gateway", transactionKey))
}

func (c *CallbackService) forget(ctx context.Context, key string) {
	if c.store == nil {
		return
	}
	if err := c.store.Forget(ctx, key); err != nil {
		c.logger.Warn("Failed to forget callback key", zap.String("key", key), zap.Error(err))
	}
}

func callbackKey(orderID order.OrderID, transactionKey string) string {
	return "callback:" + orderID.String() + ":" + transactionKey
}
