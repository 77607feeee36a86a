package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/fulfillment/internal/domain/coupon"
	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/erp/fulfillment/internal/domain/point"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/domain/stock"
	"github.com/erp/fulfillment/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Orchestrator settles READY payments. It handles PaymentReady and must be
// wrapped in an inbox guard, which opens the transaction Handle runs in.
//
// Stock, coupons and points are deducted inside a savepoint. A local
// shortfall rolls the savepoint back and fails the payment in the same
// transaction. Card payments call the gateway only after the transaction
// commits.
type Orchestrator struct {
	svc     *Service
	orders  order.Repository
	options stock.Repository
	coupons coupon.Repository
	points  point.Repository
	gateway payment.Gateway
	uow     shared.UnitOfWork
	logger  *zap.Logger
}

// NewOrchestrator creates the PaymentReady handler
func NewOrchestrator(
	svc *Service,
	orders order.Repository,
	options stock.Repository,
	coupons coupon.Repository,
	points point.Repository,
	gateway payment.Gateway,
	uow shared.UnitOfWork,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		svc:     svc,
		orders:  orders,
		options: options,
		coupons: coupons,
		points:  points,
		gateway: gateway,
		uow:     uow,
		logger:  logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (o *Orchestrator) EventTypes() []string {
	return []string{payment.PaymentReadyEventType}
}

// Handle runs the saga for one PaymentReady event
func (o *Orchestrator) Handle(ctx context.Context, event shared.DomainEvent) (err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_saga", "handle",
		telemetry.SpanAttrEventName, event.EventType(),
		telemetry.SpanAttrPaymentID, event.AggregateID(),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("payment_saga"), func(ctx context.Context) {
		err = o.handle(ctx, event)
	})
	return err
}

func (o *Orchestrator) handle(ctx context.Context, event shared.DomainEvent) error {
	evt, ok := event.(*payment.PaymentReadyEvent)
	if !ok {
		return fmt.Errorf("orchestrator: unexpected event %T", event)
	}
	orderID, err := order.ParseOrderID(evt.OrderID)
	if err != nil {
		return err
	}

	p, err := o.svc.payments.FindByOrderIDForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if p.IsConcluding() {
		o.logger.Info("Payment already concluded, saga skipped",
			zap.String("payment_id", p.ID.String()),
			zap.String("status", p.Status.String()),
		)
		return nil
	}
	ord, err := o.orders.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if !ord.IsPayable() {
		return o.fail(ctx, p, ord, fmt.Sprintf("order is %s", ord.Status))
	}

	handler, err := lookupMethod(p.Method)
	if err != nil {
		return err
	}

	err = o.uow.Do(ctx, func(ctx context.Context) error {
		if err := o.deductStock(ctx, ord); err != nil {
			return err
		}
		if err := o.useCoupons(ctx, ord); err != nil {
			return err
		}
		return handler.settle(o, ctx, p, ord)
	})
	if err == nil {
		return nil
	}
	if !isLocalShortfall(err) {
		return err
	}
	return o.fail(ctx, p, ord, err.Error())
}

// fail records a FAILED attempt and concludes the payment FAILED. Nothing was
// deducted, so nothing is restored.
func (o *Orchestrator) fail(ctx context.Context, p *payment.Payment, ord *order.Order, reason string) error {
	o.logger.Warn("Payment failed locally",
		zap.String("payment_id", p.ID.String()),
		zap.String("order_id", ord.ID.String()),
		zap.String("reason", reason),
	)
	if err := o.svc.RecordAsFailed(ctx, p, "", reason); err != nil {
		return err
	}
	return o.svc.conclude(ctx, p, ord, Failed("", reason), false)
}

func (o *Orchestrator) deductStock(ctx context.Context, ord *order.Order) error {
	for _, line := range sortedLines(ord) {
		opt, err := o.options.FindByIDForUpdate(ctx, line.OptionID)
		if err != nil {
			return err
		}
		if err := opt.Deduct(line.Quantity); err != nil {
			return err
		}
		if err := o.options.UpdateStock(ctx, opt); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) useCoupons(ctx context.Context, ord *order.Order) error {
	now := time.Now()
	for _, id := range ord.CouponIDs {
		c, err := o.coupons.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := c.CheckUsableBy(ord.UserID); err != nil {
			return err
		}
		if err := c.Use(now); err != nil {
			return err
		}
		if err := o.coupons.Update(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// settleWithPoints debits the user's points and pays at once
func (o *Orchestrator) settleWithPoints(ctx context.Context, p *payment.Payment, ord *order.Order) error {
	if !p.Amount.IsZero() {
		balance, err := o.points.FindByUserIDForUpdate(ctx, p.UserID)
		if err != nil {
			return err
		}
		if err := balance.Use(p.Amount); err != nil {
			return err
		}
		if err := o.points.Update(ctx, balance); err != nil {
			return err
		}
	}
	return o.svc.pay(ctx, p, ord)
}

// requestCardTransaction logs REQUESTED and schedules the gateway call for
// after commit. The payment stays READY.
func (o *Orchestrator) requestCardTransaction(ctx context.Context, p *payment.Payment, _ *order.Order) error {
	if err := o.svc.RecordAsRequested(ctx, p); err != nil {
		return err
	}
	req := payment.TransactRequest{
		OrderID: p.OrderID,
		Amount:  p.Amount,
	}
	if p.CardType != nil {
		req.CardType = *p.CardType
	}
	if p.CardNumber != nil {
		req.CardNumber = *p.CardNumber
	}
	return o.uow.AfterCommit(ctx, func(ctx context.Context) {
		o.transact(ctx, p, req)
	})
}

// transact calls the gateway and logs RESPONDED. A rejection fails the
// payment at once. On any other error the payment stays READY with REQUESTED
// as its last attempt; reconciliation resolves it.
func (o *Orchestrator) transact(ctx context.Context, p *payment.Payment, req payment.TransactRequest) {
	tx, err := o.gateway.Transact(ctx, req)
	if errors.Is(err, payment.ErrRejected) {
		o.reject(ctx, p, err)
		return
	}
	if err != nil {
		o.logger.Warn("Gateway transaction request failed, deferring to reconciliation",
			zap.String("payment_id", p.ID.String()),
			zap.String("order_id", p.OrderID.String()),
			zap.Error(err),
		)
		return
	}

	err = o.uow.Do(ctx, func(ctx context.Context) error {
		return o.svc.RecordAsResponded(ctx, p, tx.TransactionKey)
	})
	if err != nil {
		o.logger.Error("Failed to record gateway response",
			zap.String("payment_id", p.ID.String()),
			zap.String("transaction_key", tx.TransactionKey),
			zap.Error(err),
		)
		return
	}
	o.logger.Info("Gateway transaction requested",
		zap.String("payment_id", p.ID.String()),
		zap.String("transaction_key", tx.TransactionKey),
		zap.String("status", string(tx.Status)),
	)
}

// reject concludes a payment the gateway refused. The refusal created no
// transaction, so the order's resources are given back.
func (o *Orchestrator) reject(ctx context.Context, p *payment.Payment, cause error) {
	reason := cause.Error()
	err := o.uow.Do(ctx, func(ctx context.Context) error {
		if err := o.svc.RecordAsResponded(ctx, p, ""); err != nil {
			return err
		}
		return o.svc.ConcludeRequested(ctx, p.OrderID, Failed("", reason))
	})
	switch {
	case err == nil:
		o.logger.Warn("Gateway rejected transaction, payment failed",
			zap.String("payment_id", p.ID.String()),
			zap.String("order_id", p.OrderID.String()),
			zap.String("reason", reason),
		)
	case errors.Is(err, shared.ErrAlreadyConcluded):
		o.logger.Info("Gateway rejection for concluded payment ignored",
			zap.String("payment_id", p.ID.String()),
		)
	default:
		o.logger.Error("Failed to conclude rejected payment",
			zap.String("payment_id", p.ID.String()),
			zap.String("order_id", p.OrderID.String()),
			zap.Error(err),
		)
	}
}

// isLocalShortfall reports whether err is a business rule violation on the
// deducted resources, including a missing stock, coupon or point row. Those
// fail the payment instead of being retried.
func isLocalShortfall(err error) bool {
	return shared.KindOf(err) == shared.KindNotFound ||
		errors.Is(err, shared.ErrNotEnough) ||
		errors.Is(err, shared.ErrCouponUnusable) ||
		errors.Is(err, shared.ErrNotPayable)
}

var _ shared.EventHandler = (*Orchestrator)(nil)
