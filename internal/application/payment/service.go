// Package payment holds the payment use cases and the fulfillment saga that
// settles a READY payment: resource deduction, method dispatch, gateway
// callbacks and periodic reconciliation.
package payment

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/erp/fulfillment/internal/domain/coupon"
	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/domain/stock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderConcluder moves an order to a terminal state inside the caller's
// transaction
type OrderConcluder interface {
	Complete(ctx context.Context, id order.OrderID) error
	Cancel(ctx context.Context, id order.OrderID) error
}

// Observer is notified of concluded payments
type Observer interface {
	PaymentConcluded(ctx context.Context, method payment.Method, status payment.Status)
}

// Service handles payment use cases
type Service struct {
	payments payment.Repository
	orders   order.Repository
	options  stock.Repository
	coupons  coupon.Repository
	concl    OrderConcluder
	uow      shared.UnitOfWork
	observer Observer
	logger   *zap.Logger
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithObserver reports concluded payments to o
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) {
		s.observer = o
	}
}

// NewService creates a new payment service
func NewService(
	payments payment.Repository,
	orders order.Repository,
	options stock.Repository,
	coupons coupon.Repository,
	concluder OrderConcluder,
	uow shared.UnitOfWork,
	logger *zap.Logger,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		payments: payments,
		orders:   orders,
		options:  options,
		coupons:  coupons,
		concl:    concluder,
		uow:      uow,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready creates a READY payment for a payable order and stages PaymentReady.
// Nothing outside the local database is touched. When userID is set the
// order must belong to that user.
func (s *Service) Ready(ctx context.Context, userID *uuid.UUID, req ReadyRequest) (*ReadyResponse, error) {
	orderID, err := order.ParseOrderID(req.OrderID)
	if err != nil {
		return nil, err
	}
	method := payment.Method(req.PaymentMethod)
	handler, err := lookupMethod(method)
	if err != nil {
		return nil, err
	}
	cardType, cardNumber, err := handler.validate(req.CardType, req.CardNumber)
	if err != nil {
		return nil, err
	}

	var p *payment.Payment
	err = s.uow.Do(ctx, func(ctx context.Context) error {
		o, err := s.orders.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if userID != nil && !o.BelongsTo(*userID) {
			return shared.NewNotFoundError(fmt.Sprintf("Order %s not found", orderID))
		}
		p, err = payment.NewPayment(o, method, cardType, cardNumber)
		if err != nil {
			return err
		}
		if err := s.payments.Save(ctx, p); err != nil {
			return err
		}
		return s.stage(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment ready",
		zap.String("payment_id", p.ID.String()),
		zap.String("order_id", p.OrderID.String()),
		zap.String("method", string(p.Method)),
		zap.String("amount", p.Amount.String()),
	)
	return &ReadyResponse{PaymentID: p.ID, PaymentStatus: p.Status.String()}, nil
}

// Pay moves the payment of an order from READY to PAID and completes the
// order
func (s *Service) Pay(ctx context.Context, orderID order.OrderID) error {
	return s.uow.Do(ctx, func(ctx context.Context) error {
		p, o, err := s.loadForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		return s.pay(ctx, p, o)
	})
}

func (s *Service) pay(ctx context.Context, p *payment.Payment, o *order.Order) error {
	if err := p.Pay(o); err != nil {
		return err
	}
	if err := s.payments.UpdateStatus(ctx, p); err != nil {
		return err
	}
	if err := s.stage(ctx, p); err != nil {
		return err
	}
	if err := s.concl.Complete(ctx, o.ID); err != nil {
		return err
	}
	s.concluded(ctx, p, "", "")
	return nil
}

// RecordAsRequested logs that a gateway transaction is about to be requested
func (s *Service) RecordAsRequested(ctx context.Context, p *payment.Payment) error {
	return s.payments.AppendAttempt(ctx, payment.NewAttempt(p, payment.StepRequested, "", ""))
}

// RecordAsResponded logs the gateway's answer to a transaction request
func (s *Service) RecordAsResponded(ctx context.Context, p *payment.Payment, transactionKey string) error {
	return s.payments.AppendAttempt(ctx, payment.NewAttempt(p, payment.StepResponded, transactionKey, ""))
}

// RecordAsSuccess logs a settled transaction
func (s *Service) RecordAsSuccess(ctx context.Context, p *payment.Payment, transactionKey string) error {
	return s.payments.AppendAttempt(ctx, payment.NewAttempt(p, payment.StepSuccess, transactionKey, ""))
}

// RecordAsFailed logs a failed transaction or a local failure
func (s *Service) RecordAsFailed(ctx context.Context, p *payment.Payment, transactionKey, reason string) error {
	return s.payments.AppendAttempt(ctx, payment.NewAttempt(p, payment.StepFailed, transactionKey, reason))
}

// Conclude ends the payment of an order with a gateway outcome. PAID
// completes the order. FAILED and CANCELED cancel it and give back the stock
// and coupons the saga took. A payment that already concluded yields
// ALREADY_CONCLUDED.
func (s *Service) Conclude(ctx context.Context, orderID order.OrderID, outcome Outcome) error {
	return s.concludeOrder(ctx, orderID, outcome, false)
}

// ConcludeRequested is Conclude for outcomes reported by the gateway. The
// saga must have requested a transaction, and so deducted the order's
// resources, first; otherwise it yields NOT_REQUESTED and nothing changes.
func (s *Service) ConcludeRequested(ctx context.Context, orderID order.OrderID, outcome Outcome) error {
	return s.concludeOrder(ctx, orderID, outcome, true)
}

func (s *Service) concludeOrder(ctx context.Context, orderID order.OrderID, outcome Outcome, requireRequested bool) error {
	return s.uow.Do(ctx, func(ctx context.Context) error {
		p, err := s.payments.FindByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if p.IsConcluding() {
			return shared.NewUnprocessableError(shared.ErrAlreadyConcluded.Code,
				fmt.Sprintf("Payment %s is already %s", p.ID, p.Status))
		}
		held, err := s.resourcesHeld(ctx, p)
		if err != nil {
			return err
		}
		if requireRequested && !held {
			return shared.NewConflictError(shared.ErrNotRequested.Code,
				fmt.Sprintf("Payment %s has no requested gateway transaction", p.ID))
		}
		o, err := s.orders.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		if outcome.Status == payment.StatusPaid {
			err = s.RecordAsSuccess(ctx, p, outcome.TransactionKey)
		} else {
			err = s.RecordAsFailed(ctx, p, outcome.TransactionKey, outcome.Reason)
		}
		if err != nil {
			return err
		}
		return s.conclude(ctx, p, o, outcome, held)
	})
}

// conclude applies outcome to p and o. restore gives back what the saga
// deducted for o.
func (s *Service) conclude(ctx context.Context, p *payment.Payment, o *order.Order, outcome Outcome, restore bool) error {
	if err := p.Conclude(outcome.Status, outcome.TransactionKey, outcome.Reason); err != nil {
		return err
	}
	if err := s.payments.UpdateStatus(ctx, p); err != nil {
		return err
	}
	if err := s.stage(ctx, p); err != nil {
		return err
	}

	if outcome.Status == payment.StatusPaid {
		if err := s.concl.Complete(ctx, o.ID); err != nil {
			return err
		}
	} else {
		if err := s.compensate(ctx, o, restore); err != nil {
			return err
		}
	}
	s.concluded(ctx, p, outcome.TransactionKey, outcome.Reason)
	return nil
}

// compensate cancels o and, when restore is set, puts its stock back and
// releases its coupons
func (s *Service) compensate(ctx context.Context, o *order.Order, restore bool) error {
	if o.IsPayable() {
		if err := s.concl.Cancel(ctx, o.ID); err != nil {
			return err
		}
	} else {
		s.logger.Warn("Order already concluded, not canceling",
			zap.String("order_id", o.ID.String()),
			zap.String("status", o.Status.String()),
		)
	}
	if !restore {
		return nil
	}

	for _, line := range sortedLines(o) {
		opt, err := s.options.FindByIDForUpdate(ctx, line.OptionID)
		if err != nil {
			return err
		}
		if err := opt.Restore(line.Quantity); err != nil {
			return err
		}
		if err := s.options.UpdateStock(ctx, opt); err != nil {
			return err
		}
	}
	for _, id := range o.CouponIDs {
		c, err := s.coupons.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		c.Release()
		if err := s.coupons.Update(ctx, c); err != nil {
			return err
		}
	}
	s.logger.Info("Order resources restored",
		zap.String("order_id", o.ID.String()),
		zap.Int("lines", len(o.Products)),
		zap.Int("coupons", len(o.CouponIDs)),
	)
	return nil
}

// resourcesHeld reports whether the saga committed deductions for p. That
// happens exactly when a gateway transaction was requested.
func (s *Service) resourcesHeld(ctx context.Context, p *payment.Payment) (bool, error) {
	attempts, err := s.payments.FindAttempts(ctx, p.ID)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(attempts, func(a *payment.Attempt) bool {
		return a.Step == payment.StepRequested
	}), nil
}

// FindPending lists READY payments, oldest first
func (s *Service) FindPending(ctx context.Context, limit int) ([]*payment.Payment, error) {
	return s.payments.FindByStatus(ctx, payment.StatusReady, limit)
}

// FindAwaitingGateway lists READY card payments whose gateway transaction
// was requested, oldest first. Only these have an outcome at the gateway.
func (s *Service) FindAwaitingGateway(ctx context.Context, limit int) ([]*payment.Payment, error) {
	return s.payments.FindAwaitingGateway(ctx, limit)
}

func (s *Service) loadForUpdate(ctx context.Context, orderID order.OrderID) (*payment.Payment, *order.Order, error) {
	p, err := s.payments.FindByOrderIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	o, err := s.orders.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return p, o, nil
}

func (s *Service) stage(ctx context.Context, p *payment.Payment) error {
	if err := s.uow.Stage(ctx, p.GetDomainEvents()...); err != nil {
		return err
	}
	p.ClearDomainEvents()
	return nil
}

func (s *Service) concluded(ctx context.Context, p *payment.Payment, transactionKey, reason string) {
	s.logger.Info("Payment concluded",
		zap.String("payment_id", p.ID.String()),
		zap.String("order_id", p.OrderID.String()),
		zap.String("status", p.Status.String()),
		zap.String("transaction_key", transactionKey),
		zap.String("reason", reason),
	)
	if s.observer == nil {
		return
	}
	method, status := p.Method, p.Status
	if err := s.uow.AfterCommit(ctx, func(ctx context.Context) {
		s.observer.PaymentConcluded(ctx, method, status)
	}); err != nil {
		s.logger.Debug("Payment outcome not observed", zap.Error(err))
	}
}

// sortedLines returns the order lines by option id so concurrent sagas lock
// stock rows in the same order
func sortedLines(o *order.Order) []order.Product {
	lines := slices.Clone(o.Products)
	slices.SortFunc(lines, func(a, b order.Product) int {
		return bytes.Compare(a.OptionID[:], b.OptionID[:])
	})
	return lines
}

