// Package order holds the order use cases: placing an order against the
// current catalogue and moving it to a terminal state.
package order

import (
	"context"
	"fmt"

	"github.com/erp/fulfillment/internal/domain/coupon"
	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Observer is notified of placed orders
type Observer interface {
	OrderCreated(ctx context.Context, totalPrice decimal.Decimal)
}

// Service handles order use cases
type Service struct {
	orders   order.Repository
	options  stock.Repository
	coupons  coupon.Repository
	uow      shared.UnitOfWork
	observer Observer
	logger   *zap.Logger
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithObserver reports placed orders to o
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) {
		s.observer = o
	}
}

// NewService creates a new order service
func NewService(
	orders order.Repository,
	options stock.Repository,
	coupons coupon.Repository,
	uow shared.UnitOfWork,
	logger *zap.Logger,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		orders:  orders,
		options: options,
		coupons: coupons,
		uow:     uow,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create places an order. Lines are priced from the current options and
// checked against observed stock, which is not modified here; stock and
// coupons are only consumed once the payment saga runs.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req CreateOrderRequest) (*CreateOrderResponse, error) {
	if len(req.Products) == 0 {
		return nil, shared.NewInvalidError("EMPTY_ORDER", "Order must contain at least one product")
	}

	optionIDs := make([]uuid.UUID, len(req.Products))
	for i, item := range req.Products {
		optionIDs[i] = item.OptionID
	}
	options, err := s.options.FindByIDs(ctx, optionIDs)
	if err != nil {
		return nil, err
	}

	products := make([]order.Product, 0, len(req.Products))
	subtotal := decimal.Zero
	for _, item := range req.Products {
		opt, ok := options[item.OptionID]
		if !ok {
			return nil, shared.NewNotFoundError(fmt.Sprintf("Option %s not found", item.OptionID))
		}
		product, err := order.NewProduct(opt.ID, item.Quantity, opt.Price)
		if err != nil {
			return nil, err
		}
		if !opt.HasEnough(item.Quantity) {
			return nil, shared.NewUnprocessableError(shared.ErrNotEnough.Code,
				fmt.Sprintf("Option %s has %d in stock, %d wanted", opt.ID, opt.StockQuantity, item.Quantity))
		}
		products = append(products, product)
		subtotal = subtotal.Add(product.Amount())
	}

	discount, err := s.discount(ctx, userID, req.UserCouponIDs, subtotal)
	if err != nil {
		return nil, err
	}

	o, err := order.NewOrder(userID, products, req.UserCouponIDs, discount)
	if err != nil {
		return nil, err
	}

	err = s.uow.Do(ctx, func(ctx context.Context) error {
		if err := s.orders.Save(ctx, o); err != nil {
			return err
		}
		return s.uow.Stage(ctx, o.GetDomainEvents()...)
	})
	if err != nil {
		return nil, err
	}
	o.ClearDomainEvents()

	s.logger.Info("Order created",
		zap.String("order_id", o.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("total_price", o.TotalPrice.String()),
		zap.Int("lines", len(o.Products)),
	)
	if s.observer != nil {
		s.observer.OrderCreated(ctx, o.TotalPrice)
	}

	return &CreateOrderResponse{
		OrderID:    o.ID.String(),
		TotalPrice: o.TotalPrice,
		Status:     o.Status.String(),
	}, nil
}

// discount sums what each referenced coupon takes off subtotal, capped at
// subtotal. Coupons must exist, belong to userID and be unused.
func (s *Service) discount(ctx context.Context, userID uuid.UUID, couponIDs []uuid.UUID, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if len(couponIDs) == 0 {
		return decimal.Zero, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(couponIDs))
	for _, id := range couponIDs {
		if _, dup := seen[id]; dup {
			return decimal.Zero, shared.NewInvalidError(shared.ErrCouponUnusable.Code,
				fmt.Sprintf("Coupon %s appears more than once", id))
		}
		seen[id] = struct{}{}
	}

	coupons, err := s.coupons.FindByIDs(ctx, couponIDs)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, id := range couponIDs {
		c, ok := coupons[id]
		if !ok {
			return decimal.Zero, shared.NewNotFoundError(fmt.Sprintf("Coupon %s not found", id))
		}
		if err := c.CheckUsableBy(userID); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(c.Discount(subtotal))
	}
	if total.GreaterThan(subtotal) {
		total = subtotal
	}
	return total, nil
}

// Complete moves an order from CREATED to COMPLETE
func (s *Service) Complete(ctx context.Context, id order.OrderID) error {
	return s.conclude(ctx, id, (*order.Order).Complete)
}

// Cancel moves an order from CREATED to CANCELED
func (s *Service) Cancel(ctx context.Context, id order.OrderID) error {
	return s.conclude(ctx, id, (*order.Order).Cancel)
}

func (s *Service) conclude(ctx context.Context, id order.OrderID, transition func(*order.Order) error) error {
	return s.uow.Do(ctx, func(ctx context.Context) error {
		o, err := s.orders.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := transition(o); err != nil {
			return err
		}
		if err := s.orders.UpdateStatus(ctx, o); err != nil {
			return err
		}
		s.logger.Info("Order concluded",
			zap.String("order_id", o.ID.String()),
			zap.String("status", o.Status.String()),
		)
		return s.uow.Stage(ctx, o.GetDomainEvents()...)
	})
}

// GetOrderDetail loads an order. When userID is set the order must belong to
// that user; an order of someone else is reported as not found.
func (s *Service) GetOrderDetail(ctx context.Context, id order.OrderID, userID *uuid.UUID) (*OrderResponse, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != nil && !o.BelongsTo(*userID) {
		return nil, shared.NewNotFoundError(fmt.Sprintf("Order %s not found", id))
	}
	return ToOrderResponse(o), nil
}
