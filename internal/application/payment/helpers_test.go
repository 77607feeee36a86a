package payment

import (
	"context"
	"errors"
	"testing"

	apporder "github.com/erp/fulfillment/internal/application/order"
	"github.com/erp/fulfillment/internal/domain/coupon"
	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/erp/fulfillment/internal/domain/point"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/domain/stock"
	"github.com/erp/fulfillment/internal/infrastructure/event"
	"github.com/erp/fulfillment/internal/infrastructure/persistence"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/models"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/testdb"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MockGateway is a mock implementation of payment.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Transact(ctx context.Context, req payment.TransactRequest) (payment.Transaction, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payment.Transaction), args.Error(1)
}

func (m *MockGateway) GetTransactions(ctx context.Context, orderID order.OrderID) ([]payment.Transaction, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.Transaction), args.Error(1)
}

type harness struct {
	db         *gorm.DB
	serializer *event.EventSerializer
	uow        *persistence.GormUnitOfWork
	gateway    *MockGateway

	orders   *persistence.GormOrderRepository
	payments *persistence.GormPaymentRepository
	options  *persistence.GormStockRepository
	coupons  *persistence.GormCouponRepository
	points   *persistence.GormPointRepository
	inbox    *persistence.GormInboxRepository

	orderSvc *apporder.Service
	svc      *Service
	orch     *Orchestrator
	guard    *event.InboxGuard
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testdb.NewSQLite(t)
	serializer := event.NewFulfillmentSerializer()
	h := &harness{
		db:         db,
		serializer: serializer,
		uow:        persistence.NewUnitOfWork(db, event.NewOutboxPublisher(serializer, 5), zap.NewNop()),
		gateway:    &MockGateway{},
		orders:     persistence.NewGormOrderRepository(db),
		payments:   persistence.NewGormPaymentRepository(db),
		options:    persistence.NewGormStockRepository(db),
		coupons:    persistence.NewGormCouponRepository(db),
		points:     persistence.NewGormPointRepository(db),
		inbox:      persistence.NewGormInboxRepository(db),
	}
	h.orderSvc = apporder.NewService(h.orders, h.options, h.coupons, h.uow, zap.NewNop())
	h.svc = NewService(h.payments, h.orders, h.options, h.coupons, h.orderSvc, h.uow, zap.NewNop())
	h.orch = NewOrchestrator(h.svc, h.orders, h.options, h.coupons, h.points, h.gateway, h.uow, zap.NewNop())
	h.guard = event.NewInboxGuard(h.orch, h.uow, h.inbox, serializer, zap.NewNop())
	return h
}

func (h *harness) option(t *testing.T, qty, price int64) *stock.Option {
	t.Helper()
	opt := &stock.Option{
		ID:            uuid.New(),
		ProductID:     uuid.New(),
		Name:          "option",
		Price:         decimal.NewFromInt(price),
		StockQuantity: qty,
	}
	require.NoError(t, h.options.Save(context.Background(), opt))
	return opt
}

func (h *harness) coupon(t *testing.T, userID uuid.UUID, value int64) *coupon.UserCoupon {
	t.Helper()
	c := &coupon.UserCoupon{
		ID:            uuid.New(),
		UserID:        userID,
		DiscountType:  coupon.DiscountFixed,
		DiscountValue: decimal.NewFromInt(value),
	}
	require.NoError(t, h.coupons.Save(context.Background(), c))
	return c
}

func (h *harness) balance(t *testing.T, userID uuid.UUID, amount int64) {
	t.Helper()
	require.NoError(t, h.points.Save(context.Background(), &point.Point{
		UserID:  userID,
		Balance: decimal.NewFromInt(amount),
	}))
}

func (h *harness) placeOrder(t *testing.T, userID uuid.UUID, items []apporder.CartItem, couponIDs ...uuid.UUID) order.OrderID {
	t.Helper()
	resp, err := h.orderSvc.Create(context.Background(), userID, apporder.CreateOrderRequest{
		Products:      items,
		UserCouponIDs: couponIDs,
	})
	require.NoError(t, err)
	id, err := order.ParseOrderID(resp.OrderID)
	require.NoError(t, err)
	return id
}

func cardRequest(orderID order.OrderID) ReadyRequest {
	cardType, cardNumber := "SAMSUNG", "1234-5678-9814-1451"
	return ReadyRequest{
		OrderID:       orderID.String(),
		PaymentMethod: "CARD",
		CardType:      &cardType,
		CardNumber:    &cardNumber,
	}
}

func pointRequest(orderID order.OrderID) ReadyRequest {
	return ReadyRequest{OrderID: orderID.String(), PaymentMethod: "POINT"}
}

// readyEvent reads back the PaymentReady event the outbox holds for orderID
func (h *harness) readyEvent(t *testing.T, orderID order.OrderID) shared.DomainEvent {
	t.Helper()
	p, err := h.payments.FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)

	var row models.OutboxEntryModel
	require.NoError(t, h.db.
		Where("event_name = ? AND aggregate_id = ?", payment.PaymentReadyEventType, p.ID.String()).
		First(&row).Error)
	evt, err := h.serializer.Deserialize(row.EventName, row.Payload)
	require.NoError(t, err)
	return evt
}

func (h *harness) payment(t *testing.T, orderID order.OrderID) *payment.Payment {
	t.Helper()
	p, err := h.payments.FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return p
}

func (h *harness) order(t *testing.T, orderID order.OrderID) *order.Order {
	t.Helper()
	o, err := h.orders.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	return o
}

func (h *harness) stock(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	opts, err := h.options.FindByIDs(context.Background(), []uuid.UUID{id})
	require.NoError(t, err)
	return opts[id].StockQuantity
}

func (h *harness) couponUsed(t *testing.T, id uuid.UUID) bool {
	t.Helper()
	cs, err := h.coupons.FindByIDs(context.Background(), []uuid.UUID{id})
	require.NoError(t, err)
	return cs[id].Used
}

func (h *harness) steps(t *testing.T, orderID order.OrderID) []payment.Step {
	t.Helper()
	attempts, err := h.payments.FindAttempts(context.Background(), h.payment(t, orderID).ID)
	require.NoError(t, err)
	steps := make([]payment.Step, len(attempts))
	for i, a := range attempts {
		steps[i] = a.Step
	}
	return steps
}

func (h *harness) outboxCount(t *testing.T, eventName string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.OutboxEntryModel{}).Where("event_name = ?", eventName).Count(&n).Error)
	return n
}

// requestTransaction runs the saga for orderID with the gateway answering
// PENDING under transactionKey
func (h *harness) requestTransaction(t *testing.T, orderID order.OrderID, transactionKey string) {
	t.Helper()
	h.gateway.On("Transact", mock.Anything, forOrder(orderID)).
		Return(payment.Transaction{TransactionKey: transactionKey, Status: payment.TransactionPending}, nil).Once()
	require.NoError(t, h.guard.Handle(context.Background(), h.readyEvent(t, orderID)))
}

// requestLost runs the saga for orderID with the gateway call failing, which
// leaves the payment READY with only a REQUESTED attempt
func (h *harness) requestLost(t *testing.T, orderID order.OrderID) {
	t.Helper()
	h.gateway.On("Transact", mock.Anything, forOrder(orderID)).
		Return(payment.Transaction{}, errors.New("read timeout")).Once()
	require.NoError(t, h.guard.Handle(context.Background(), h.readyEvent(t, orderID)))
}
