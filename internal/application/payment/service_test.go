package payment

import (
	"context"
	"testing"

	apporder "github.com/erp/fulfillment/internal/application/order"
	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPaymentObserver struct {
	concluded []payment.Status
}

func (r *recordingPaymentObserver) PaymentConcluded(_ context.Context, _ payment.Method, status payment.Status) {
	r.concluded = append(r.concluded, status)
}

func TestService_Ready(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := uuid.New()
	opt := h.option(t, 5, 1000)
	orderID := h.placeOrder(t, userID, []apporder.CartItem{{OptionID: opt.ID, Quantity: 1}})

	resp, err := h.svc.Ready(ctx, &userID, cardRequest(orderID))
	require.NoError(t, err)
	assert.Equal(t, "READY", resp.PaymentStatus)
	assert.NotEqual(t, uuid.Nil, resp.PaymentID)

	p := h.payment(t, orderID)
	assert.Equal(t, payment.MethodCard, p.Method)
	require.NotNil(t, p.CardType)
	assert.Equal(t, payment.CardTypeSamsung, *p.CardType)
	assert.Equal(t, int64(1), h.outboxCount(t, payment.PaymentReadyEventType))
	assert.Empty(t, h.steps(t, orderID))

	_, err = h.svc.Ready(ctx, &userID, pointRequest(orderID))
	require.Error(t, err)
	assert.Equal(t, shared.KindConflict, shared.KindOf(err))
	assert.ErrorIs(t, err, shared.ErrDuplicatePayment)
	assert.Equal(t, int64(1), h.outboxCount(t, payment.PaymentReadyEventType))
}

func TestService_ReadyRejects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := uuid.New()
	opt := h.option(t, 5, 1000)
	orderID := h.placeOrder(t, userID, []apporder.CartItem{{OptionID: opt.ID, Quantity: 1}})
	concluded := h.placeOrder(t, userID, []apporder.CartItem{{OptionID: opt.ID, Quantity: 1}})
	require.NoError(t, h.orderSvc.Cancel(ctx, concluded))

	strPtr := func(s string) *string { return &s }
	stranger := uuid.New()

	tests := []struct {
		name   string
		userID *uuid.UUID
		req    ReadyRequest
		target error
	}{
		{
			name:   "malformed order id",
			userID: &userID,
			req:    ReadyRequest{OrderID: "not-a-uuid", PaymentMethod: "POINT"},
			target: shared.ErrInvalidOrderID,
		},
		{
			name:   "unknown method",
			userID: &userID,
			req:    ReadyRequest{OrderID: orderID.String(), PaymentMethod: "CASH"},
			target: shared.NewInvalidError("INVALID_METHOD", ""),
		},
		{
			name:   "card without number",
			userID: &userID,
			req:    ReadyRequest{OrderID: orderID.String(), PaymentMethod: "CARD", CardType: strPtr("KB")},
			target: shared.ErrInvalidCard,
		},
		{
			name:   "malformed card number",
			userID: &userID,
			req: ReadyRequest{OrderID: orderID.String(), PaymentMethod: "CARD",
				CardType: strPtr("KB"), CardNumber: strPtr("1234567898141451")},
			target: shared.ErrInvalidCard,
		},
		{
			name:   "unknown card type",
			userID: &userID,
			req: ReadyRequest{OrderID: orderID.String(), PaymentMethod: "CARD",
				CardType: strPtr("VISA"), CardNumber: strPtr("1234-5678-9814-1451")},
			target: shared.ErrInvalidCard,
		},
		{
			name:   "point with card information",
			userID: &userID,
			req:    ReadyRequest{OrderID: orderID.String(), PaymentMethod: "POINT", CardType: strPtr("KB")},
			target: shared.ErrInvalidCard,
		},
		{
			name:   "order of another user",
			userID: &stranger,
			req:    pointRequest(orderID),
			target: shared.ErrNotFound,
		},
		{
			name:   "unknown order",
			userID: &userID,
			req:    pointRequest(order.NewOrderID()),
			target: shared.ErrNotFound,
		},
		{
			name:   "concluded order",
			userID: &userID,
			req:    pointRequest(concluded),
			target: shared.ErrNotPayable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Ready(ctx, tt.userID, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
	assert.Equal(t, int64(0), h.outboxCount(t, payment.PaymentReadyEventType))
}

func TestService_PayAndConclude(t *testing.T) {
	ctx := context.Background()
	observer := &recordingPaymentObserver{}
	h := newHarness(t)
	h.svc = NewService(h.payments, h.orders, h.options, h.coupons, h.orderSvc, h.uow, h.svc.logger, WithObserver(observer))
	userID := uuid.New()
	opt := h.option(t, 5, 1000)

	paid := h.placeOrder(t, userID, []apporder.CartItem{{OptionID: opt.ID, Quantity: 1}})
	_, err := h.svc.Ready(ctx, &userID, pointRequest(paid))
	require.NoError(t, err)
	require.NoError(t, h.svc.Pay(ctx, paid))
	assert.Equal(t, payment.StatusPaid, h.payment(t, paid).Status)
	assert.Equal(t, order.StatusComplete, h.order(t, paid).Status)

	err = h.svc.Pay(ctx, paid)
	assert.ErrorIs(t, err, shared.ErrNotPayable, "a completed order is no longer payable")
	err = h.svc.Conclude(ctx, paid, Failed("", "late"))
	assert.ErrorIs(t, err, shared.ErrAlreadyConcluded)

	failed := h.placeOrder(t, userID, []apporder.CartItem{{OptionID: opt.ID, Quantity: 1}})
	_, err = h.svc.Ready(ctx, &userID, cardRequest(failed))
	require.NoError(t, err)
	require.NoError(t, h.svc.Conclude(ctx, failed, Failed("tx-1", "declined")))
	assert.Equal(t, payment.StatusFailed, h.payment(t, failed).Status)
	assert.Equal(t, order.StatusCanceled, h.order(t, failed).Status)
	assert.Equal(t, []payment.Step{payment.StepFailed}, h.steps(t, failed))
	assert.Equal(t, int64(5), h.stock(t, opt.ID), "nothing was deducted, nothing restored")

	assert.Equal(t, []payment.Status{payment.StatusPaid, payment.StatusFailed}, observer.concluded)
}

func TestService_FindPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	userID := uuid.New()
	opt := h.option(t, 10, 1000)

	var ready []order.OrderID
	for i := 0; i < 3; i++ {
		id := h.placeOrder(t, userID, []apporder.CartItem{{OptionID: opt.ID, Quantity: 1}})
		_, err := h.svc.Ready(ctx, &userID, cardRequest(id))
		require.NoError(t, err)
		ready = append(ready, id)
	}
	require.NoError(t, h.svc.Conclude(ctx, ready[1], Paid("tx")))

	pending, err := h.svc.FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ready[0], pending[0].OrderID)
	assert.Equal(t, ready[2], pending[1].OrderID)

	limited, err := h.svc.FindPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
