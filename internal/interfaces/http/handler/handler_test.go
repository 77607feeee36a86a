package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apporder "github.com/erp/fulfillment/internal/application/order"
	apppayment "github.com/erp/fulfillment/internal/application/payment"
	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/interfaces/http/dto"
	"github.com/erp/fulfillment/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Create(ctx context.Context, userID uuid.UUID, req apporder.CreateOrderRequest) (*apporder.CreateOrderResponse, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apporder.CreateOrderResponse), args.Error(1)
}

func (m *MockOrderService) GetOrderDetail(ctx context.Context, id order.OrderID, userID *uuid.UUID) (*apporder.OrderResponse, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apporder.OrderResponse), args.Error(1)
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) Ready(ctx context.Context, userID *uuid.UUID, req apppayment.ReadyRequest) (*apppayment.ReadyResponse, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apppayment.ReadyResponse), args.Error(1)
}

type MockCallbackService struct {
	mock.Mock
}

func (m *MockCallbackService) Handle(ctx context.Context, pathOrderID string, req apppayment.CallbackRequest) (apppayment.CallbackResult, error) {
	args := m.Called(ctx, pathOrderID, req)
	return args.Get(0).(apppayment.CallbackResult), args.Error(1)
}

type testAPI struct {
	router    *gin.Engine
	orders    *MockOrderService
	payments  *MockPaymentService
	callbacks *MockCallbackService
}

func newTestAPI(allowHeader bool) *testAPI {
	api := &testAPI{
		router:    gin.New(),
		orders:    &MockOrderService{},
		payments:  &MockPaymentService{},
		callbacks: &MockCallbackService{},
	}
	base := BaseHandler{AllowHeaderIdentity: allowHeader}
	orderHandler := NewOrderHandler(base, api.orders)
	paymentHandler := NewPaymentHandler(base, api.payments)
	callbackHandler := NewCallbackHandler(api.callbacks)

	api.router.Use(middleware.RequestID())
	v1 := api.router.Group("/api/v1")
	v1.POST("/orders", orderHandler.Create)
	v1.GET("/orders/:orderId", orderHandler.GetByID)
	v1.POST("/payments", paymentHandler.Ready)
	v1.POST("/callback/payments/:orderId", callbackHandler.Handle)
	return api
}

func (a *testAPI) do(method, path, body string, userID *uuid.UUID) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != nil {
		req.Header.Set(UserIDHeader, userID.String())
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestOrderHandler_Create(t *testing.T) {
	api := newTestAPI(true)
	userID := uuid.New()
	optionID := uuid.New()
	orderID := order.NewOrderID()

	api.orders.On("Create", mock.Anything, userID, apporder.CreateOrderRequest{
		Products: []apporder.CartItem{{OptionID: optionID, Quantity: 2}},
	}).Return(&apporder.CreateOrderResponse{
		OrderID:    orderID.String(),
		TotalPrice: decimal.NewFromInt(2000),
		Status:     "CREATED",
	}, nil)

	body := `{"products":[{"optionId":"` + optionID.String() + `","quantity":2}]}`
	w := api.do(http.MethodPost, "/api/v1/orders", body, &userID)

	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, orderID.String(), resp.Data.(map[string]any)["orderId"])
	assert.Equal(t, "2000", resp.Data.(map[string]any)["totalPrice"])
	api.orders.AssertExpectations(t)
}

func TestOrderHandler_Create_Validation(t *testing.T) {
	api := newTestAPI(true)
	userID := uuid.New()

	w := api.do(http.MethodPost, "/api/v1/orders", `{"products":[]}`, &userID)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)
	api.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderHandler_RequiresIdentity(t *testing.T) {
	t.Run("no identity at all", func(t *testing.T) {
		api := newTestAPI(true)
		w := api.do(http.MethodPost, "/api/v1/orders", `{}`, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeUnauthorized, decode(t, w).Error.Code)
	})

	t.Run("header fallback disabled", func(t *testing.T) {
		api := newTestAPI(false)
		userID := uuid.New()
		w := api.do(http.MethodGet, "/api/v1/orders/"+order.NewOrderID().String(), "", &userID)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestOrderHandler_GetByID(t *testing.T) {
	api := newTestAPI(true)
	userID := uuid.New()
	orderID := order.NewOrderID()

	api.orders.On("GetOrderDetail", mock.Anything, orderID, &userID).
		Return(&apporder.OrderResponse{OrderID: orderID.String(), UserID: userID, Status: "CREATED"}, nil)

	w := api.do(http.MethodGet, "/api/v1/orders/"+orderID.String(), "", &userID)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, orderID.String(), decode(t, w).Data.(map[string]any)["orderId"])
}

func TestOrderHandler_GetByID_Errors(t *testing.T) {
	userID := uuid.New()

	t.Run("malformed id", func(t *testing.T) {
		api := newTestAPI(true)
		w := api.do(http.MethodGet, "/api/v1/orders/not-an-id", "", &userID)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, shared.ErrInvalidOrderID.Code, decode(t, w).Error.Code)
	})

	t.Run("not found", func(t *testing.T) {
		api := newTestAPI(true)
		orderID := order.NewOrderID()
		api.orders.On("GetOrderDetail", mock.Anything, orderID, &userID).
			Return(nil, shared.NewNotFoundError("Order not found"))

		w := api.do(http.MethodGet, "/api/v1/orders/"+orderID.String(), "", &userID)
		require.Equal(t, http.StatusNotFound, w.Code)
		resp := decode(t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
		assert.Equal(t, w.Header().Get(middleware.RequestIDHeader), resp.Error.RequestID)
	})
}

func TestPaymentHandler_Ready(t *testing.T) {
	api := newTestAPI(true)
	userID := uuid.New()
	orderID := order.NewOrderID()
	paymentID := uuid.New()

	api.payments.On("Ready", mock.Anything, &userID, apppayment.ReadyRequest{
		OrderID:       orderID.String(),
		PaymentMethod: "POINT",
	}).Return(&apppayment.ReadyResponse{PaymentID: paymentID, PaymentStatus: "READY"}, nil)

	body := `{"orderId":"` + orderID.String() + `","paymentMethod":"POINT"}`
	w := api.do(http.MethodPost, "/api/v1/payments", body, &userID)

	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w).Data.(map[string]any)
	assert.Equal(t, paymentID.String(), data["paymentId"])
	assert.Equal(t, "READY", data["paymentStatus"])
}

func TestPaymentHandler_Ready_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "not payable", err: shared.ErrNotPayable, status: http.StatusUnprocessableEntity, code: "NOT_PAYABLE"},
		{name: "invalid card", err: shared.ErrInvalidCard, status: http.StatusBadRequest, code: "INVALID_CARD"},
		{name: "duplicate", err: shared.ErrDuplicatePayment, status: http.StatusConflict, code: "DUPLICATE_PAYMENT"},
		{name: "infrastructure", err: errors.New("connection reset"), status: http.StatusInternalServerError, code: dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(true)
			userID := uuid.New()
			api.payments.On("Ready", mock.Anything, &userID, mock.Anything).Return(nil, tt.err)

			body := `{"orderId":"` + order.NewOrderID().String() + `","paymentMethod":"CARD"}`
			w := api.do(http.MethodPost, "/api/v1/payments", body, &userID)

			require.Equal(t, tt.status, w.Code)
			resp := decode(t, w)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotContains(t, resp.Error.Message, "connection reset")
		})
	}
}

func TestPaymentHandler_Ready_RejectsUnknownMethod(t *testing.T) {
	api := newTestAPI(true)
	userID := uuid.New()

	w := api.do(http.MethodPost, "/api/v1/payments", `{"orderId":"x","paymentMethod":"CASH"}`, &userID)
	require.Equal(t, http.StatusBadRequest, w.Code)
	api.payments.AssertNotCalled(t, "Ready", mock.Anything, mock.Anything, mock.Anything)
}

func TestCallbackHandler(t *testing.T) {
	orderID := order.NewOrderID().String()
	body := `{"transactionKey":"tx-1","orderId":"` + orderID + `","status":"SUCCESS"}`

	for _, result := range []apppayment.CallbackResult{
		apppayment.CallbackConcluded,
		apppayment.CallbackPending,
		apppayment.CallbackDuplicate,
	} {
		t.Run(string(result), func(t *testing.T) {
			api := newTestAPI(false)
			api.callbacks.On("Handle", mock.Anything, orderID, mock.MatchedBy(func(req apppayment.CallbackRequest) bool {
				return req.TransactionKey == "tx-1" && req.Status == "SUCCESS"
			})).Return(result, nil)

			w := api.do(http.MethodPost, "/api/v1/callback/payments/"+orderID, body, nil)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, string(result), decode(t, w).Data.(map[string]any)["result"])
		})
	}
}

func TestCallbackHandler_Errors(t *testing.T) {
	orderID := order.NewOrderID().String()

	t.Run("missing transaction key", func(t *testing.T) {
		api := newTestAPI(false)
		w := api.do(http.MethodPost, "/api/v1/callback/payments/"+orderID, `{"status":"SUCCESS"}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("mismatched order", func(t *testing.T) {
		api := newTestAPI(false)
		api.callbacks.On("Handle", mock.Anything, orderID, mock.Anything).
			Return(apppayment.CallbackResult(""), shared.NewInvalidError(shared.ErrInvalidOrderID.Code, "mismatch"))

		w := api.do(http.MethodPost, "/api/v1/callback/payments/"+orderID,
			`{"transactionKey":"tx-1","status":"FAILED"}`, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, shared.ErrInvalidOrderID.Code, decode(t, w).Error.Code)
	})
}
