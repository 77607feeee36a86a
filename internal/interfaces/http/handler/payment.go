package handler

import (
	"context"

	apppayment "github.com/erp/fulfillment/internal/application/payment"
	"github.com/erp/fulfillment/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentService starts payments
type PaymentService interface {
	Ready(ctx context.Context, userID *uuid.UUID, req apppayment.ReadyRequest) (*apppayment.ReadyResponse, error)
}

// CallbackService applies gateway callbacks
type CallbackService interface {
	Handle(ctx context.Context, pathOrderID string, req apppayment.CallbackRequest) (apppayment.CallbackResult, error)
}

// PaymentHandler handles payment endpoints
type PaymentHandler struct {
	BaseHandler
	payments PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(base BaseHandler, payments PaymentService) *PaymentHandler {
	return &PaymentHandler{BaseHandler: base, payments: payments}
}

// Ready creates a READY payment for one of the caller's orders. The saga
// continues asynchronously once the request has committed.
//
//	@Summary		Ready a payment
//	@Description	Creates a READY payment. Settlement continues asynchronously after the request commits.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		apppayment.ReadyRequest	true	"Payment"
//	@Success		200		{object}	dto.Response
//	@Failure		400		{object}	dto.Response
//	@Failure		409		{object}	dto.Response
//	@Failure		422		{object}	dto.Response
//	@Router			/payments [post]
func (h *PaymentHandler) Ready(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req apppayment.ReadyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	resp, err := h.payments.Ready(c.Request.Context(), &userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// CallbackResponse reports what a callback did
type CallbackResponse struct {
	OrderID string `json:"orderId"`
	Result  string `json:"result"`
}

// CallbackHandler receives settlement notices from the payment gateway.
// The gateway sends no user token.
type CallbackHandler struct {
	BaseHandler
	callbacks CallbackService
}

// NewCallbackHandler creates a new CallbackHandler
func NewCallbackHandler(callbacks CallbackService) *CallbackHandler {
	return &CallbackHandler{callbacks: callbacks}
}

// Handle applies a callback. Repeats and PENDING notices answer 200.
//
//	@Summary		Gateway settlement callback
//	@Description	Applied only when the gateway confirms the transaction. Repeats and PENDING notices answer 200.
//	@Tags			callbacks
//	@Accept			json
//	@Produce		json
//	@Param			orderId	path		string					true	"Order ID"
//	@Param			request	body		apppayment.CallbackRequest	true	"Callback"
//	@Success		200		{object}	dto.Response
//	@Failure		400		{object}	dto.Response
//	@Failure		409		{object}	dto.Response
//	@Failure		422		{object}	dto.Response
//	@Router			/callback/payments/{orderId} [post]
func (h *CallbackHandler) Handle(c *gin.Context) {
	var req apppayment.CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	orderID := c.Param("orderId")
	result, err := h.callbacks.Handle(c.Request.Context(), orderID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CallbackResponse{OrderID: orderID, Result: string(result)})
}
