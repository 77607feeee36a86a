package handler

import (
	"context"

	apporder "github.com/erp/fulfillment/internal/application/order"
	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderService is the part of the order application service the API uses
type OrderService interface {
	Create(ctx context.Context, userID uuid.UUID, req apporder.CreateOrderRequest) (*apporder.CreateOrderResponse, error)
	GetOrderDetail(ctx context.Context, id order.OrderID, userID *uuid.UUID) (*apporder.OrderResponse, error)
}

// OrderHandler handles order endpoints
type OrderHandler struct {
	BaseHandler
	orders OrderService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(base BaseHandler, orders OrderService) *OrderHandler {
	return &OrderHandler{BaseHandler: base, orders: orders}
}

// Create places an order for the caller.
//
//	@Summary		Place an order
//	@Description	Prices the cart and applies coupons. Stock is not touched until the order is paid.
//	@Tags			orders
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		apporder.CreateOrderRequest	true	"Cart"
//	@Success		201		{object}	dto.Response
//	@Failure		400		{object}	dto.Response
//	@Failure		401		{object}	dto.Response
//	@Failure		422		{object}	dto.Response
//	@Router			/orders [post]
func (h *OrderHandler) Create(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	var req apporder.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	resp, err := h.orders.Create(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// GetByID returns one of the caller's orders.
//
//	@Summary	Get an order
//	@Tags		orders
//	@Produce	json
//	@Security	BearerAuth
//	@Param		orderId	path		string	true	"Order ID"
//	@Success	200		{object}	dto.Response
//	@Failure	401		{object}	dto.Response
//	@Failure	404		{object}	dto.Response
//	@Router		/orders/{orderId} [get]
func (h *OrderHandler) GetByID(c *gin.Context) {
	userID, ok := h.requireUser(c)
	if !ok {
		return
	}

	orderID, err := order.ParseOrderID(c.Param("orderId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp, err := h.orders.GetOrderDetail(c.Request.Context(), orderID, &userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
