package order

import (
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	AggregateTypeOrder = "Order"

	OrderCreatedEventType   = "OrderCreated"
	OrderCompletedEventType = "OrderCompleted"
	OrderCanceledEventType  = "OrderCanceled"
)

// OrderCreatedEvent is raised when an order is persisted
type OrderCreatedEvent struct {
	shared.BaseDomainEvent
	OrderID    string          `json:"order_id"`
	UserID     uuid.UUID       `json:"user_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// NewOrderCreatedEvent builds the event from an order
func NewOrderCreatedEvent(o *Order) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(OrderCreatedEventType, AggregateTypeOrder, o.ID.String()),
		OrderID:         o.ID.String(),
		UserID:          o.UserID,
		TotalPrice:      o.TotalPrice,
	}
}

// OrderStatusChangedEvent is raised when an order reaches a terminal state
type OrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderID string `json:"order_id"`
	Status  Status `json:"status"`
}

// NewOrderStatusChangedEvent builds a completed or canceled event
func NewOrderStatusChangedEvent(o *Order, eventType string) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeOrder, o.ID.String()),
		OrderID:         o.ID.String(),
		Status:          o.Status,
	}
}
