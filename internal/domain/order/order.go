package order

import (
	"fmt"
	"time"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of an order
type Status string

const (
	StatusCreated  Status = "CREATED"
	StatusComplete Status = "COMPLETE"
	StatusExpired  Status = "EXPIRED"
	StatusCanceled Status = "CANCELED"
)

// IsValid checks if the status is a known Status
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusComplete, StatusExpired, StatusCanceled:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusExpired || s == StatusCanceled
}

// IsPayable reports whether a payment may be readied or settled for the order
func (s Status) IsPayable() bool {
	return s == StatusCreated
}

// CanTransitionTo checks if the status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	if s != StatusCreated {
		return false
	}
	return target == StatusComplete || target == StatusExpired || target == StatusCanceled
}

// Product is an immutable order line snapshot
type Product struct {
	OptionID  uuid.UUID
	Quantity  int64
	UnitPrice decimal.Decimal
}

// NewProduct validates and creates an order line
func NewProduct(optionID uuid.UUID, quantity int64, unitPrice decimal.Decimal) (Product, error) {
	if optionID == uuid.Nil {
		return Product{}, shared.NewInvalidError("INVALID_OPTION", "Option ID cannot be empty")
	}
	if quantity <= 0 {
		return Product{}, shared.NewInvalidError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return Product{}, shared.NewInvalidError("INVALID_PRICE", "Unit price cannot be negative")
	}
	return Product{OptionID: optionID, Quantity: quantity, UnitPrice: unitPrice}, nil
}

// Amount returns quantity * unit price
func (p Product) Amount() decimal.Decimal {
	return p.UnitPrice.Mul(decimal.NewFromInt(p.Quantity))
}

// Order is the aggregate root for a customer order. Prices are fixed when the
// order is created; resources are only validated, never reserved, at that point.
type Order struct {
	shared.BaseAggregateRoot
	ID             OrderID
	UserID         uuid.UUID
	TotalPrice     decimal.Decimal
	DiscountAmount decimal.Decimal
	Status         Status
	Products       []Product
	CouponIDs      []uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOrder creates an order in CREATED state and raises OrderCreated
func NewOrder(userID uuid.UUID, products []Product, couponIDs []uuid.UUID, discount decimal.Decimal) (*Order, error) {
	if userID == uuid.Nil {
		return nil, shared.NewInvalidError("INVALID_USER", "User ID cannot be empty")
	}
	if len(products) == 0 {
		return nil, shared.NewInvalidError("EMPTY_ORDER", "Order must contain at least one product")
	}
	if discount.IsNegative() {
		return nil, shared.NewInvalidError(shared.ErrInvalidAmount.Code, "Discount cannot be negative")
	}

	seen := make(map[uuid.UUID]struct{}, len(products))
	subtotal := decimal.Zero
	for _, p := range products {
		if _, dup := seen[p.OptionID]; dup {
			return nil, shared.NewInvalidError("DUPLICATE_OPTION", fmt.Sprintf("Option %s appears more than once", p.OptionID))
		}
		seen[p.OptionID] = struct{}{}
		subtotal = subtotal.Add(p.Amount())
	}
	if discount.GreaterThan(subtotal) {
		return nil, shared.NewInvalidError(shared.ErrInvalidAmount.Code, "Discount exceeds order subtotal")
	}

	now := time.Now()
	o := &Order{
		ID:             NewOrderID(),
		UserID:         userID,
		TotalPrice:     subtotal.Sub(discount),
		DiscountAmount: discount,
		Status:         StatusCreated,
		Products:       append([]Product(nil), products...),
		CouponIDs:      append([]uuid.UUID(nil), couponIDs...),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	o.AddDomainEvent(NewOrderCreatedEvent(o))
	return o, nil
}

// IsPayable reports whether the order accepts payment
func (o *Order) IsPayable() bool {
	return o.Status.IsPayable()
}

// BelongsTo reports whether the order was placed by userID
func (o *Order) BelongsTo(userID uuid.UUID) bool {
	return o.UserID == userID
}

// Complete transitions CREATED -> COMPLETE
func (o *Order) Complete() error {
	if err := o.transition(StatusComplete); err != nil {
		return err
	}
	o.AddDomainEvent(NewOrderStatusChangedEvent(o, OrderCompletedEventType))
	return nil
}

// Cancel transitions CREATED -> CANCELED
func (o *Order) Cancel() error {
	if err := o.transition(StatusCanceled); err != nil {
		return err
	}
	o.AddDomainEvent(NewOrderStatusChangedEvent(o, OrderCanceledEventType))
	return nil
}

func (o *Order) transition(target Status) error {
	if !o.Status.CanTransitionTo(target) {
		return shared.NewUnprocessableError(shared.ErrConcluding.Code,
			fmt.Sprintf("Order %s is already %s", o.ID, o.Status))
	}
	o.Status = target
	o.UpdatedAt = time.Now()
	return nil
}
