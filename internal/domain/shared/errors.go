package shared

import "errors"

// ErrorKind classifies a domain error independently of its code
type ErrorKind string

const (
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindUnprocessable ErrorKind = "UNPROCESSABLE"
	KindInvalid       ErrorKind = "INVALID"
	KindConflict      ErrorKind = "CONFLICT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError creates a NOT_FOUND error
func NewNotFoundError(message string) *DomainError {
	return NewDomainError(KindNotFound, "NOT_FOUND", message)
}

// NewInvalidError creates an INVALID error with the given code
func NewInvalidError(code, message string) *DomainError {
	return NewDomainError(KindInvalid, code, message)
}

// NewUnprocessableError creates an UNPROCESSABLE error with the given code
func NewUnprocessableError(code, message string) *DomainError {
	return NewDomainError(KindUnprocessable, code, message)
}

// NewConflictError creates a CONFLICT error with the given code
func NewConflictError(code, message string) *DomainError {
	return NewDomainError(KindConflict, code, message)
}

// KindOf returns the kind of err, or "" if err is not a domain error
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsDomainError reports whether err wraps a DomainError
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// Common domain errors
var (
	ErrNotFound           = NewNotFoundError("Resource not found")
	ErrInvalidInput       = NewInvalidError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidOrderID     = NewInvalidError("INVALID_ORDER_ID", "Invalid order identifier")
	ErrInvalidAmount      = NewInvalidError("INVALID_AMOUNT", "Invalid amount")
	ErrInvalidCard        = NewInvalidError("INVALID_CARD", "Invalid card information")
	ErrNotEnough          = NewUnprocessableError("NOT_ENOUGH", "Not enough quantity available")
	ErrNotPayable         = NewUnprocessableError("NOT_PAYABLE", "Order is not payable")
	ErrConcluding         = NewUnprocessableError("CONCLUDING", "Order is already concluded")
	ErrAlreadyConcluded   = NewUnprocessableError("ALREADY_CONCLUDED", "Payment is already concluded")
	ErrCouponUnusable     = NewUnprocessableError("COUPON_UNAVAILABLE", "Coupon cannot be used")
	ErrUnknownTransaction = NewUnprocessableError("UNKNOWN_TRANSACTION", "Transaction is not known to the gateway")
	ErrNotRequested       = NewConflictError("NOT_REQUESTED", "No gateway transaction was requested for the payment")
	ErrDuplicatePayment   = NewConflictError("DUPLICATE_PAYMENT", "Payment already exists for order")
	ErrConflict           = NewConflictError("CONFLICT", "Resource already exists")
)
