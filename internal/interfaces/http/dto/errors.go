package dto

import (
	"net/http"

	"github.com/erp/fulfillment/internal/domain/shared"
)

// Transport-level error codes. Domain errors carry their own codes
// (NOT_FOUND, NOT_ENOUGH, INVALID_CARD, ...) and are passed through unchanged.
const (
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeTokenExpired    = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid    = "TOKEN_INVALID"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
)

// ErrorKindHTTPStatus maps domain error kinds to HTTP status codes
var ErrorKindHTTPStatus = map[shared.ErrorKind]int{
	shared.KindNotFound:      http.StatusNotFound,
	shared.KindUnprocessable: http.StatusUnprocessableEntity,
	shared.KindInvalid:       http.StatusBadRequest,
	shared.KindConflict:      http.StatusConflict,
}

// ErrorCodeHTTPStatus maps transport-level error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeTokenExpired:    http.StatusUnauthorized,
	ErrCodeTokenInvalid:    http.StatusUnauthorized,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodePayloadTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for a transport-level error code.
// Returns 500 Internal Server Error if the code is unknown.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// StatusForKind returns the HTTP status code for a domain error kind.
// Anything that is not a known kind is a 500.
func StatusForKind(kind shared.ErrorKind) int {
	if status, ok := ErrorKindHTTPStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}
