package handler

import (
	"errors"
	"net/http"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/logger"
	"github.com/erp/fulfillment/internal/interfaces/http/dto"
	"github.com/erp/fulfillment/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserIDHeader carries the caller's id when no bearer token is sent.
// Only honoured outside production.
const UserIDHeader = "X-USER-ID"

var errNoUser = errors.New("user ID not found in request")

// BaseHandler provides common handler utilities
type BaseHandler struct {
	// AllowHeaderIdentity enables the X-USER-ID fallback
	AllowHeaderIdentity bool
}

// getRequestID extracts the request ID set by the RequestID middleware
func getRequestID(c *gin.Context) string {
	return middleware.GetRequestID(c)
}

// userID resolves the caller from the JWT subject, falling back to the
// X-USER-ID header when allowed
func (h *BaseHandler) userID(c *gin.Context) (uuid.UUID, error) {
	raw := middleware.GetJWTUserID(c)
	if raw == "" && h.AllowHeaderIdentity {
		raw = c.GetHeader(UserIDHeader)
	}
	if raw == "" {
		return uuid.Nil, errNoUser
	}
	return uuid.Parse(raw)
}

// requireUser writes a 401 and returns false when the caller is unknown
func (h *BaseHandler) requireUser(c *gin.Context) (uuid.UUID, bool) {
	id, err := h.userID(c)
	if err != nil {
		h.Unauthorized(c, "User identity is required")
		return uuid.Nil, false
	}
	return id, true
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// HandleError maps domain errors to their HTTP status by kind. Anything else
// is logged and reported as a 500 without leaking its message.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, dto.StatusForKind(domainErr.Kind), domainErr.Code, domainErr.Message)
		return
	}

	logger.FromContext(c.Request.Context()).Error("Request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}
