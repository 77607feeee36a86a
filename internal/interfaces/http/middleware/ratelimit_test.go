package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/fulfillment/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("a"), "request %d", i)
	}
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys have separate buckets")
	assert.Equal(t, 0, rl.Remaining("a"))
}

func TestRateLimiter_Evict(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Allow("a")
	rl.evict(time.Now().Add(time.Hour))
	assert.Empty(t, rl.clients)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRateLimit_KeysByUserThenIP(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	router := gin.New()
	router.Use(RequestID(), func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(JWTUserIDKey, user)
		}
	}, RateLimit(rl))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	request := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		if user != "" {
			req.Header.Set("X-Test-User", user)
		}
		return serve(router, req)
	}

	w := request("")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = request("")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, dto.ErrCodeRateLimited, decodeError(t, w).Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, request("user-1").Code, "same IP, different user")
	assert.Equal(t, http.StatusTooManyRequests, request("user-1").Code)
}

func TestRateLimit_SkipsCallbackPrefix(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	router := gin.New()
	router.Use(RequestID(), RateLimit(rl, CallbackPathPrefix))
	router.POST("/api/v1/callback/payments/:orderId", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/orders", func(c *gin.Context) { c.Status(http.StatusOK) })

	request := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "10.0.0.9:1234"
		return serve(router, req)
	}

	for i := 0; i < 5; i++ {
		w := request(http.MethodPost, "/api/v1/callback/payments/0190a1b2-0000-7000-8000-000000000001")
		require.Equal(t, http.StatusOK, w.Code, "callback %d", i)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}

	assert.Equal(t, http.StatusOK, request(http.MethodGet, "/api/v1/orders").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(http.MethodGet, "/api/v1/orders").Code)
}
