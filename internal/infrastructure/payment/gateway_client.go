// Package payment is the HTTP client for the external payment gateway.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/erp/fulfillment/internal/infrastructure/config"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	paymentsPath = "/api/v1/payments"
	storeHeader  = "X-USER-ID"
)

var (
	// ErrGatewayUnavailable marks transport failures and 5xx answers; these are retried
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected marks 4xx answers and FAIL envelopes; these are not retried
	ErrGatewayRejected = payment.ErrRejected
	// ErrCircuitOpen is returned without calling the gateway while the breaker is open
	ErrCircuitOpen = errors.New("payment gateway circuit open")
)

// CallObserver is told the outcome of every gateway operation
type CallObserver interface {
	GatewayCalled(ctx context.Context, operation string, err error)
}

// GatewayClient implements payment.Gateway over HTTP with retry and a
// circuit breaker
type GatewayClient struct {
	baseURL     string
	storeID     string
	callbackURL string
	httpClient  *http.Client
	retry       RetryPolicy
	breaker     *gobreaker.CircuitBreaker
	observer    CallObserver
	logger      *zap.Logger
}

// GatewayClientOption configures a GatewayClient
type GatewayClientOption func(*GatewayClient)

// WithHTTPClient replaces the default instrumented client
func WithHTTPClient(c *http.Client) GatewayClientOption {
	return func(g *GatewayClient) {
		g.httpClient = c
	}
}

// WithCallObserver reports call outcomes to o
func WithCallObserver(o CallObserver) GatewayClientOption {
	return func(g *GatewayClient) {
		g.observer = o
	}
}

// NewGatewayClient creates a client from configuration
func NewGatewayClient(cfg config.GatewayConfig, logger *zap.Logger, opts ...GatewayClientOption) *GatewayClient {
	g := &GatewayClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		storeID:     cfg.StoreID,
		callbackURL: cfg.CallbackURL,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retry: RetryPolicy{
			Name:        "pg-client",
			MaxAttempts: cfg.RetryMax,
			Backoff:     cfg.RetryBackoff,
			Retryable:   isRetryable,
		},
		breaker: NewBreaker("pg-client", cfg, isRetryable, logger),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Transact asks the gateway to charge a card. The answer carries the
// gateway's transaction key; the final status arrives later by callback.
func (g *GatewayClient) Transact(ctx context.Context, req payment.TransactRequest) (payment.Transaction, error) {
	body, err := json.Marshal(transactRequest{
		OrderID:     req.OrderID.String(),
		CardType:    string(req.CardType),
		CardNo:      req.CardNumber,
		Amount:      json.Number(req.Amount.String()),
		CallbackURL: g.callbackURL,
	})
	if err != nil {
		return payment.Transaction{}, fmt.Errorf("failed to encode transact request: %w", err)
	}

	var tx payment.Transaction
	err = g.call(ctx, "transact", func(ctx context.Context) error {
		return g.do(ctx, http.MethodPost, paymentsPath, body, &tx)
	})
	return tx, err
}

// GetTransactions lists the gateway's transactions for an order, in the
// order the gateway reports them
func (g *GatewayClient) GetTransactions(ctx context.Context, orderID order.OrderID) ([]payment.Transaction, error) {
	path := paymentsPath + "?" + url.Values{"orderId": {orderID.String()}}.Encode()

	var data orderTransactions
	err := g.call(ctx, "get_transactions", func(ctx context.Context) error {
		return g.do(ctx, http.MethodGet, path, nil, &data)
	})
	return data.Transactions, err
}

func (g *GatewayClient) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	err := g.retry.Do(ctx, g.logger, func(ctx context.Context) error {
		_, err := executeWithBreaker(g.breaker, func() (struct{}, error) {
			return struct{}{}, fn(ctx)
		})
		return err
	})
	if g.observer != nil {
		g.observer.GatewayCalled(ctx, operation, err)
	}
	if err != nil {
		return fmt.Errorf("gateway %s: %w", operation, err)
	}
	return nil
}

func (g *GatewayClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(storeHeader, g.storeID)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError ||
		resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: HTTP %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var envelope gatewayResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("%w: HTTP %d", ErrGatewayRejected, resp.StatusCode)
		}
		return fmt.Errorf("%w: malformed response: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || envelope.Meta.Result != resultSuccess {
		return fmt.Errorf("%w: HTTP %d %s %s", ErrGatewayRejected,
			resp.StatusCode, envelope.Meta.ErrorCode, envelope.Meta.Message)
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: malformed data: %v", ErrGatewayUnavailable, err)
	}
	return nil
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}

var _ payment.Gateway = (*GatewayClient)(nil)
