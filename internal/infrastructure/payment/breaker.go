package payment

import (
	"errors"

	"github.com/erp/fulfillment/internal/infrastructure/config"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// NewBreaker builds the gateway circuit breaker. It trips once at least
// BreakerMinRequests calls were seen in the interval and the failure ratio
// reaches BreakerFailureRatio. Errors for which isFailure returns false do
// not count against the gateway.
func NewBreaker(name string, cfg config.GatewayConfig, isFailure func(error) bool, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isFailure(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// executeWithBreaker runs fn through cb and maps the breaker's rejections to
// ErrCircuitOpen
func executeWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = errors.Join(ErrCircuitOpen, err)
		}
		return *new(T), err
	}
	return res.(T), nil
}
