package payment

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy retries retryable errors with exponential backoff
type RetryPolicy struct {
	Name        string
	MaxAttempts int
	Backoff     time.Duration
	Retryable   func(error) bool
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		wait := p.Backoff * time.Duration(1<<uint(attempt-1))
		logger.Warn("retrying gateway call",
			zap.String("policy", p.Name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(wait):
		}
	}
	return err
}
