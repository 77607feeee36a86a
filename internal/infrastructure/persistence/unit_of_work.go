package persistence

import (
	"context"
	"errors"

	"github.com/erp/fulfillment/internal/domain/shared"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoTransaction is returned by Stage and AfterCommit outside UnitOfWork.Do
var ErrNoTransaction = errors.New("persistence: no transaction in context")

// OutboxWriter writes events to the outbox inside tx
type OutboxWriter interface {
	SaveWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error
}

// HookRunner runs after-commit work off the caller's goroutine
type HookRunner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// GormUnitOfWork implements shared.UnitOfWork on a GORM connection.
type GormUnitOfWork struct {
	db     *gorm.DB
	outbox OutboxWriter
	runner HookRunner
	local  shared.EventPublisher
	logger *zap.Logger
}

// UnitOfWorkOption configures a GormUnitOfWork
type UnitOfWorkOption func(*GormUnitOfWork)

// WithHookRunner runs after-commit hooks and local delivery on runner.
// Without one they run synchronously once Do returns.
func WithHookRunner(runner HookRunner) UnitOfWorkOption {
	return func(u *GormUnitOfWork) {
		u.runner = runner
	}
}

// WithLocalPublisher delivers committed events to in-process subscribers
// ahead of the outbox relay.
func WithLocalPublisher(publisher shared.EventPublisher) UnitOfWorkOption {
	return func(u *GormUnitOfWork) {
		u.local = publisher
	}
}

// NewUnitOfWork creates a unit of work writing staged events through outbox
func NewUnitOfWork(db *gorm.DB, outbox OutboxWriter, logger *zap.Logger, opts ...UnitOfWorkOption) *GormUnitOfWork {
	u := &GormUnitOfWork{
		db:     db,
		outbox: outbox,
		logger: logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Do runs fn in a transaction. Nested calls open a savepoint: a failing
// inner fn rolls back only its own writes, staged events and hooks.
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if parent := txFrom(ctx); parent != nil {
		return parent.tx.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			st := &txState{tx: tx, parent: parent}
			if err := fn(withTx(ctx, st)); err != nil {
				return err
			}
			parent.staged = append(parent.staged, st.staged...)
			parent.hooks = append(parent.hooks, st.hooks...)
			return nil
		})
	}

	st := &txState{}
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st.tx = tx
		if err := fn(withTx(ctx, st)); err != nil {
			return err
		}
		if len(st.staged) == 0 {
			return nil
		}
		return u.outbox.SaveWithTx(ctx, tx, st.staged...)
	})
	if err != nil {
		return err
	}

	u.afterCommit(ctx, st)
	return nil
}

// Stage queues events for the outbox of the transaction in ctx
func (u *GormUnitOfWork) Stage(ctx context.Context, events ...shared.DomainEvent) error {
	st := txFrom(ctx)
	if st == nil {
		return ErrNoTransaction
	}
	st.staged = append(st.staged, events...)
	return nil
}

// AfterCommit registers hook to run once the outermost transaction commits
func (u *GormUnitOfWork) AfterCommit(ctx context.Context, hook func(ctx context.Context)) error {
	st := txFrom(ctx)
	if st == nil {
		return ErrNoTransaction
	}
	st.hooks = append(st.hooks, hook)
	return nil
}

func (u *GormUnitOfWork) afterCommit(ctx context.Context, st *txState) {
	span := trace.SpanFromContext(ctx)
	if u.local != nil && len(st.staged) > 0 {
		events := st.staged
		u.run(ctx, span, "deliver-committed-events", func(ctx context.Context) {
			if err := u.local.Publish(ctx, events...); err != nil {
				u.logger.Warn("Local delivery of committed events failed, the outbox relay will redeliver",
					zap.Int("count", len(events)),
					zap.Error(err),
				)
			}
		})
	}
	for _, hook := range st.hooks {
		u.run(ctx, span, "after-commit", hook)
	}
}

func (u *GormUnitOfWork) run(ctx context.Context, span trace.Span, name string, fn func(ctx context.Context)) {
	if u.runner == nil {
		fn(context.WithoutCancel(ctx))
		return
	}
	u.runner.Go(name, func(poolCtx context.Context) error {
		fn(trace.ContextWithSpan(poolCtx, span))
		return nil
	})
}

var _ shared.UnitOfWork = (*GormUnitOfWork)(nil)
