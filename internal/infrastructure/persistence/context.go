package persistence

import (
	"context"

	"github.com/erp/fulfillment/internal/domain/shared"
	"gorm.io/gorm"
)

type txKey struct{}

// txState is the transaction bound to a context by UnitOfWork.Do
type txState struct {
	tx     *gorm.DB
	parent *txState
	staged []shared.DomainEvent
	hooks  []func(context.Context)
}

func withTx(ctx context.Context, st *txState) context.Context {
	return context.WithValue(ctx, txKey{}, st)
}

func txFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

// DB returns the transaction carried by ctx, or fallback when there is none.
// The result is always bound to ctx.
func DB(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if st := txFrom(ctx); st != nil {
		return st.tx.WithContext(ctx)
	}
	return fallback.WithContext(ctx)
}

// InTx reports whether ctx carries a transaction
func InTx(ctx context.Context) bool {
	return txFrom(ctx) != nil
}
