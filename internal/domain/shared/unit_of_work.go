package shared

import "context"

// UnitOfWork scopes a local transaction to a context.
//
// Repositories called with the context passed to fn take part in the
// transaction. Calling Do with a context that already carries a transaction
// opens a savepoint. Events staged with Stage are written to the outbox right
// before commit; hooks registered with AfterCommit run only if the outermost
// transaction commits.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
	Stage(ctx context.Context, events ...DomainEvent) error
	AfterCommit(ctx context.Context, hook func(ctx context.Context)) error
}
