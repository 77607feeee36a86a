package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/models"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/testdb"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitOfWork_CommitWritesStateAndOutbox(t *testing.T) {
	db := testdb.NewSQLite(t)
	local := &capturePublisher{}
	uow := newTestUnitOfWork(db, WithLocalPublisher(local))
	repo := NewGormOrderRepository(db)
	ctx := context.Background()

	o := newTestOrder(t, uuid.New())
	err := uow.Do(ctx, func(ctx context.Context) error {
		assert.True(t, InTx(ctx))
		if err := repo.Save(ctx, o); err != nil {
			return err
		}
		return uow.Stage(ctx, o.GetDomainEvents()...)
	})
	require.NoError(t, err)

	_, err = repo.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), countOutbox(t, db))
	require.Len(t, local.published, 1)
	assert.Equal(t, order.OrderCreatedEventType, local.published[0].EventType())
}

func TestUnitOfWork_RollbackDiscardsStateOutboxAndHooks(t *testing.T) {
	db := testdb.NewSQLite(t)
	local := &capturePublisher{}
	uow := newTestUnitOfWork(db, WithLocalPublisher(local))
	repo := NewGormOrderRepository(db)
	ctx := context.Background()
	boom := errors.New("boom")
	hookRan := false

	o := newTestOrder(t, uuid.New())
	err := uow.Do(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.Save(ctx, o))
		require.NoError(t, uow.Stage(ctx, o.GetDomainEvents()...))
		require.NoError(t, uow.AfterCommit(ctx, func(context.Context) { hookRan = true }))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.FindByID(ctx, o.ID)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
	assert.Zero(t, countOutbox(t, db))
	assert.Empty(t, local.published)
	assert.False(t, hookRan)
}

func TestUnitOfWork_OutboxFailureRollsBackState(t *testing.T) {
	db := testdb.NewSQLite(t)
	uow := newTestUnitOfWork(db)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()

	o := newTestOrder(t, uuid.New())
	events := o.GetDomainEvents()
	// the same event twice violates the outbox (event_key, event_name) index
	err := uow.Do(ctx, func(ctx context.Context) error {
		if err := repo.Save(ctx, o); err != nil {
			return err
		}
		return uow.Stage(ctx, events[0], events[0])
	})
	require.Error(t, err)

	_, err = repo.FindByID(ctx, o.ID)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
	assert.Zero(t, countOutbox(t, db))
}

func TestUnitOfWork_NestedFailureRollsBackToSavepoint(t *testing.T) {
	db := testdb.NewSQLite(t)
	uow := newTestUnitOfWork(db)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()
	var hooks []string

	outer := newTestOrder(t, uuid.New())
	inner := newTestOrder(t, uuid.New())
	err := uow.Do(ctx, func(ctx context.Context) error {
		if err := repo.Save(ctx, outer); err != nil {
			return err
		}
		require.NoError(t, uow.Stage(ctx, outer.GetDomainEvents()...))
		require.NoError(t, uow.AfterCommit(ctx, func(context.Context) { hooks = append(hooks, "outer") }))

		innerErr := uow.Do(ctx, func(ctx context.Context) error {
			require.NoError(t, repo.Save(ctx, inner))
			require.NoError(t, uow.Stage(ctx, inner.GetDomainEvents()...))
			require.NoError(t, uow.AfterCommit(ctx, func(context.Context) { hooks = append(hooks, "inner") }))
			return shared.NewUnprocessableError(shared.ErrNotEnough.Code, "not enough")
		})
		assert.Equal(t, shared.KindUnprocessable, shared.KindOf(innerErr))
		return nil
	})
	require.NoError(t, err)

	_, err = repo.FindByID(ctx, outer.ID)
	require.NoError(t, err)
	_, err = repo.FindByID(ctx, inner.ID)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))

	var rows []models.OutboxEntryModel
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, outer.ID.String(), rows[0].AggregateID)
	assert.Equal(t, []string{"outer"}, hooks)
}

func TestUnitOfWork_NestedSuccessMergesIntoParent(t *testing.T) {
	db := testdb.NewSQLite(t)
	uow := newTestUnitOfWork(db)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()
	hookRan := false

	o := newTestOrder(t, uuid.New())
	err := uow.Do(ctx, func(ctx context.Context) error {
		return uow.Do(ctx, func(ctx context.Context) error {
			if err := repo.Save(ctx, o); err != nil {
				return err
			}
			if err := uow.AfterCommit(ctx, func(context.Context) { hookRan = true }); err != nil {
				return err
			}
			return uow.Stage(ctx, o.GetDomainEvents()...)
		})
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), countOutbox(t, db))
	assert.True(t, hookRan)
}

func TestUnitOfWork_StageOutsideTransaction(t *testing.T) {
	uow := newTestUnitOfWork(testdb.NewSQLite(t))
	ctx := context.Background()

	assert.ErrorIs(t, uow.Stage(ctx), ErrNoTransaction)
	assert.ErrorIs(t, uow.AfterCommit(ctx, func(context.Context) {}), ErrNoTransaction)
	assert.False(t, InTx(ctx))
}

type recordingRunner struct {
	names []string
}

func (r *recordingRunner) Go(name string, fn func(ctx context.Context) error) {
	r.names = append(r.names, name)
	_ = fn(context.Background())
}

func TestUnitOfWork_HooksGoThroughRunner(t *testing.T) {
	db := testdb.NewSQLite(t)
	runner := &recordingRunner{}
	local := &capturePublisher{}
	uow := newTestUnitOfWork(db, WithHookRunner(runner), WithLocalPublisher(local))
	repo := NewGormOrderRepository(db)

	o := newTestOrder(t, uuid.New())
	calls := 0
	err := uow.Do(context.Background(), func(ctx context.Context) error {
		require.NoError(t, repo.Save(ctx, o))
		require.NoError(t, uow.Stage(ctx, o.GetDomainEvents()...))
		return uow.AfterCommit(ctx, func(context.Context) { calls++ })
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"deliver-committed-events", "after-commit"}, runner.names)
	assert.Equal(t, 1, calls)
	assert.Len(t, local.published, 1)
}
