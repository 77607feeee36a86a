package event

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestGuard(t *testing.T, handler shared.EventHandler) (*InboxGuard, *gorm.DB) {
	t.Helper()
	db := newDB(t)
	serializer := newTestSerializer()
	uow := persistence.NewUnitOfWork(db, NewOutboxPublisher(serializer, 0), zap.NewNop())
	inbox := persistence.NewGormInboxRepository(db)
	return NewInboxGuard(handler, uow, inbox, serializer, zap.NewNop()), db
}

func TestInboxGuard_RunsHandlerOncePerEvent(t *testing.T) {
	handler := newTestHandler(testEventType)
	guard, db := newTestGuard(t, handler)
	ctx := context.Background()

	evt := newTestEvent(testEventType)
	require.NoError(t, guard.Handle(ctx, evt))
	require.NoError(t, guard.Handle(ctx, evt))

	assert.Len(t, handler.getHandled(), 1)
	stats := guard.Metrics().Stats()
	assert.Equal(t, int64(1), stats.EventsProcessed)
	assert.Equal(t, int64(1), stats.EventsDuplicate)

	exists, err := persistence.NewGormInboxRepository(db).Exists(ctx, evt.EventID().String(), testEventType)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestInboxGuard_FailureLeavesEventRedeliverable(t *testing.T) {
	handler := newTestHandler(testEventType)
	handler.setError(errors.New("transient"))
	guard, db := newTestGuard(t, handler)
	ctx := context.Background()

	evt := newTestEvent(testEventType)
	require.Error(t, guard.Handle(ctx, evt))

	exists, err := persistence.NewGormInboxRepository(db).Exists(ctx, evt.EventID().String(), testEventType)
	require.NoError(t, err)
	assert.False(t, exists, "inbox row rolls back with the handler")

	handler.setError(nil)
	require.NoError(t, guard.Handle(ctx, evt))
	assert.Len(t, handler.getHandled(), 2)
	assert.Equal(t, int64(1), guard.Metrics().Stats().EventsFailed)
}

// stagingHandler stages a follow-up event inside the guarded transaction
type stagingHandler struct {
	uow shared.UnitOfWork
}

func (h stagingHandler) Handle(ctx context.Context, _ shared.DomainEvent) error {
	return h.uow.Stage(ctx, newTestEvent(testEventType))
}

func (stagingHandler) EventTypes() []string { return []string{testEventType} }

func TestInboxGuard_HandlerSharesTransaction(t *testing.T) {
	db := newDB(t)
	serializer := newTestSerializer()
	uow := persistence.NewUnitOfWork(db, NewOutboxPublisher(serializer, 0), zap.NewNop())
	guard := NewInboxGuard(stagingHandler{uow: uow}, uow, persistence.NewGormInboxRepository(db), serializer, zap.NewNop())

	require.NoError(t, guard.Handle(context.Background(), newTestEvent(testEventType)))

	counts, err := NewGormOutboxRepository(db).CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.OutboxStatusPending])
}
