package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses []shared.OutboxStatus
}

func (o *recordingObserver) OutboxRelayed(_ context.Context, _ string, status shared.OutboxStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func newTestRelay(t *testing.T, transport Transport) (*OutboxRelay, *GormOutboxRepository) {
	t.Helper()
	repo := NewGormOutboxRepository(newDB(t))
	cfg := DefaultRelayConfig()
	cfg.BatchSize = 10
	return NewOutboxRelay(repo, transport, newTestSerializer(), cfg, zap.NewNop()), repo
}

func TestOutboxRelay_SendsPendingAndMarksSent(t *testing.T) {
	transport := &fakeTransport{}
	relay, repo := newTestRelay(t, transport)
	observer := &recordingObserver{}
	relay.SetObserver(observer)
	ctx := context.Background()

	evt := newTestEvent(testEventType)
	entries := seedOutbox(t, repo.db, evt)

	assert.Equal(t, 1, relay.ProcessBatch(ctx))

	require.Len(t, transport.sent, 1)
	assert.Equal(t, evt.EventID(), transport.sent[0].Event.EventID())
	assert.Equal(t, evt.EventID(), transport.sent[0].Entry.EventKey)

	stored, err := repo.FindByEventKey(ctx, entries[0].EventKey)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusSent, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Equal(t, []shared.OutboxStatus{shared.OutboxStatusSent}, observer.statuses)

	assert.Zero(t, relay.ProcessBatch(ctx), "sent entries are not relayed again")
}

func TestOutboxRelay_TransportFailureSchedulesRetry(t *testing.T) {
	transport := &fakeTransport{err: errBrokerDown}
	relay, repo := newTestRelay(t, transport)
	ctx := context.Background()

	entries := seedOutbox(t, repo.db, newTestEvent(testEventType))

	assert.Zero(t, relay.ProcessBatch(ctx))

	stored, err := repo.FindByEventKey(ctx, entries[0].EventKey)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, errBrokerDown.Error(), stored.LastError)
	require.NotNil(t, stored.NextRetryAt)
	assert.True(t, stored.NextRetryAt.After(time.Now()))
}

func TestOutboxRelay_DeadAfterMaxRetries(t *testing.T) {
	transport := &fakeTransport{err: errBrokerDown}
	relay, repo := newTestRelay(t, transport)
	ctx := context.Background()

	entries := seedOutbox(t, repo.db, newTestEvent(testEventType))
	entries[0].MaxRetries = 1
	require.NoError(t, repo.Update(ctx, entries[0]))

	relay.ProcessBatch(ctx)

	stored, err := repo.FindByEventKey(ctx, entries[0].EventKey)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusDead, stored.Status)
	assert.Nil(t, stored.NextRetryAt)
}

func TestOutboxRelay_UnknownEventNameFails(t *testing.T) {
	transport := &fakeTransport{}
	relay, repo := newTestRelay(t, transport)
	ctx := context.Background()

	entries := seedOutbox(t, repo.db, newTestEvent("Unregistered"))

	relay.ProcessBatch(ctx)

	assert.Empty(t, transport.sent)
	stored, err := repo.FindByEventKey(ctx, entries[0].EventKey)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "unknown event type")
}

func TestOutboxRelay_RetriesDueEntries(t *testing.T) {
	transport := &fakeTransport{}
	relay, repo := newTestRelay(t, transport)
	ctx := context.Background()

	entries := seedOutbox(t, repo.db, newTestEvent(testEventType))
	entry := entries[0]
	entry.MarkFailed("earlier failure")
	past := time.Now().Add(-time.Second)
	entry.NextRetryAt = &past
	require.NoError(t, repo.Update(ctx, entry))

	assert.Equal(t, 1, relay.ProcessBatch(ctx))
	assert.Len(t, transport.sent, 1)
}

func TestOutboxRelay_LocalHandlerFailureIsRedelivered(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	handler := newTestHandler(testEventType)
	handler.setError(errors.New("stock service down"))
	bus.Subscribe(handler)

	relay, repo := newTestRelay(t, NewBusTransport(bus))
	ctx := context.Background()

	entries := seedOutbox(t, repo.db, newTestEvent(testEventType))

	assert.Equal(t, 0, relay.ProcessBatch(ctx))
	stored, err := repo.FindByEventKey(ctx, entries[0].EventKey)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "stock service down")

	handler.setError(nil)
	past := time.Now().Add(-time.Second)
	stored.NextRetryAt = &past
	require.NoError(t, repo.Update(ctx, stored))

	assert.Equal(t, 1, relay.ProcessBatch(ctx))
	stored, err = repo.FindByEventKey(ctx, entries[0].EventKey)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusSent, stored.Status)
	assert.Len(t, handler.getHandled(), 2)
}

func TestOutboxRelay_ReclaimsExpiredProcessingLease(t *testing.T) {
	transport := &fakeTransport{}
	relay, repo := newTestRelay(t, transport)
	relay.config.ProcessingLease = time.Minute
	ctx := context.Background()

	entries := seedOutbox(t, repo.db,
		newTestEvent(testEventType),
		newTestEvent(testEventType),
	)
	abandoned, live := entries[0], entries[1]
	require.NoError(t, repo.db.Model(&models.OutboxEntryModel{}).
		Where("id = ?", abandoned.ID).
		Updates(map[string]any{
			"status":     shared.OutboxStatusProcessing,
			"updated_at": time.Now().Add(-10 * time.Minute),
		}).Error)
	require.NoError(t, repo.db.Model(&models.OutboxEntryModel{}).
		Where("id = ?", live.ID).
		Updates(map[string]any{
			"status":     shared.OutboxStatusProcessing,
			"updated_at": time.Now(),
		}).Error)

	assert.Equal(t, 1, relay.ProcessBatch(ctx))
	require.Len(t, transport.sent, 1)
	assert.Equal(t, abandoned.EventKey, transport.sent[0].Entry.EventKey)

	stored, err := repo.FindByEventKey(ctx, abandoned.EventKey)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusSent, stored.Status)

	stored, err = repo.FindByEventKey(ctx, live.EventKey)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusProcessing, stored.Status, "a live lease belongs to another relay")
}

func TestOutboxRelay_Cleanup(t *testing.T) {
	relay, repo := newTestRelay(t, &fakeTransport{})
	relay.config.CleanupRetention = 0
	ctx := context.Background()

	seedOutbox(t, repo.db, newTestEvent(testEventType))
	relay.ProcessBatch(ctx)

	assert.Equal(t, int64(1), relay.Cleanup(ctx))
}

func TestOutboxRelay_StartStop(t *testing.T) {
	transport := &fakeTransport{}
	relay, repo := newTestRelay(t, transport)
	relay.config.PollInterval = 10 * time.Millisecond
	relay.config.CleanupEnabled = false

	seedOutbox(t, repo.db, newTestEvent(testEventType))

	require.NoError(t, relay.Start(context.Background()))
	assert.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.sent) == 1
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, relay.Stop(ctx))
}
