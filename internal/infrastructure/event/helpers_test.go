package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/testdb"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testEventType = "TestEvent"

type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.NewString()),
		Data:            "test data",
	}
}

func newTestSerializer() *EventSerializer {
	s := NewFulfillmentSerializer()
	s.Register(testEventType, &testEvent{})
	return s
}

type testHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

func (h *testHandler) EventTypes() []string { return h.eventTypes }

func (h *testHandler) setError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

// fakeTransport records sent messages and fails while err is set
type fakeTransport struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (f *fakeTransport) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Close() error { return nil }

var errBrokerDown = errors.New("broker down")

// seedOutbox writes one PENDING entry per event
func seedOutbox(t *testing.T, db *gorm.DB, events ...shared.DomainEvent) []*shared.OutboxEntry {
	t.Helper()
	s := newTestSerializer()
	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, evt := range events {
		payload, err := s.Serialize(evt)
		require.NoError(t, err)
		entries = append(entries, shared.NewOutboxEntry(evt, payload))
	}
	require.NoError(t, NewGormOutboxRepository(db).Save(context.Background(), entries...))
	return entries
}

func newDB(t *testing.T) *gorm.DB {
	return testdb.NewSQLite(t)
}
