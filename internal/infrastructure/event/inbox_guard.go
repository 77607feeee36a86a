package event

import (
	"context"
	"sync/atomic"

	"github.com/erp/fulfillment/internal/domain/shared"
	"go.uber.org/zap"
)

// InboxMetrics counts guard outcomes
type InboxMetrics struct {
	EventsProcessed atomic.Int64
	EventsDuplicate atomic.Int64
	EventsFailed    atomic.Int64
}

// Stats returns a snapshot of the current counters
func (m *InboxMetrics) Stats() InboxStats {
	return InboxStats{
		EventsProcessed: m.EventsProcessed.Load(),
		EventsDuplicate: m.EventsDuplicate.Load(),
		EventsFailed:    m.EventsFailed.Load(),
	}
}

// InboxStats is a snapshot of InboxMetrics
type InboxStats struct {
	EventsProcessed int64 `json:"events_processed"`
	EventsDuplicate int64 `json:"events_duplicate"`
	EventsFailed    int64 `json:"events_failed"`
}

// InboxGuard runs a handler at most once per (event key, event name).
//
// The inbox row is inserted as the first statement of the handler's
// transaction, so a handler failure rolls the row back and the event can be
// delivered again, while a concurrent duplicate loses the unique-key race
// and returns nil without side effects.
type InboxGuard struct {
	handler    shared.EventHandler
	uow        shared.UnitOfWork
	inbox      shared.InboxRepository
	serializer *EventSerializer
	logger     *zap.Logger
	metrics    *InboxMetrics
}

// NewInboxGuard wraps handler
func NewInboxGuard(
	handler shared.EventHandler,
	uow shared.UnitOfWork,
	inbox shared.InboxRepository,
	serializer *EventSerializer,
	logger *zap.Logger,
) *InboxGuard {
	return &InboxGuard{
		handler:    handler,
		uow:        uow,
		inbox:      inbox,
		serializer: serializer,
		logger:     logger,
		metrics:    &InboxMetrics{},
	}
}

// Metrics returns the guard counters
func (g *InboxGuard) Metrics() *InboxMetrics {
	return g.metrics
}

// EventTypes returns the wrapped handler's event types
func (g *InboxGuard) EventTypes() []string {
	return g.handler.EventTypes()
}

// Handle records the event in the inbox and runs the handler in the same
// transaction. A duplicate is a successful no-op.
func (g *InboxGuard) Handle(ctx context.Context, event shared.DomainEvent) error {
	payload, err := g.serializer.Serialize(event)
	if err != nil {
		return err
	}
	entry := shared.InboxEntry{
		EventKey:  event.EventID().String(),
		EventName: event.EventType(),
		Payload:   payload,
	}

	duplicate := false
	err = g.uow.Do(ctx, func(ctx context.Context) error {
		recorded, err := g.inbox.Inbound(ctx, entry)
		if err != nil {
			return err
		}
		if !recorded {
			duplicate = true
			return nil
		}
		return g.handler.Handle(ctx, event)
	})

	switch {
	case err != nil:
		g.metrics.EventsFailed.Add(1)
		g.logger.Error("event handler failed",
			zap.String("event_key", entry.EventKey),
			zap.String("event_name", entry.EventName),
			zap.Error(err),
		)
		return err
	case duplicate:
		g.metrics.EventsDuplicate.Add(1)
		g.logger.Debug("duplicate event skipped",
			zap.String("event_key", entry.EventKey),
			zap.String("event_name", entry.EventName),
		)
	default:
		g.metrics.EventsProcessed.Add(1)
	}
	return nil
}

var _ shared.EventHandler = (*InboxGuard)(nil)
