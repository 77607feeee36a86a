package event

import (
	"context"

	"github.com/erp/fulfillment/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxPublisher writes domain events to the outbox table
type OutboxPublisher struct {
	serializer *EventSerializer
	maxRetries int
}

// NewOutboxPublisher creates a new outbox publisher. maxRetries <= 0 keeps
// the entry default.
func NewOutboxPublisher(serializer *EventSerializer, maxRetries int) *OutboxPublisher {
	return &OutboxPublisher{
		serializer: serializer,
		maxRetries: maxRetries,
	}
}

// SaveWithTx inserts one PENDING entry per event using tx, so the entries
// commit or roll back with the state change that produced them.
func (p *OutboxPublisher) SaveWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		payload, err := p.serializer.Serialize(event)
		if err != nil {
			return err
		}
		entry := shared.NewOutboxEntry(event, payload)
		if p.maxRetries > 0 {
			entry.MaxRetries = p.maxRetries
		}
		entries = append(entries, entry)
	}

	return NewGormOutboxRepository(tx).Save(ctx, entries...)
}
