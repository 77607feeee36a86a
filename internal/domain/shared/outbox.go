package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus tracks delivery of an outbox entry by the relay.
//
//	PENDING -> PROCESSING -> SENT
//	              |
//	              v
//	           FAILED -> PROCESSING ... -> DEAD
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

const (
	DefaultMaxRetries = 5
	// first redelivery delay; doubles per attempt
	DefaultBaseBackoff = time.Second
)

// OutboxEntry is a durable fact written in the same transaction as the
// state change that produced it. (EventKey, EventName) is unique.
type OutboxEntry struct {
	ID            uuid.UUID
	EventKey      uuid.UUID
	EventName     string
	AggregateID   string
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry creates a new outbox entry for a domain event
func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	now := time.Now()
	return &OutboxEntry{
		ID:            uuid.New(),
		EventKey:      event.EventID(),
		EventName:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarkProcessing claims the entry for a relay tick.
func (e *OutboxEntry) MarkProcessing() error {
	if e.Status != OutboxStatusPending && e.Status != OutboxStatusFailed {
		return fmt.Errorf("outbox entry %s is %s, not claimable", e.ID, e.Status)
	}
	e.Status = OutboxStatusProcessing
	e.UpdatedAt = time.Now()
	return nil
}

// MarkSent records a successful hand-off to the transport.
func (e *OutboxEntry) MarkSent() {
	now := time.Now()
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a delivery failure. Entries that exhaust MaxRetries are
// parked as DEAD and never picked up again.
func (e *OutboxEntry) MarkFailed(errMsg string) {
	e.RetryCount++
	e.LastError = errMsg
	e.UpdatedAt = time.Now()

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	next := e.UpdatedAt.Add(DefaultBaseBackoff << uint(e.RetryCount-1))
	e.NextRetryAt = &next
}

// IsDead reports whether the relay gave up on the entry.
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// OutboxRepository is the relay's view of the outbox table. Writes inside a
// business transaction go through the unit of work instead.
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	// FindRetryable returns FAILED entries whose NextRetryAt is before the given time.
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*OutboxEntry, error)
	// FindStaleProcessing returns PROCESSING entries last touched before the
	// given time, left behind by a relay that died mid-batch.
	FindStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*OutboxEntry, error)
	// MarkProcessing claims ids with SKIP LOCKED and returns only the rows it
	// won. PROCESSING rows are claimable once their lease expired at leaseCutoff.
	MarkProcessing(ctx context.Context, ids []uuid.UUID, leaseCutoff time.Time) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	DeleteSentBefore(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
