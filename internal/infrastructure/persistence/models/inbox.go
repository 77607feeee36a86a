package models

import (
	"time"

	"github.com/erp/fulfillment/internal/domain/shared"
)

// InboxModel records consumed events; (event_key, event_name) is unique
type InboxModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	EventKey  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_inbox_event,priority:1"`
	EventName string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_inbox_event,priority:2"`
	Payload   []byte    `gorm:"type:jsonb"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InboxModel) TableName() string {
	return "inboxes"
}

// InboxModelFromDomain creates a persistence model from a domain entry
func InboxModelFromDomain(e shared.InboxEntry) *InboxModel {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &InboxModel{
		EventKey:  e.EventKey,
		EventName: e.EventName,
		Payload:   e.Payload,
		CreatedAt: createdAt,
	}
}
