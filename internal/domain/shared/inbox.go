package shared

import (
	"context"
	"time"
)

// InboxEntry records a handled (eventKey, eventName) pair
type InboxEntry struct {
	EventKey  string
	EventName string
	Payload   []byte
	CreatedAt time.Time
}

// InboxRepository is the dedup ledger for consumed events.
// Inbound must run inside the consumer's transaction, before any side effect.
type InboxRepository interface {
	// Inbound inserts the entry if absent. It returns false when the pair was
	// already recorded, which callers treat as "already handled".
	Inbound(ctx context.Context, entry InboxEntry) (bool, error)
	// Exists reports whether the pair was recorded
	Exists(ctx context.Context, eventKey, eventName string) (bool, error)
}
