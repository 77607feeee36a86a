package shared

import "context"

// EventHandler reacts to committed domain events. The saga orchestrator is the
// main implementation; it is always wrapped by the inbox guard before being
// subscribed so a redelivered event never runs its effects twice.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the event names the handler consumes. Empty means all.
	EventTypes() []string
}

// EventPublisher hands events to in-process subscribers after commit.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus is the in-process dispatcher the unit of work publishes to and
// the outbox relay delivers to when the memory transport is selected.
type EventBus interface {
	EventPublisher
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
