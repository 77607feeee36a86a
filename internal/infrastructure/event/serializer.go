package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
)

// EventSerializer maps event names to Go types for outbox round trips
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type
}

// NewEventSerializer creates an empty serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		registry: make(map[string]reflect.Type),
	}
}

// NewFulfillmentSerializer returns a serializer that knows every order and
// payment event
func NewFulfillmentSerializer() *EventSerializer {
	s := NewEventSerializer()
	s.Register(order.OrderCreatedEventType, &order.OrderCreatedEvent{})
	s.Register(order.OrderCompletedEventType, &order.OrderStatusChangedEvent{})
	s.Register(order.OrderCanceledEventType, &order.OrderStatusChangedEvent{})
	s.Register(payment.PaymentReadyEventType, &payment.PaymentReadyEvent{})
	s.Register(payment.PaymentConcludedEventType, &payment.PaymentConcludedEvent{})
	return s
}

// Register binds eventType to the concrete type of eventInstance
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = t
}

// Serialize encodes an event as JSON
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", event.EventType(), err)
	}
	return data, nil
}

// Deserialize decodes data into a new instance of the type registered for eventType
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.registry[eventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	eventPtr := reflect.New(t).Interface()
	if err := json.Unmarshal(data, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized object does not implement DomainEvent")
	}
	return event, nil
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns the registered event names, sorted
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Envelope is the broker message body for a relayed outbox entry
type Envelope struct {
	EventKey      uuid.UUID       `json:"event_key"`
	EventName     string          `json:"event_name"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps an outbox entry for a broker transport
func NewEnvelope(entry *shared.OutboxEntry) Envelope {
	return Envelope{
		EventKey:      entry.EventKey,
		EventName:     entry.EventName,
		AggregateType: entry.AggregateType,
		AggregateID:   entry.AggregateID,
		OccurredAt:    entry.CreatedAt,
		Payload:       json.RawMessage(entry.Payload),
	}
}
