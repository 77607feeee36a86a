package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Message is one claimed outbox entry together with its decoded event
type Message struct {
	Entry *shared.OutboxEntry
	Event shared.DomainEvent
}

// Transport delivers relayed outbox entries. Send returning nil means the
// message was handed off; any error schedules a retry.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// BusTransport hands messages to an in-process publisher
type BusTransport struct {
	publisher shared.EventPublisher
}

// NewBusTransport creates a transport backed by publisher
func NewBusTransport(publisher shared.EventPublisher) *BusTransport {
	return &BusTransport{publisher: publisher}
}

// Send publishes the decoded event
func (t *BusTransport) Send(ctx context.Context, msg Message) error {
	return t.publisher.Publish(ctx, msg.Event)
}

// Close is a no-op
func (t *BusTransport) Close() error { return nil }

// FanoutTransport sends every message to each of its transports. A failure
// on any of them fails the message, so the relay retries all of them; local
// consumers sit behind the inbox guard and ignore the repeat.
type FanoutTransport struct {
	transports []Transport
}

// NewFanoutTransport creates a transport that delivers to all of transports
func NewFanoutTransport(transports ...Transport) *FanoutTransport {
	return &FanoutTransport{transports: transports}
}

// Send delivers msg to every transport and joins their errors
func (t *FanoutTransport) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, tr := range t.transports {
		if err := tr.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport
func (t *FanoutTransport) Close() error {
	var errs []error
	for _, tr := range t.transports {
		if err := tr.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewTransport builds the transport selected by cfg.Event.Transport. The
// memory transport delivers to bus; the broker transports publish to the
// broker and still deliver to bus, which carries the payment saga.
func NewTransport(cfg *config.Config, bus shared.EventPublisher, logger *zap.Logger) (Transport, error) {
	var (
		broker Transport
		err    error
	)
	switch cfg.Event.Transport {
	case config.TransportMemory, "":
		return NewBusTransport(bus), nil
	case config.TransportRabbitMQ:
		broker, err = NewRabbitMQTransport(cfg.RabbitMQ, logger)
	case config.TransportKafka:
		broker, err = NewKafkaTransport(cfg.Kafka, logger)
	default:
		return nil, fmt.Errorf("unknown event transport %q", cfg.Event.Transport)
	}
	if err != nil {
		return nil, err
	}
	return NewFanoutTransport(broker, NewBusTransport(bus)), nil
}
