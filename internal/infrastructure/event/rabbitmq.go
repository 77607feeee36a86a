package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/fulfillment/internal/infrastructure/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const rabbitDialAttempts = 10

// amqpChannel is the subset of *amqp.Channel the transport uses
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQTransport publishes envelopes as persistent messages
type RabbitMQTransport struct {
	conn       *amqp.Connection
	channel    amqpChannel
	exchange   string
	routingKey string
	logger     *zap.Logger
}

// NewRabbitMQTransport dials the broker and declares the durable queue.
// When an exchange is configured the queue is bound to it with the queue
// name as routing key.
func NewRabbitMQTransport(cfg config.RabbitMQConfig, logger *zap.Logger) (*RabbitMQTransport, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < rabbitDialAttempts; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		logger.Warn("failed to connect to rabbitmq, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to declare exchange: %w", err)
		}
		if err := ch.QueueBind(cfg.Queue, cfg.Queue, cfg.Exchange, false, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to bind queue: %w", err)
		}
	}

	t := newRabbitMQTransport(ch, cfg.Exchange, cfg.Queue, logger)
	t.conn = conn
	return t, nil
}

func newRabbitMQTransport(ch amqpChannel, exchange, routingKey string, logger *zap.Logger) *RabbitMQTransport {
	return &RabbitMQTransport{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}
}

// Send publishes the entry envelope. The event key becomes the message id
// so consumers can dedup on it.
func (t *RabbitMQTransport) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(NewEnvelope(msg.Entry))
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	err = t.channel.PublishWithContext(ctx, t.exchange, t.routingKey, false, false, amqp.Publishing{
		MessageId:    msg.Entry.EventKey.String(),
		Type:         msg.Entry.EventName,
		ContentType:  "application/json",
		Timestamp:    msg.Entry.CreatedAt,
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	t.logger.Debug("published to rabbitmq",
		zap.String("event_key", msg.Entry.EventKey.String()),
		zap.String("event_name", msg.Entry.EventName),
		zap.String("routing_key", t.routingKey),
	)
	return nil
}

// Close closes the channel and the connection
func (t *RabbitMQTransport) Close() error {
	err := t.channel.Close()
	if t.conn != nil {
		if cerr := t.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
