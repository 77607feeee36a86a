package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/erp/fulfillment/internal/infrastructure/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Kafka header names set on every relayed record
const (
	HeaderEventKey  = "event_key"
	HeaderEventName = "event_name"
)

// KafkaTransport produces envelopes to a single topic keyed by aggregate id,
// so events of one aggregate stay in partition order.
type KafkaTransport struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaConfig returns the producer settings used by the transport
func NewKafkaConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_8_0_0
	return cfg
}

// NewKafkaTransport connects a synchronous producer to the brokers
func NewKafkaTransport(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaTransport, error) {
	p, err := sarama.NewSyncProducer(cfg.Brokers, NewKafkaConfig(cfg.ClientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return newKafkaTransport(p, cfg.Topic, logger), nil
}

func newKafkaTransport(p sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaTransport {
	return &KafkaTransport{producer: p, topic: topic, logger: logger}
}

// Send produces the envelope and waits for the broker ack. The trace
// context of ctx travels in the record headers.
func (t *KafkaTransport) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(NewEnvelope(msg.Entry))
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderEventKey), Value: []byte(msg.Entry.EventKey.String())},
		{Key: []byte(HeaderEventName), Value: []byte(msg.Entry.EventName)},
	}
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := t.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   t.topic,
		Key:     sarama.StringEncoder(msg.Entry.AggregateID),
		Value:   sarama.ByteEncoder(body),
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	t.logger.Debug("produced to kafka",
		zap.String("event_key", msg.Entry.EventKey.String()),
		zap.String("event_name", msg.Entry.EventName),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer
func (t *KafkaTransport) Close() error {
	return t.producer.Close()
}
