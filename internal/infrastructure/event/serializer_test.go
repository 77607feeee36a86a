package event

import (
	"encoding/json"
	"testing"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFulfillmentSerializer_RegistersDomainEvents(t *testing.T) {
	s := NewFulfillmentSerializer()

	assert.Equal(t, []string{
		order.OrderCanceledEventType,
		order.OrderCompletedEventType,
		order.OrderCreatedEventType,
		payment.PaymentConcludedEventType,
		payment.PaymentReadyEventType,
	}, s.RegisteredTypes())
}

func TestEventSerializer_RoundTripsPaymentReady(t *testing.T) {
	s := NewFulfillmentSerializer()
	orderID := uuid.Must(uuid.NewV7()).String()
	evt := &payment.PaymentReadyEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(payment.PaymentReadyEventType, payment.AggregateTypePayment, uuid.NewString()),
		PaymentID:       uuid.New(),
		OrderID:         orderID,
		UserID:          uuid.New(),
		Method:          payment.MethodCard,
		Amount:          decimal.NewFromInt(15000),
	}

	data, err := s.Serialize(evt)
	require.NoError(t, err)

	decoded, err := s.Deserialize(payment.PaymentReadyEventType, data)
	require.NoError(t, err)

	ready, ok := decoded.(*payment.PaymentReadyEvent)
	require.True(t, ok)
	assert.Equal(t, evt.EventID(), ready.EventID())
	assert.Equal(t, orderID, ready.OrderID)
	assert.Equal(t, payment.MethodCard, ready.Method)
	assert.True(t, evt.Amount.Equal(ready.Amount))
}

func TestEventSerializer_UnknownType(t *testing.T) {
	s := NewEventSerializer()

	_, err := s.Deserialize("Nope", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
	assert.False(t, s.IsRegistered("Nope"))
}

func TestEventSerializer_InvalidPayload(t *testing.T) {
	s := newTestSerializer()

	_, err := s.Deserialize(testEventType, []byte(`{not json`))
	require.Error(t, err)
}

func TestNewEnvelope_EmbedsPayload(t *testing.T) {
	evt := newTestEvent(testEventType)
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	entry := shared.NewOutboxEntry(evt, payload)

	body, err := json.Marshal(NewEnvelope(entry))
	require.NoError(t, err)

	var decoded struct {
		EventKey  string         `json:"event_key"`
		EventName string         `json:"event_name"`
		Payload   map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, evt.EventID().String(), decoded.EventKey)
	assert.Equal(t, testEventType, decoded.EventName)
	assert.Equal(t, "test data", decoded.Payload["data"])
}
