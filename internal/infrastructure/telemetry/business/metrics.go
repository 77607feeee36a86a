// Package business records order, payment and saga metrics.
package business

import (
	"context"
	"errors"

	apppayment "github.com/erp/fulfillment/internal/application/payment"
	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
)

// Metrics implements the observer hooks of the order and payment services,
// the reconciler, the gateway client and the outbox relay.
type Metrics struct {
	ordersCreated      *telemetry.Counter
	orderAmount        *telemetry.Histogram
	paymentsConcluded  *telemetry.Counter
	paymentsReconciled *telemetry.Counter
	gatewayCalls       *telemetry.Counter
	outboxRelayed      *telemetry.Counter
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		return nil, errors.New("meter is nil")
	}

	m := &Metrics{}
	var err error
	if m.ordersCreated, err = telemetry.NewCounter(meter,
		"fulfillment_order_created_total", "Orders placed", "{order}"); err != nil {
		return nil, err
	}
	if m.orderAmount, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "fulfillment_order_amount",
		Description: "Total price of placed orders after coupon discounts",
		Unit:        "{currency}",
		Boundaries:  []float64{1000, 5000, 10000, 50000, 100000, 500000, 1000000},
	}); err != nil {
		return nil, err
	}
	if m.paymentsConcluded, err = telemetry.NewCounter(meter,
		"fulfillment_payment_concluded_total", "Payments concluded by method and status", "{payment}"); err != nil {
		return nil, err
	}
	if m.paymentsReconciled, err = telemetry.NewCounter(meter,
		"fulfillment_payment_reconciled_total", "Pending payments examined by the reconciler", "{payment}"); err != nil {
		return nil, err
	}
	if m.gatewayCalls, err = telemetry.NewCounter(meter,
		"fulfillment_gateway_calls_total", "Payment gateway calls by operation and result", "{call}"); err != nil {
		return nil, err
	}
	if m.outboxRelayed, err = telemetry.NewCounter(meter,
		"fulfillment_outbox_relayed_total", "Outbox entries relayed by event and resulting status", "{event}"); err != nil {
		return nil, err
	}
	return m, nil
}

// OrderCreated counts a placed order and records its price.
func (m *Metrics) OrderCreated(ctx context.Context, totalPrice decimal.Decimal) {
	m.ordersCreated.Inc(ctx)
	m.orderAmount.Record(ctx, totalPrice.InexactFloat64())
}

// PaymentConcluded counts a payment reaching PAID or FAILED.
func (m *Metrics) PaymentConcluded(ctx context.Context, method payment.Method, status payment.Status) {
	m.paymentsConcluded.Inc(ctx,
		telemetry.AttrPaymentMethod.String(string(method)),
		telemetry.AttrPaymentStatus.String(string(status)),
	)
}

// PaymentReconciled counts one reconciler decision.
func (m *Metrics) PaymentReconciled(ctx context.Context, outcome apppayment.ReconcileOutcome) {
	m.paymentsReconciled.Inc(ctx, telemetry.AttrOutcome.String(string(outcome)))
}

// GatewayCalled counts one gateway operation after retries.
func (m *Metrics) GatewayCalled(ctx context.Context, operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.gatewayCalls.Inc(ctx,
		telemetry.AttrOperation.String(operation),
		telemetry.AttrResult.String(result),
	)
}

// OutboxRelayed counts one relay attempt.
func (m *Metrics) OutboxRelayed(ctx context.Context, eventName string, status shared.OutboxStatus) {
	m.outboxRelayed.Inc(ctx,
		telemetry.AttrEventName.String(eventName),
		telemetry.AttrOutboxStatus.String(string(status)),
	)
}
