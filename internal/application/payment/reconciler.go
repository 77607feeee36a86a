package payment

import (
	"context"
	"errors"

	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ReconcileOutcome is what one pass did with one READY payment
type ReconcileOutcome string

const (
	ReconcilePaid          ReconcileOutcome = "paid"
	ReconcileFailed        ReconcileOutcome = "failed"
	ReconcileNoTransaction ReconcileOutcome = "no_transaction"
	ReconcilePending       ReconcileOutcome = "pending"
	ReconcileRaced         ReconcileOutcome = "already_concluded"
	ReconcileError         ReconcileOutcome = "error"
)

// ReconcileObserver is told the outcome for each payment of a pass
type ReconcileObserver interface {
	PaymentReconciled(ctx context.Context, outcome ReconcileOutcome)
}

// ReconcileStats summarises one pass
type ReconcileStats map[ReconcileOutcome]int

// Reconciler resolves card payments left READY after their gateway
// transaction was requested, by asking the gateway what happened to them
type Reconciler struct {
	svc       *Service
	gateway   payment.Gateway
	batchSize int
	observer  ReconcileObserver
	logger    *zap.Logger
}

// NewReconciler creates a reconciler handling up to batchSize payments per
// pass; zero means no limit
func NewReconciler(svc *Service, gateway payment.Gateway, batchSize int, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		svc:       svc,
		gateway:   gateway,
		batchSize: batchSize,
		logger:    logger,
	}
}

// SetObserver reports per-payment outcomes to o
func (r *Reconciler) SetObserver(o ReconcileObserver) {
	r.observer = o
}

// Run is one reconciliation pass. Errors for one payment are logged and the
// pass moves on; only failing to list pending payments fails the pass.
func (r *Reconciler) Run(ctx context.Context) error {
	_, err := r.Reconcile(ctx)
	return err
}

// Reconcile is Run returning per-outcome counts
func (r *Reconciler) Reconcile(ctx context.Context) (_ ReconcileStats, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "reconcile", telemetry.SpanAttrBatchSize, r.batchSize)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	pending, err := r.svc.FindAwaitingGateway(ctx, r.batchSize)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(span, "pending", len(pending))

	stats := ReconcileStats{}
	for _, p := range pending {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		outcome := r.reconcileOne(ctx, p)
		stats[outcome]++
		if r.observer != nil {
			r.observer.PaymentReconciled(ctx, outcome)
		}
	}

	if len(pending) > 0 {
		r.logger.Info("Reconciliation pass finished",
			zap.Int("pending", len(pending)),
			zap.Int("paid", stats[ReconcilePaid]),
			zap.Int("failed", stats[ReconcileFailed]),
			zap.Int("skipped", stats[ReconcileNoTransaction]+stats[ReconcilePending]),
			zap.Int("errors", stats[ReconcileError]),
		)
	}
	return stats, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, p *payment.Payment) ReconcileOutcome {
	log := r.logger.With(
		zap.String("payment_id", p.ID.String()),
		zap.String("order_id", p.OrderID.String()),
	)

	txs, err := r.gateway.GetTransactions(ctx, p.OrderID)
	if err != nil {
		log.Warn("Gateway lookup failed", zap.Error(err))
		return ReconcileError
	}

	outcome, result := Decide(txs)
	if outcome == nil {
		return result
	}
	if result == ReconcilePaid && countStatus(txs, payment.TransactionSuccess) > 1 {
		log.Warn("Gateway reports several successful transactions, using the first",
			zap.String("transaction_key", outcome.TransactionKey),
		)
	}

	err = r.svc.ConcludeRequested(ctx, p.OrderID, *outcome)
	switch {
	case err == nil:
		return result
	case errors.Is(err, shared.ErrAlreadyConcluded):
		return ReconcileRaced
	default:
		log.Error("Failed to conclude reconciled payment", zap.Error(err))
		return ReconcileError
	}
}

// Decide maps the gateway's transactions for an order to an outcome. The
// first SUCCESS in gateway order wins. Without one, any PENDING defers the
// decision; otherwise the first FAILED fails the payment. A nil outcome means
// nothing is concluded.
func Decide(txs []payment.Transaction) (*Outcome, ReconcileOutcome) {
	if len(txs) == 0 {
		return nil, ReconcileNoTransaction
	}
	for _, tx := range txs {
		if tx.Status == payment.TransactionSuccess {
			o := Paid(tx.TransactionKey)
			return &o, ReconcilePaid
		}
	}
	if countStatus(txs, payment.TransactionPending) > 0 {
		return nil, ReconcilePending
	}
	for _, tx := range txs {
		if tx.Status == payment.TransactionFailed {
			o := Failed(tx.TransactionKey, tx.Reason)
			return &o, ReconcileFailed
		}
	}
	return nil, ReconcilePending
}

func countStatus(txs []payment.Transaction, status payment.TransactionStatus) int {
	n := 0
	for _, tx := range txs {
		if tx.Status == status {
			n++
		}
	}
	return n
}
