package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/payment"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPaymentRepository implements payment.Repository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// Save inserts a payment. The unique order_id index turns a second payment
// for the same order into DUPLICATE_PAYMENT.
func (r *GormPaymentRepository) Save(ctx context.Context, p *payment.Payment) error {
	if err := DB(ctx, r.db).Create(models.PaymentModelFromDomain(p)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.NewConflictError(shared.ErrDuplicatePayment.Code,
				fmt.Sprintf("Payment already exists for order %s", p.OrderID))
		}
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

// UpdateStatus persists the payment status
func (r *GormPaymentRepository) UpdateStatus(ctx context.Context, p *payment.Payment) error {
	result := DB(ctx, r.db).Model(&models.PaymentModel{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{"status": p.Status, "updated_at": p.UpdatedAt})
	if result.Error != nil {
		return fmt.Errorf("failed to update payment status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError(fmt.Sprintf("Payment %s not found", p.ID))
	}
	return nil
}

// FindByOrderID loads the payment of an order
func (r *GormPaymentRepository) FindByOrderID(ctx context.Context, orderID order.OrderID) (*payment.Payment, error) {
	return r.findByOrderID(DB(ctx, r.db), orderID)
}

// FindByOrderIDForUpdate loads the payment with SELECT ... FOR UPDATE
func (r *GormPaymentRepository) FindByOrderIDForUpdate(ctx context.Context, orderID order.OrderID) (*payment.Payment, error) {
	return r.findByOrderID(DB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), orderID)
}

func (r *GormPaymentRepository) findByOrderID(db *gorm.DB, orderID order.OrderID) (*payment.Payment, error) {
	var model models.PaymentModel
	if err := db.Where("order_id = ?", orderID.UUID()).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError(fmt.Sprintf("Payment for order %s not found", orderID))
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	return model.ToDomain(), nil
}

// FindByStatus lists payments in status, oldest first
func (r *GormPaymentRepository) FindByStatus(ctx context.Context, status payment.Status, limit int) ([]*payment.Payment, error) {
	var rows []models.PaymentModel
	query := DB(ctx, r.db).Where("status = ?", status).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find payments by status: %w", err)
	}
	return toDomainPayments(rows), nil
}

// FindAwaitingGateway lists READY card payments whose saga requested a
// gateway transaction, oldest first
func (r *GormPaymentRepository) FindAwaitingGateway(ctx context.Context, limit int) ([]*payment.Payment, error) {
	db := DB(ctx, r.db)
	requested := db.Session(&gorm.Session{NewDB: true}).
		Model(&models.PaymentAttemptModel{}).
		Select("1").
		Where("payment_attempts.payment_id = payments.id AND payment_attempts.step = ?", payment.StepRequested)

	var rows []models.PaymentModel
	query := db.
		Where("payments.status = ? AND payments.method = ?", payment.StatusReady, payment.MethodCard).
		Where("EXISTS (?)", requested).
		Order("payments.created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find payments awaiting gateway: %w", err)
	}
	return toDomainPayments(rows), nil
}

func toDomainPayments(rows []models.PaymentModel) []*payment.Payment {
	payments := make([]*payment.Payment, len(rows))
	for i := range rows {
		payments[i] = rows[i].ToDomain()
	}
	return payments
}

// AppendAttempt inserts an attempt row; attempts are never updated
func (r *GormPaymentRepository) AppendAttempt(ctx context.Context, a *payment.Attempt) error {
	if err := DB(ctx, r.db).Create(models.PaymentAttemptModelFromDomain(a)).Error; err != nil {
		return fmt.Errorf("failed to append payment attempt: %w", err)
	}
	return nil
}

// FindAttempts lists attempts of a payment in creation order. The time
// ordered id settles attempts sharing a timestamp.
func (r *GormPaymentRepository) FindAttempts(ctx context.Context, paymentID uuid.UUID) ([]*payment.Attempt, error) {
	var rows []models.PaymentAttemptModel
	err := DB(ctx, r.db).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find payment attempts: %w", err)
	}
	attempts := make([]*payment.Attempt, len(rows))
	for i := range rows {
		attempts[i] = rows[i].ToDomain()
	}
	return attempts, nil
}

var _ payment.Repository = (*GormPaymentRepository)(nil)
