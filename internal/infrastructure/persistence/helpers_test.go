package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/erp/fulfillment/internal/domain/order"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/domain/stock"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// jsonOutbox writes staged events to the outbox table as plain JSON
type jsonOutbox struct{}

func (jsonOutbox) SaveWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	for _, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		entry := shared.NewOutboxEntry(evt, payload)
		if err := tx.WithContext(ctx).Create(models.OutboxEntryModelFromDomain(entry)).Error; err != nil {
			return err
		}
	}
	return nil
}

type capturePublisher struct {
	published []shared.DomainEvent
}

func (c *capturePublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	c.published = append(c.published, events...)
	return nil
}

func newTestUnitOfWork(db *gorm.DB, opts ...UnitOfWorkOption) *GormUnitOfWork {
	return NewUnitOfWork(db, jsonOutbox{}, zap.NewNop(), opts...)
}

func countOutbox(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.OutboxEntryModel{}).Count(&n).Error)
	return n
}

func seedOption(t *testing.T, db *gorm.DB, qty int64, price int64) *stock.Option {
	t.Helper()
	opt := &stock.Option{
		ID:            uuid.New(),
		ProductID:     uuid.New(),
		Name:          "option",
		Price:         decimal.NewFromInt(price),
		StockQuantity: qty,
	}
	require.NoError(t, NewGormStockRepository(db).Save(context.Background(), opt))
	return opt
}

func newTestOrder(t *testing.T, optionIDs ...uuid.UUID) *order.Order {
	t.Helper()
	products := make([]order.Product, 0, len(optionIDs))
	for _, id := range optionIDs {
		p, err := order.NewProduct(id, 2, decimal.NewFromInt(1000))
		require.NoError(t, err)
		products = append(products, p)
	}
	o, err := order.NewOrder(uuid.New(), products, nil, decimal.Zero)
	require.NoError(t, err)
	o.CreatedAt = o.CreatedAt.Truncate(time.Microsecond)
	o.UpdatedAt = o.CreatedAt
	return o
}
