package persistence

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func TestGormStockRepository_FindByIDForUpdate_LocksRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormStockRepository(db)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "product_options" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "name", "price", "stock_quantity"}).
			AddRow(id.String(), uuid.NewString(), "red / L", "1000", 5))

	opt, err := repo.FindByIDForUpdate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), opt.StockQuantity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormPointRepository_FindByUserIDForUpdate_LocksRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormPointRepository(db)
	userID := uuid.New()

	mock.ExpectQuery(`FROM "points" WHERE user_id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance"}).AddRow(userID.String(), "100"))

	_, err := repo.FindByUserIDForUpdate(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormInboxRepository_Inbound_UsesOnConflictDoNothing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGormInboxRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT ("event_key","event_name") DO NOTHING`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	inserted, err := repo.Inbound(context.Background(), shared.InboxEntry{EventKey: "k", EventName: "PaymentReady"})
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}
