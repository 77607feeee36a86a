package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erp/fulfillment/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database owns the GORM handle shared by every repository and the unit of work.
type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the Postgres pool and pings it. A nil gormLogger silences GORM.
// TranslateError is on so unique violations surface as gorm.ErrDuplicatedKey,
// which the order and payment repositories rely on.
func NewDatabase(cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{DB: db}
	sqlDB, err := d.SQL()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return d, nil
}

// SQL returns the pooled *sql.DB behind GORM.
func (d *Database) SQL() (*sql.DB, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.SQL()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PingContext satisfies the health probe.
func (d *Database) PingContext(ctx context.Context) error {
	sqlDB, err := d.SQL()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
