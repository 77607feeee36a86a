package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/erp/fulfillment/internal/infrastructure/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSlowQueryThreshold = 200 * time.Millisecond

type contextKey string

const queryStartTimeKey contextKey = "otel_query_start_time"

// DBInstrumentation traces GORM statements through otelgorm and records
// their latency in db_query_duration_seconds.
type DBInstrumentation struct {
	traceEnabled bool
	logFullSQL   bool
	slowQuery    time.Duration
	duration     *Histogram
	logger       *zap.Logger
}

// NewDBInstrumentation builds the plugin from the telemetry config.
func NewDBInstrumentation(cfg config.TelemetryConfig, meter *MeterProvider, logger *zap.Logger) (*DBInstrumentation, error) {
	duration, err := NewHistogram(meter.Meter(TracerName), HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	slow := cfg.DBSlowQueryThresh
	if slow <= 0 {
		slow = defaultSlowQueryThreshold
	}
	return &DBInstrumentation{
		traceEnabled: cfg.Enabled && cfg.DBTraceEnabled,
		logFullSQL:   cfg.DBLogFullSQL,
		slowQuery:    slow,
		duration:     duration,
		logger:       logger,
	}, nil
}

// Register installs otelgorm (when tracing is on) and the timing callbacks.
func (p *DBInstrumentation) Register(db *gorm.DB) error {
	if p.traceEnabled {
		opts := []otelgorm.Option{otelgorm.WithDBName("postgresql")}
		if !p.logFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
	}

	cb := db.Callback()
	errs := []error{
		cb.Create().Before("gorm:create").Register("fulfillment:before_create", p.before),
		cb.Query().Before("gorm:query").Register("fulfillment:before_query", p.before),
		cb.Update().Before("gorm:update").Register("fulfillment:before_update", p.before),
		cb.Delete().Before("gorm:delete").Register("fulfillment:before_delete", p.before),
		cb.Row().Before("gorm:row").Register("fulfillment:before_row", p.before),
		cb.Raw().Before("gorm:raw").Register("fulfillment:before_raw", p.before),

		cb.Create().After("gorm:create").Register("fulfillment:after_create", p.after("create")),
		cb.Query().After("gorm:query").Register("fulfillment:after_query", p.after("select")),
		cb.Update().After("gorm:update").Register("fulfillment:after_update", p.after("update")),
		cb.Delete().After("gorm:delete").Register("fulfillment:after_delete", p.after("delete")),
		cb.Row().After("gorm:row").Register("fulfillment:after_row", p.after("row")),
		cb.Raw().After("gorm:raw").Register("fulfillment:after_raw", p.after("raw")),
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	p.logger.Info("Database instrumentation registered",
		zap.Bool("tracing", p.traceEnabled),
		zap.Bool("log_full_sql", p.logFullSQL),
		zap.Duration("slow_query_threshold", p.slowQuery),
	)
	return nil
}

func (p *DBInstrumentation) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
	}
}

func (p *DBInstrumentation) after(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		start, ok := ctx.Value(queryStartTimeKey).(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)
		p.duration.RecordDuration(ctx, elapsed, AttrDBOperation.String(operation))

		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return
		}
		if db.Statement.Table != "" {
			span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
		}
		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			RecordError(span, db.Error)
		}
		if elapsed > p.slowQuery {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
