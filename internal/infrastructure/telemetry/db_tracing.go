package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/meetprep/backend/internal/infrastructure/config"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type contextKey string

const queryStartTimeKey contextKey = "otel_query_start_time"

// DBTracing registers otelgorm spans plus a slow query marker on a gorm DB
type DBTracing struct {
	logFullSQL bool
	slowQuery  time.Duration
	logger     *zap.Logger
}

// NewDBTracing creates the tracing plugin from the telemetry settings
func NewDBTracing(cfg config.TelemetryConfig, logger *zap.Logger) *DBTracing {
	return &DBTracing{
		logFullSQL: cfg.DBLogFullSQL,
		slowQuery:  cfg.DBSlowQueryThresh,
		logger:     logger,
	}
}

// Register installs the plugin. Query variables are stripped unless full SQL logging is on.
func (p *DBTracing) Register(db *gorm.DB) error {
	opts := []otelgorm.Option{otelgorm.WithDBName("postgresql")}
	if !p.logFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	if err := registerAround(db, p.before, p.after); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", p.logFullSQL),
		zap.Duration("slow_query_threshold", p.slowQuery),
	)
	return nil
}

// registerAround brackets the gorm operations. The after hooks run before otelgorm ends its span.
func registerAround(db *gorm.DB, before, after func(*gorm.DB)) error {
	cb := db.Callback()
	steps := []struct {
		name   string
		before func() error
		after  func() error
	}{
		{"create",
			func() error { return cb.Create().Before("gorm:create").Register("meetprep:before_create", before) },
			func() error {
				return cb.Create().After("gorm:create").Before("otel:after:create").Register("meetprep:after_create", after)
			}},
		{"query",
			func() error { return cb.Query().Before("gorm:query").Register("meetprep:before_query", before) },
			func() error {
				return cb.Query().After("gorm:query").Before("otel:after:select").Register("meetprep:after_query", after)
			}},
		{"update",
			func() error { return cb.Update().Before("gorm:update").Register("meetprep:before_update", before) },
			func() error {
				return cb.Update().After("gorm:update").Before("otel:after:update").Register("meetprep:after_update", after)
			}},
		{"delete",
			func() error { return cb.Delete().Before("gorm:delete").Register("meetprep:before_delete", before) },
			func() error {
				return cb.Delete().After("gorm:delete").Before("otel:after:delete").Register("meetprep:after_delete", after)
			}},
		{"raw",
			func() error { return cb.Raw().Before("gorm:raw").Register("meetprep:before_raw", before) },
			func() error {
				return cb.Raw().After("gorm:raw").Before("otel:after:raw").Register("meetprep:after_raw", after)
			}},
	}
	for _, s := range steps {
		if err := s.before(); err != nil {
			return err
		}
		if err := s.after(); err != nil {
			return err
		}
	}
	return nil
}

func (p *DBTracing) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartTimeKey, time.Now())
	}
}

func (p *DBTracing) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	start, ok := ctx.Value(queryStartTimeKey).(time.Time)
	if !ok || p.slowQuery <= 0 {
		return
	}
	if elapsed := time.Since(start); elapsed > p.slowQuery {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}
}
