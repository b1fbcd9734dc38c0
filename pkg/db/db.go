// Package db provides GORM initialization with pooled connections, slow
// query logging and a transaction helper.
package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hodlfi/btclending/pkg/config"
	pkglogger "github.com/hodlfi/btclending/pkg/logger"
)

// DB wraps a gorm.DB with its configuration.
type DB struct {
	*gorm.DB
	config config.DatabaseConfig
}

// Init opens the MySQL connection, configures the pool and verifies it
// with a ping.
func Init(cfg config.DatabaseConfig) (*DB, error) {
	gl := NewGormLogger(cfg.LogEnabled, time.Duration(cfg.SlowQueryThreshold)*time.Millisecond)

	gdb, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{Logger: gl, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := sqlDB.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pkglogger.Info(context.Background(), "database connected")

	return &DB{DB: gdb, config: cfg}, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside a transaction, rolling back on error.
func (d *DB) WithTx(ctx context.Context, fn func(*gorm.DB) error) error {
	tx := d.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// GormLogger routes GORM logs through the service logger.
type GormLogger struct {
	enabled            bool
	slowQueryThreshold time.Duration
}

func NewGormLogger(enabled bool, slowQueryThreshold time.Duration) *GormLogger {
	return &GormLogger{enabled: enabled, slowQueryThreshold: slowQueryThreshold}
}

func (l *GormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.enabled {
		pkglogger.Info(ctx, msg, "data", data)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	pkglogger.Warn(ctx, msg, "data", data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	pkglogger.Error(ctx, msg, "data", data)
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sqlStr, rows := fc()

	args := []interface{}{
		"duration", elapsed,
		"rows", rows,
		"sql", sqlStr,
	}

	switch {
	case err != nil && err != gorm.ErrRecordNotFound:
		args = append(args, "error", err)
		pkglogger.Error(ctx, "sql execution failed", args...)
	case elapsed > l.slowQueryThreshold:
		pkglogger.Warn(ctx, "slow query detected", args...)
	case l.enabled:
		pkglogger.Debug(ctx, "sql executed", args...)
	}
}
