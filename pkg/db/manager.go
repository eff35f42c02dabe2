package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// instance holds the process-wide manager, initialized once
	instance *Manager
	initErr  error
	once     sync.Once
)

// NewManager opens the connection pool described by config.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dsn, err := config.GetDSN()
	if err != nil {
		return nil, fmt.Errorf("build dsn: %w", err)
	}

	stmtLogger := NewLogger(config.Logging)
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 stmtLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	return &Manager{
		config:  config,
		db:      gdb,
		sqlx:    sqlx.NewDb(sqlDB, "mysql"),
		logger:  stmtLogger,
		metrics: NewMetrics(),
	}, nil
}

// NewSingletonManager returns the process-wide manager. The first call decides
// the configuration; a failed first call is permanent until restart. Tests
// should use NewManager.
func NewSingletonManager(config *Config) (*Manager, error) {
	once.Do(func() {
		instance, initErr = NewManager(config)
	})
	if initErr != nil {
		return nil, fmt.Errorf("singleton initialization failed (permanent until restart): %w", initErr)
	}
	return instance, nil
}

// NewLogger builds the GORM statement logger used for every traced statement.
func NewLogger(cfg LoggingConfig) logger.Interface {
	return logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             cfg.SlowQueryThreshold,
		LogLevel:                  logLevel(cfg.Level),
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      !cfg.LogQueryParameters,
		Colorful:                  cfg.Colorful,
	})
}

// NewSession returns a Session bound to the pool. Sessions are cheap; use one
// per unit of work when transactions are involved.
func (m *Manager) NewSession() *Session {
	return NewSession(m.sqlx,
		WithLogger(m.logger),
		WithMetrics(m.metrics),
		WithQueryTimeout(m.config.QueryTimeout))
}

// AutoMigrate creates or extends tables for the given GORM models.
func (m *Manager) AutoMigrate(ctx context.Context, models ...any) error {
	if err := m.db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// DB returns the GORM database instance
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Sqlx returns the sqlx handle sharing the GORM pool
func (m *Manager) Sqlx() *sqlx.DB {
	return m.sqlx
}

// SqlDB returns the underlying sql.DB instance
func (m *Manager) SqlDB() (*sql.DB, error) {
	return m.db.DB()
}

// Metrics returns the statement metrics shared by all sessions of this manager
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Ping tests the database connection
func (m *Manager) Ping(ctx context.Context) error {
	return m.sqlx.PingContext(ctx)
}

// Stats returns database connection statistics
func (m *Manager) Stats() sql.DBStats {
	return m.sqlx.Stats()
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.sqlx == nil {
		return nil
	}
	return m.sqlx.Close()
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "info":
		return logger.Info
	case "warn":
		return logger.Warn
	case "silent":
		return logger.Silent
	default:
		return logger.Error
	}
}
