package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds MySQL connection, pool and statement logging configuration
type Config struct {
	// Connection Settings
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`

	// Connection Pool Settings
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`

	// MySQL Specific Settings
	Collation string `json:"collation" yaml:"collation"` // Default: utf8mb4_unicode_ci
	TimeZone  string `json:"timezone" yaml:"timezone"`   // Default: UTC

	// Statement timeout applied by Session when the caller's context has none
	QueryTimeout time.Duration `json:"query_timeout" yaml:"query_timeout"`

	SSL     SSLConfig     `json:"ssl" yaml:"ssl"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SSLConfig holds SSL/TLS configuration for MySQL
type SSLConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	CertFile   string `json:"cert_file" yaml:"cert_file"`
	KeyFile    string `json:"key_file" yaml:"key_file"`
	CAFile     string `json:"ca_file" yaml:"ca_file"`
	SkipVerify bool   `json:"skip_verify" yaml:"skip_verify"`
	ServerName string `json:"server_name" yaml:"server_name"`
}

// LoggingConfig controls statement logging
type LoggingConfig struct {
	Level              string        `json:"level" yaml:"level"` // silent, error, warn, info
	SlowQueryThreshold time.Duration `json:"slow_query_threshold" yaml:"slow_query_threshold"`
	LogQueryParameters bool          `json:"log_query_parameters" yaml:"log_query_parameters"`
	Colorful           bool          `json:"colorful" yaml:"colorful"`
}

// Manager owns the connection pool. GORM opens and configures the pool;
// Session runs the builder's named-parameter statements on the same *sql.DB.
type Manager struct {
	config  *Config
	db      *gorm.DB
	sqlx    *sqlx.DB
	logger  logger.Interface
	metrics *Metrics
}

// Row is the current result row handed to a RowMapper. *sqlx.Rows satisfies it.
type Row interface {
	Scan(dest ...any) error
	StructScan(dest any) error
	MapScan(dest map[string]any) error
}

// RowMapper turns one result row into one value.
type RowMapper[T any] func(row Row) (T, error)

// Executor runs rendered SQL text with named parameters (":name").
// Collection values bind to IN / NOT IN lists.
type Executor interface {
	// QueryRows runs a read statement and calls each for every row, in order.
	QueryRows(ctx context.Context, query string, params map[string]any, each func(Row) error) error

	// QueryScalar runs a single-row single-column statement.
	// A missing row or a NULL value is reported as an invalid NullInt64.
	QueryScalar(ctx context.Context, query string, params map[string]any) (sql.NullInt64, error)

	// Exec runs an INSERT/UPDATE. When wantKey is true and the driver reports
	// a generated key, it is returned with ok set.
	Exec(ctx context.Context, query string, params map[string]any, wantKey bool) (key int64, ok bool, err error)
}

// QueryAll runs query and maps every row through mapper. It never returns a
// nil slice on success.
func QueryAll[T any](ctx context.Context, exec Executor, query string, params map[string]any, mapper RowMapper[T]) ([]T, error) {
	if exec == nil {
		return nil, ErrNoExecutor
	}
	if mapper == nil {
		return nil, ErrNoRowMapper
	}

	results := make([]T, 0)
	err := exec.QueryRows(ctx, query, params, func(row Row) error {
		item, err := mapper(row)
		if err != nil {
			return err
		}
		results = append(results, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// StructMapper maps rows onto T using sqlx's `db` tag matching.
func StructMapper[T any]() RowMapper[T] {
	return func(row Row) (T, error) {
		var item T
		err := row.StructScan(&item)
		return item, err
	}
}
