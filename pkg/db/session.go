package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jmoiron/sqlx"
	"gorm.io/gorm/logger"
)

// Session executes named-parameter statements and owns at most one open
// transaction. While a transaction is open every statement runs inside it.
//
// Statement execution is safe for concurrent use; transaction control is
// meant for a single owner.
type Session struct {
	db      *sqlx.DB
	logger  logger.Interface
	metrics *Metrics
	timeout time.Duration

	mu sync.Mutex
	tx *sqlx.Tx
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithLogger traces every statement through l
func WithLogger(l logger.Interface) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithMetrics records statement statistics into m
func WithMetrics(m *Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithQueryTimeout bounds statements whose context carries no deadline
func WithQueryTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.timeout = d }
}

// NewSession wraps an sqlx handle. Without options the session logs nothing
// and keeps its own metrics.
func NewSession(db *sqlx.DB, opts ...SessionOption) *Session {
	s := &Session{
		db:      db,
		logger:  logger.Discard,
		metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the session's statement metrics
func (s *Session) Metrics() *Metrics {
	return s.metrics
}

// QueryRows implements Executor
func (s *Session) QueryRows(ctx context.Context, query string, params map[string]any, each func(Row) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ext := s.ext()
	bound, args, err := bind(ext, query, params)
	if err != nil {
		return err
	}

	start := time.Now()
	count := 0
	err = func() error {
		rows, err := ext.QueryxContext(ctx, bound, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			if err := each(rows); err != nil {
				return err
			}
			count++
		}
		return rows.Err()
	}()

	s.trace(ctx, start, bound, int64(count), err)
	if err != nil {
		s.metrics.RecordError()
		return err
	}
	s.metrics.RecordQuery(time.Since(start), count)
	return nil
}

// QueryScalar implements Executor
func (s *Session) QueryScalar(ctx context.Context, query string, params map[string]any) (sql.NullInt64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ext := s.ext()
	bound, args, err := bind(ext, query, params)
	if err != nil {
		return sql.NullInt64{}, err
	}

	start := time.Now()
	var value sql.NullInt64
	err = ext.QueryRowxContext(ctx, bound, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
	}

	s.trace(ctx, start, bound, 1, err)
	if err != nil {
		s.metrics.RecordError()
		return sql.NullInt64{}, err
	}
	s.metrics.RecordScalar(time.Since(start))
	return value, nil
}

// Exec implements Executor
func (s *Session) Exec(ctx context.Context, query string, params map[string]any, wantKey bool) (int64, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ext := s.ext()
	bound, args, err := bind(ext, query, params)
	if err != nil {
		return 0, false, err
	}

	start := time.Now()
	result, err := ext.ExecContext(ctx, bound, args...)
	var affected int64
	if err == nil {
		affected, _ = result.RowsAffected()
	}

	s.trace(ctx, start, bound, affected, err)
	if err != nil {
		s.metrics.RecordError()
		return 0, false, err
	}
	s.metrics.RecordExec(time.Since(start))

	if !wantKey {
		return 0, false, nil
	}
	// MySQL reports 0 when the table has no AUTO_INCREMENT column.
	id, err := result.LastInsertId()
	if err != nil || id == 0 {
		return 0, false, nil
	}
	return id, true, nil
}

// Begin opens a transaction
func (s *Session) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		return ErrTransactionActive
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	s.tx = tx
	s.metrics.recordBegin()
	return nil
}

// Commit commits the open transaction
func (s *Session) Commit() error {
	tx, err := s.takeTx()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.metrics.recordCommit()
	return nil
}

// Rollback aborts the open transaction
func (s *Session) Rollback() error {
	tx, err := s.takeTx()
	if err != nil {
		return err
	}
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	s.metrics.recordRollback()
	return nil
}

// InTransaction reports whether a transaction is open
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

// Transaction runs fn inside a transaction, committing when fn returns nil
// and rolling back otherwise (including on panic).
func (s *Session) Transaction(ctx context.Context, fn func(*Session) error) (err error) {
	if err := s.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = s.Rollback()
			panic(p)
		}
	}()

	if err := fn(s); err != nil {
		if rbErr := s.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return s.Commit()
}

// Close rolls back a transaction left open. The pool stays with the Manager.
func (s *Session) Close() error {
	if !s.InTransaction() {
		return nil
	}
	return s.Rollback()
}

func (s *Session) takeTx() (*sqlx.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx == nil {
		return nil, ErrNoTransaction
	}
	tx := s.tx
	s.tx = nil
	return tx, nil
}

func (s *Session) ext() sqlx.ExtContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Session) trace(ctx context.Context, start time.Time, query string, rows int64, err error) {
	s.logger.Trace(ctx, start, func() (string, int64) {
		return fmt.Sprintf("/* %s */ %s", Fingerprint(query), query), rows
	}, err)
}

// Fingerprint returns a short stable hash of a statement's text, used to
// correlate log lines and events for the same statement shape.
func Fingerprint(query string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(query))
}

// bind turns ":name" placeholders into the driver's positional form and
// expands collection values into IN lists.
func bind(ext sqlx.ExtContext, query string, params map[string]any) (string, []any, error) {
	if params == nil {
		params = map[string]any{}
	}

	named, args, err := sqlx.Named(query, params)
	if err != nil {
		return "", nil, fmt.Errorf("bind named parameters: %w", err)
	}

	expanded, args, err := sqlx.In(named, args...)
	if err != nil {
		return "", nil, fmt.Errorf("expand collection parameters: %w", err)
	}

	return ext.Rebind(expanded), args, nil
}
