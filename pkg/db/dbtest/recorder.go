// Package dbtest provides an in-memory db.Executor that records every
// statement, for testing code built on querykit without a database.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx/reflectx"

	"github.com/ammar0144/querykit/pkg/db"
)

// Statement kinds recorded by Recorder
const (
	KindQuery  = "query"
	KindScalar = "scalar"
	KindExec   = "exec"
)

// Statement is one captured executor call
type Statement struct {
	Kind    string
	SQL     string
	Params  map[string]any
	WantKey bool
}

// Recorder implements db.Executor. Rows are served to every QueryRows call,
// Scalar to every QueryScalar call, and Exec hands out increasing keys
// starting after LastKey. Thread-safe.
type Recorder struct {
	Rows    []map[string]any
	Scalar  sql.NullInt64
	LastKey int64
	NoKeys  bool

	// Fail, when set, is consulted before each statement; a non-nil result
	// is returned as the statement's error.
	Fail func(Statement) error

	mu         sync.Mutex
	statements []Statement
}

var _ db.Executor = (*Recorder)(nil)

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// QueryRows implements db.Executor
func (r *Recorder) QueryRows(_ context.Context, query string, params map[string]any, each func(db.Row) error) error {
	if err := r.record(Statement{Kind: KindQuery, SQL: query, Params: params}); err != nil {
		return err
	}
	for _, values := range r.Rows {
		if err := each(&Row{values: values}); err != nil {
			return err
		}
	}
	return nil
}

// QueryScalar implements db.Executor
func (r *Recorder) QueryScalar(_ context.Context, query string, params map[string]any) (sql.NullInt64, error) {
	if err := r.record(Statement{Kind: KindScalar, SQL: query, Params: params}); err != nil {
		return sql.NullInt64{}, err
	}
	return r.Scalar, nil
}

// Exec implements db.Executor
func (r *Recorder) Exec(_ context.Context, query string, params map[string]any, wantKey bool) (int64, bool, error) {
	if err := r.record(Statement{Kind: KindExec, SQL: query, Params: params, WantKey: wantKey}); err != nil {
		return 0, false, err
	}
	if !wantKey || r.NoKeys {
		return 0, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.LastKey++
	return r.LastKey, true, nil
}

func (r *Recorder) record(s Statement) error {
	if r.Fail != nil {
		if err := r.Fail(s); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = append(r.statements, s)
	return nil
}

// Statements returns a copy of the captured statements
func (r *Recorder) Statements() []Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Statement, len(r.statements))
	copy(out, r.statements)
	return out
}

// Count returns the number of captured statements
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statements)
}

// Last returns the most recently captured statement, or nil if none
func (r *Recorder) Last() *Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statements) == 0 {
		return nil
	}
	s := r.statements[len(r.statements)-1]
	return &s
}

// Reset clears captured statements
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = r.statements[:0]
}

// Row is an in-memory db.Row keyed by column name
type Row struct {
	values map[string]any
}

// NewRow wraps column values as a db.Row
func NewRow(values map[string]any) *Row {
	return &Row{values: values}
}

// Scan is unsupported: in-memory rows have no column order
func (r *Row) Scan(...any) error {
	return fmt.Errorf("dbtest: positional Scan is not supported, use StructScan or MapScan")
}

// MapScan copies the row into dest
func (r *Row) MapScan(dest map[string]any) error {
	for k, v := range r.values {
		dest[k] = v
	}
	return nil
}

// StructScan assigns the row to the struct pointed to by dest the way sqlx
// does: columns match the `db` tag or the lower-cased field name, embedded
// structs are traversed, and a column with no destination field is an error.
func (r *Row) StructScan(dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("dbtest: StructScan needs a non-nil pointer, got %T", dest)
	}
	v = reflect.Indirect(v)
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("dbtest: StructScan needs a struct pointer, got %T", dest)
	}

	columns := make([]string, 0, len(r.values))
	for name := range r.values {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	traversals := mapper.TraversalsByName(v.Type(), columns)
	for i, traversal := range traversals {
		if len(traversal) == 0 {
			return fmt.Errorf("missing destination name %s in %T", columns[i], dest)
		}
	}
	for i, traversal := range traversals {
		if err := assign(reflectx.FieldByIndexes(v, traversal), columns[i], r.values[columns[i]]); err != nil {
			return err
		}
	}
	return nil
}

var mapper = reflectx.NewMapperFunc("db", strings.ToLower)

// assign stores value in fv, converting like database/sql does for the
// driver types rows carry.
func assign(fv reflect.Value, column string, value any) error {
	if value == nil {
		switch fv.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
			fv.Set(reflect.Zero(fv.Type()))
			return nil
		}
		return fmt.Errorf("dbtest: column %s: converting NULL to %s is unsupported", column, fv.Type())
	}

	v := reflect.ValueOf(value)
	switch {
	case v.Type().AssignableTo(fv.Type()):
		fv.Set(v)
	case fv.Kind() == reflect.Ptr && v.Type().AssignableTo(fv.Type().Elem()):
		p := reflect.New(fv.Type().Elem())
		p.Elem().Set(v)
		fv.Set(p)
	case v.Type().ConvertibleTo(fv.Type()):
		fv.Set(v.Convert(fv.Type()))
	default:
		return fmt.Errorf("dbtest: column %s: cannot assign %T to %s", column, value, fv.Type())
	}
	return nil
}
