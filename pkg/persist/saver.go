package persist

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zoobzio/capitan"

	"github.com/ammar0144/querykit/pkg/db"
	"github.com/ammar0144/querykit/pkg/query"
)

// Saver inserts or updates entities depending on whether their identifier is
// set, and writes generated keys back on insert.
//
// Mappings are derived once per struct type and shared; a Saver is safe for
// concurrent use. Statements run on the executor as given: transactions and
// retries belong to the executor.
type Saver struct {
	exec   db.Executor
	now    func() time.Time
	events *capitan.Capitan // nil emits on capitan's default instance

	mappings sync.Map // reflect.Type -> *mappingEntry
}

type mappingEntry struct {
	once    sync.Once
	cfg     *mappingConfig
	mapping *Mapping
	err     error
}

// Option configures a Saver
type Option func(*Saver)

// WithClock replaces time.Now for audit stamps
func WithClock(now func() time.Time) Option {
	return func(s *Saver) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEvents emits lifecycle signals on c instead of capitan's default
// instance
func WithEvents(c *capitan.Capitan) Option {
	return func(s *Saver) {
		s.events = c
	}
}

// NewSaver creates a saver running statements on exec
func NewSaver(exec db.Executor, opts ...Option) *Saver {
	s := &Saver{
		exec: exec,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register builds the mapping of table's entity type ahead of the first save,
// applying opts over the derived defaults. It fails if the type was already
// mapped, either by Register or by an earlier save.
func (s *Saver) Register(table query.Table, opts ...MappingOption) (*Mapping, error) {
	t := table.Type
	if t == nil {
		return nil, fmt.Errorf("%w: table %s has no entity type", ErrUnsupportedEntity, table.Name)
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	entry := &mappingEntry{cfg: newMappingConfig(opts...)}
	if _, loaded := s.mappings.LoadOrStore(t, entry); loaded {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, t)
	}
	return s.build(t, entry)
}

// Mapping returns the mapping of struct type t, deriving it on first use
func (s *Saver) Mapping(t reflect.Type) (*Mapping, error) {
	v, ok := s.mappings.Load(t)
	if !ok {
		v, _ = s.mappings.LoadOrStore(t, &mappingEntry{cfg: newMappingConfig()})
	}
	return s.build(t, v.(*mappingEntry))
}

func (s *Saver) build(t reflect.Type, entry *mappingEntry) (*Mapping, error) {
	entry.once.Do(func() {
		entry.mapping, entry.err = buildMapping(t, entry.cfg)
		if entry.err != nil {
			return
		}
		s.emit(context.Background(), MappingBuilt,
			KeyType.Field(t.String()),
			KeyColumn.Field(entry.mapping.ID.Column))
	})
	return entry.mapping, entry.err
}

// Save inserts entity into table when its identifier is absent and updates
// it otherwise. entity must be a non-nil pointer to a struct. On insert a
// generated key, when the executor reports one, is written to the
// identifier. Every failure is a *SaveError.
func (s *Saver) Save(ctx context.Context, entity any, table query.Table) error {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return s.fail(ctx, OpMapping, table, ErrUnsupportedEntity)
	}
	if s.exec == nil {
		return s.fail(ctx, OpMapping, table, db.ErrNoExecutor)
	}

	m, err := s.Mapping(rv.Elem().Type())
	if err != nil {
		return s.fail(ctx, OpMapping, table, err)
	}

	sv := rv.Elem()
	m.allocate(sv)
	if id, ok := m.identifier(sv); ok {
		return s.update(ctx, entity, sv, m, table, id)
	}
	return s.insert(ctx, entity, sv, m, table)
}

func (s *Saver) insert(ctx context.Context, entity any, sv reflect.Value, m *Mapping, table query.Table) error {
	if stamper, ok := entity.(CreateStamper); ok && stamper.CreatedTime().IsZero() {
		stamper.SetCreatedTime(s.now())
	}

	stmt, params := insertStatement(table.Name, m, sv)

	start := time.Now()
	key, ok, err := s.exec.Exec(ctx, stmt, params, true)
	if err != nil {
		return s.fail(ctx, OpInsert, table, err)
	}
	elapsed := time.Since(start)

	fields := []capitan.Field{
		KeyTable.Field(table.Name),
		KeyType.Field(m.Type.String()),
		KeyDuration.Field(elapsed),
	}
	if ok {
		m.setIdentifier(sv, key)
		fields = append(fields, KeyID.Field(strconv.FormatInt(key, 10)))
	}
	s.emit(ctx, EntityInserted, fields...)
	return nil
}

func (s *Saver) update(ctx context.Context, entity any, sv reflect.Value, m *Mapping, table query.Table, id any) error {
	if len(m.Fields) == 0 {
		return s.fail(ctx, OpUpdate, table, fmt.Errorf("%w: %s", ErrNoColumns, m.Type))
	}
	if stamper, ok := entity.(UpdateStamper); ok {
		stamper.SetUpdatedTime(s.now())
	}

	stmt, params := updateStatement(table.Name, m, sv, id)

	start := time.Now()
	if _, _, err := s.exec.Exec(ctx, stmt, params, false); err != nil {
		return s.fail(ctx, OpUpdate, table, err)
	}

	s.emit(ctx, EntityUpdated,
		KeyTable.Field(table.Name),
		KeyType.Field(m.Type.String()),
		KeyID.Field(formatID(id)),
		KeyDuration.Field(time.Since(start)))
	return nil
}

func (s *Saver) fail(ctx context.Context, op string, table query.Table, err error) error {
	s.emit(ctx, SaveFailed,
		KeyTable.Field(table.Name),
		KeyOp.Field(op),
		KeyError.Field(err.Error()))
	return &SaveError{Op: op, Table: table.Name, Err: err}
}

func (s *Saver) emit(ctx context.Context, signal capitan.Signal, fields ...capitan.Field) {
	if s.events != nil {
		s.events.Emit(ctx, signal, fields...)
		return
	}
	capitan.Emit(ctx, signal, fields...)
}

func formatID(id any) string {
	if n, ok := id.(sql.NullInt64); ok {
		return strconv.FormatInt(n.Int64, 10)
	}
	return fmt.Sprint(reflect.Indirect(reflect.ValueOf(id)).Interface())
}

// insertStatement renders INSERT INTO t (cols) VALUES (:Field, ...). The
// identifier is left to the store.
func insertStatement(table string, m *Mapping, sv reflect.Value) (string, map[string]any) {
	placeholders := make([]string, len(m.Fields))
	params := make(map[string]any, len(m.Fields))
	for i, f := range m.Fields {
		placeholders[i] = ":" + f.Name
		params[f.Name] = sv.FieldByIndex(f.Index).Interface()
	}

	stmt := "INSERT INTO " + table +
		" (" + strings.Join(m.Columns(), ", ") + ")" +
		" VALUES (" + strings.Join(placeholders, ", ") + ")"
	return stmt, params
}

// updateStatement renders UPDATE t SET col = :Field, ... WHERE id = :ID
func updateStatement(table string, m *Mapping, sv reflect.Value, id any) (string, map[string]any) {
	terms := make([]string, len(m.Fields))
	params := make(map[string]any, len(m.Fields)+1)
	for i, f := range m.Fields {
		terms[i] = f.Column + " = :" + f.Name
		params[f.Name] = sv.FieldByIndex(f.Index).Interface()
	}
	params[m.ID.Name] = id

	stmt := "UPDATE " + table +
		" SET " + strings.Join(terms, ", ") +
		" WHERE " + m.ID.Column + " = :" + m.ID.Name
	return stmt, params
}

// Save saves one entity and returns it, identifier populated after an insert
func Save[T any](ctx context.Context, s *Saver, entity *T, table query.Table) (*T, error) {
	if entity == nil {
		return nil, s.fail(ctx, OpMapping, table, ErrUnsupportedEntity)
	}
	if err := s.Save(ctx, entity, table); err != nil {
		return nil, err
	}
	return entity, nil
}

// SaveAll saves entities one by one in order. It stops at the first failure
// and returns the entities saved before it; those are not rolled back unless
// the executor runs inside a transaction.
func SaveAll[T any](ctx context.Context, s *Saver, entities []*T, table query.Table) ([]*T, error) {
	saved := make([]*T, 0, len(entities))
	for _, e := range entities {
		out, err := Save(ctx, s, e, table)
		if err != nil {
			return saved, err
		}
		saved = append(saved, out)
	}
	return saved, nil
}
