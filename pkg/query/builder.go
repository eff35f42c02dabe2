package query

import (
	"context"
	"database/sql/driver"
	"reflect"
	"strconv"
	"strings"

	"github.com/ammar0144/querykit/pkg/db"
)

// Operator represents SQL comparison operators
type Operator string

const (
	Equal              Operator = "="
	NotEqual           Operator = "!="
	GreaterThan        Operator = ">"
	GreaterThanOrEqual Operator = ">="
	LessThan           Operator = "<"
	LessThanOrEqual    Operator = "<="
	Like               Operator = "LIKE"
	In                 Operator = "IN"
	NotIn              Operator = "NOT IN"
)

// selection is one projected column: the qualified column and, for SELECT,
// the result name it is exposed under.
type selection struct {
	column string
	as     string
}

// Builder accumulates the state of one SELECT/COUNT statement over a table
// and executes it. A Builder is single-use and not safe for concurrent
// mutation.
type Builder[T any] struct {
	table  Table
	exec   db.Executor
	mapper db.RowMapper[T]
	params *Params

	selected []selection
	ands     []string
	orGroups [][]string
	searches []string
	joins    []Join
	groupBy  []string
	orderBy  []string

	limit  *int
	offset *int
}

// NewBuilder creates a builder over table. exec and mapper may be nil when the
// builder is only used to render SQL.
func NewBuilder[T any](table Table, exec db.Executor, mapper db.RowMapper[T]) *Builder[T] {
	return &Builder[T]{
		table:  table,
		exec:   exec,
		mapper: mapper,
		params: NewParams(),
	}
}

// Table returns the builder's root table
func (b *Builder[T]) Table() Table {
	return b.table
}

// Params returns the values bound so far, keyed by placeholder name
func (b *Builder[T]) Params() map[string]any {
	return b.params.Values()
}

// ============================================================================
// FRAGMENTS - return "" and bind nothing when column or value is absent
// ============================================================================

// Equals renders (alias.column = :p)
func (b *Builder[T]) Equals(column string, value any) string {
	return b.objectClause(column, Equal, value)
}

// NotEquals renders (alias.column != :p)
func (b *Builder[T]) NotEquals(column string, value any) string {
	return b.objectClause(column, NotEqual, value)
}

// GreaterThan renders (alias.column > :p)
func (b *Builder[T]) GreaterThan(column string, value any) string {
	return b.objectClause(column, GreaterThan, value)
}

// GreaterOrEqual renders (alias.column >= :p)
func (b *Builder[T]) GreaterOrEqual(column string, value any) string {
	return b.objectClause(column, GreaterThanOrEqual, value)
}

// LessThan renders (alias.column < :p)
func (b *Builder[T]) LessThan(column string, value any) string {
	return b.objectClause(column, LessThan, value)
}

// LessOrEqual renders (alias.column <= :p)
func (b *Builder[T]) LessOrEqual(column string, value any) string {
	return b.objectClause(column, LessThanOrEqual, value)
}

// Like renders (alias.column LIKE :p). The pattern is bound as given.
func (b *Builder[T]) Like(column string, pattern any) string {
	return b.objectClause(column, Like, pattern)
}

// In renders (alias.column IN (:p)). values must be a non-empty slice or array.
func (b *Builder[T]) In(column string, values any) string {
	return b.collectionClause(column, In, values)
}

// NotIn renders (alias.column NOT IN (:p))
func (b *Builder[T]) NotIn(column string, values any) string {
	return b.collectionClause(column, NotIn, values)
}

func (b *Builder[T]) objectClause(column string, op Operator, value any) string {
	if isBlank(column) || isAbsent(value) {
		return ""
	}
	name := b.params.AddObject(indirect(value))
	return "(" + b.table.Column(column) + " " + string(op) + " :" + name + ")"
}

func (b *Builder[T]) collectionClause(column string, op Operator, values any) string {
	if isBlank(column) || collectionLen(values) == 0 {
		return ""
	}
	name := b.params.AddCollection(values)
	return "(" + b.table.Column(column) + " " + string(op) + " (:" + name + "))"
}

// ============================================================================
// PREDICATES
// ============================================================================

// And adds a fragment to the AND list. Blank fragments are ignored.
func (b *Builder[T]) And(fragment string) *Builder[T] {
	if !isBlank(fragment) {
		b.ands = append(b.ands, fragment)
	}
	return b
}

// AndEquals adds (alias.column = :p) when value is present
func (b *Builder[T]) AndEquals(column string, value any) *Builder[T] {
	return b.And(b.Equals(column, value))
}

// AndNotEquals adds (alias.column != :p) when value is present
func (b *Builder[T]) AndNotEquals(column string, value any) *Builder[T] {
	return b.And(b.NotEquals(column, value))
}

// AndGreaterThan adds (alias.column > :p) when value is present
func (b *Builder[T]) AndGreaterThan(column string, value any) *Builder[T] {
	return b.And(b.GreaterThan(column, value))
}

// AndGreaterOrEqual adds (alias.column >= :p) when value is present
func (b *Builder[T]) AndGreaterOrEqual(column string, value any) *Builder[T] {
	return b.And(b.GreaterOrEqual(column, value))
}

// AndLessThan adds (alias.column < :p) when value is present
func (b *Builder[T]) AndLessThan(column string, value any) *Builder[T] {
	return b.And(b.LessThan(column, value))
}

// AndLessOrEqual adds (alias.column <= :p) when value is present
func (b *Builder[T]) AndLessOrEqual(column string, value any) *Builder[T] {
	return b.And(b.LessOrEqual(column, value))
}

// AndLike adds (alias.column LIKE :p) when pattern is present
func (b *Builder[T]) AndLike(column string, pattern any) *Builder[T] {
	return b.And(b.Like(column, pattern))
}

// AndIn adds (alias.column IN (:p)) when values is a non-empty collection
func (b *Builder[T]) AndIn(column string, values any) *Builder[T] {
	return b.And(b.In(column, values))
}

// AndNotIn adds (alias.column NOT IN (:p)) when values is a non-empty collection
func (b *Builder[T]) AndNotIn(column string, values any) *Builder[T] {
	return b.And(b.NotIn(column, values))
}

// OrGroup adds fragments OR-ed together as one term of the AND list.
// Blank and repeated fragments are dropped; a group left empty is ignored.
func (b *Builder[T]) OrGroup(fragments ...string) *Builder[T] {
	group := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if !isBlank(f) && !contains(group, f) {
			group = append(group, f)
		}
	}
	if len(group) > 0 {
		b.orGroups = append(b.orGroups, group)
	}
	return b
}

// Search adds (alias.column LIKE '%keyword%') to the search group. All search
// fragments of a builder are OR-ed together and the group is AND-ed with the
// remaining predicates, so one keyword can be matched across several columns.
func (b *Builder[T]) Search(column, keyword string) *Builder[T] {
	if isBlank(column) || isBlank(keyword) {
		return b
	}
	b.searches = append(b.searches, b.Like(column, "%"+keyword+"%"))
	return b
}

// ============================================================================
// SHAPE
// ============================================================================

// SelectColumn projects a column of the root table. A column already
// qualified ("p.name") is kept as is.
func (b *Builder[T]) SelectColumn(column string) *Builder[T] {
	if isBlank(column) {
		return b
	}
	qualified := column
	if !strings.Contains(column, ".") {
		qualified = b.table.Column(column)
	}
	return b.addSelection(selection{column: qualified, as: camelCase(column)})
}

// SelectColumns projects several columns of the root table
func (b *Builder[T]) SelectColumns(columns ...string) *Builder[T] {
	for _, c := range columns {
		b.SelectColumn(c)
	}
	return b
}

// SelectColumnFrom projects a column of a joined table
func (b *Builder[T]) SelectColumnFrom(alias, column string) *Builder[T] {
	if isBlank(alias) || isBlank(column) {
		return b
	}
	return b.addSelection(selection{column: alias + "." + column, as: camelCase(column)})
}

// SelectColumnAs projects alias.column under an explicit result name
func (b *Builder[T]) SelectColumnAs(alias, column, as string) *Builder[T] {
	if isBlank(alias) || isBlank(column) || isBlank(as) {
		return b
	}
	return b.addSelection(selection{column: alias + "." + column, as: as})
}

// addSelection keeps the first projection of each qualified column
func (b *Builder[T]) addSelection(s selection) *Builder[T] {
	for _, existing := range b.selected {
		if existing.column == s.column {
			return b
		}
	}
	b.selected = append(b.selected, s)
	return b
}

// GroupBy adds GROUP BY columns of the root table
func (b *Builder[T]) GroupBy(columns ...string) *Builder[T] {
	for _, c := range columns {
		if isBlank(c) {
			continue
		}
		if q := b.table.Column(c); !contains(b.groupBy, q) {
			b.groupBy = append(b.groupBy, q)
		}
	}
	return b
}

// OrderBy adds ORDER BY terms on columns of the root table
func (b *Builder[T]) OrderBy(terms ...Order) *Builder[T] {
	for _, t := range terms {
		if isBlank(t.Column) {
			continue
		}
		dir := t.Direction
		if dir == "" {
			dir = Asc
		}
		if term := b.table.Column(t.Column) + " " + string(dir); !contains(b.orderBy, term) {
			b.orderBy = append(b.orderBy, term)
		}
	}
	return b
}

// Join adds a JOIN with a custom ON condition, emitted verbatim
func (b *Builder[T]) Join(kind JoinKind, table Table, on string) *Builder[T] {
	if table.Validate() != nil || isBlank(on) {
		return b
	}
	b.joins = append(b.joins, Join{Kind: kind, Table: table, On: on})
	return b
}

// InnerJoin joins table ON root.leftColumn = table.rightColumn
func (b *Builder[T]) InnerJoin(table Table, leftColumn, rightColumn string) *Builder[T] {
	return b.joinOn(InnerJoin, table, leftColumn, rightColumn)
}

// LeftJoin joins table ON root.leftColumn = table.rightColumn
func (b *Builder[T]) LeftJoin(table Table, leftColumn, rightColumn string) *Builder[T] {
	return b.joinOn(LeftJoin, table, leftColumn, rightColumn)
}

// RightJoin joins table ON root.leftColumn = table.rightColumn
func (b *Builder[T]) RightJoin(table Table, leftColumn, rightColumn string) *Builder[T] {
	return b.joinOn(RightJoin, table, leftColumn, rightColumn)
}

// FullJoin joins table ON root.leftColumn = table.rightColumn
func (b *Builder[T]) FullJoin(table Table, leftColumn, rightColumn string) *Builder[T] {
	return b.joinOn(FullJoin, table, leftColumn, rightColumn)
}

func (b *Builder[T]) joinOn(kind JoinKind, table Table, leftColumn, rightColumn string) *Builder[T] {
	if isBlank(leftColumn) || isBlank(rightColumn) {
		return b
	}
	return b.Join(kind, table, b.table.Column(leftColumn)+" = "+table.Column(rightColumn))
}

// SetLimit sets LIMIT; only values > 0 are rendered
func (b *Builder[T]) SetLimit(limit int) *Builder[T] {
	b.limit = &limit
	return b
}

// SetOffset sets OFFSET; only values >= 0 are rendered
func (b *Builder[T]) SetOffset(offset int) *Builder[T] {
	b.offset = &offset
	return b
}

// ============================================================================
// RENDERING
// ============================================================================

// SelectQuery renders the SELECT statement
func (b *Builder[T]) SelectQuery() string {
	return b.render("SELECT "+b.projection(false), true)
}

// CountQuery renders the COUNT statement over the same predicates. LIMIT and
// OFFSET are never applied so the count covers the whole filtered set.
func (b *Builder[T]) CountQuery() string {
	return b.render("SELECT COUNT("+b.projection(true)+")", false)
}

func (b *Builder[T]) render(head string, paginate bool) string {
	parts := []string{head, "FROM", b.table.Name, b.table.Alias}

	for _, j := range b.joins {
		parts = append(parts, j.String())
	}
	if where := b.whereClause(); where != "" {
		parts = append(parts, where)
	}
	if len(b.groupBy) > 0 {
		parts = append(parts, "GROUP BY "+strings.Join(b.groupBy, ", "))
	}
	if len(b.orderBy) > 0 {
		parts = append(parts, "ORDER BY "+strings.Join(b.orderBy, ", "))
	}
	if paginate {
		if b.limit != nil && *b.limit > 0 {
			parts = append(parts, "LIMIT "+strconv.Itoa(*b.limit))
		}
		if b.offset != nil && *b.offset >= 0 {
			parts = append(parts, "OFFSET "+strconv.Itoa(*b.offset))
		}
	}

	return strings.Join(parts, " ")
}

func (b *Builder[T]) projection(count bool) string {
	if len(b.selected) == 0 {
		return "*"
	}
	cols := make([]string, len(b.selected))
	for i, s := range b.selected {
		if count {
			cols[i] = s.column
		} else {
			cols[i] = s.column + " AS " + s.as
		}
	}
	return "DISTINCT " + strings.Join(cols, ", ")
}

func (b *Builder[T]) whereClause() string {
	var clauses []string

	if len(b.ands) > 0 {
		clauses = append(clauses, strings.Join(b.ands, " AND "))
	}
	for _, group := range b.orGroups {
		clauses = append(clauses, "("+strings.Join(group, " OR ")+")")
	}
	if len(b.searches) > 0 {
		clauses = append(clauses, "("+strings.Join(b.searches, " OR ")+")")
	}

	if len(clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(clauses, " AND ")
}

// ============================================================================
// EXECUTION
// ============================================================================

// Select runs the SELECT statement and maps every row, preserving row order.
// Execution errors are returned unchanged.
func (b *Builder[T]) Select(ctx context.Context) ([]T, error) {
	return db.QueryAll(ctx, b.exec, b.SelectQuery(), b.params.Values(), b.mapper)
}

// First runs the SELECT statement and returns its first row, if any
func (b *Builder[T]) First(ctx context.Context) (*T, bool, error) {
	rows, err := b.Select(ctx)
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	return &rows[0], true, nil
}

// Count runs the COUNT statement. A NULL or missing result counts as zero.
func (b *Builder[T]) Count(ctx context.Context) (int, error) {
	if b.exec == nil {
		return 0, db.ErrNoExecutor
	}
	total, err := b.exec.QueryScalar(ctx, b.CountQuery(), b.params.Values())
	if err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// ============================================================================
// UTILITY FUNCTIONS
// ============================================================================

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

// isAbsent treats nil, nil pointers/slices/maps and NULL-valued
// driver.Valuers (sql.NullString{} etc.) as a missing filter value.
func isAbsent(value any) bool {
	if value == nil {
		return true
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return true
		}
	}

	if valuer, ok := value.(driver.Valuer); ok {
		v, err := valuer.Value()
		return err == nil && v == nil
	}
	return false
}

// indirect binds what a non-nil pointer points to
func indirect(value any) any {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv.Interface()
}

// collectionLen returns the length of a slice or array value, 0 for anything
// else. []byte is a scalar, not a collection.
func collectionLen(values any) int {
	if values == nil {
		return 0
	}
	if _, ok := values.([]byte); ok {
		return 0
	}
	rv := reflect.ValueOf(values)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len()
	}
	return 0
}

// camelCase turns a snake_case column into its result name: first_name -> firstName
func camelCase(column string) string {
	if i := strings.LastIndex(column, "."); i >= 0 {
		column = column[i+1:]
	}
	parts := strings.Split(column, "_")
	var sb strings.Builder
	sb.WriteString(strings.ToLower(parts[0]))
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(p[:1]))
		sb.WriteString(strings.ToLower(p[1:]))
	}
	return sb.String()
}
