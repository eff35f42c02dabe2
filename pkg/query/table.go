package query

import (
	"fmt"
	"reflect"
	"strings"
)

// Table identifies a queryable table: its name, the alias that qualifies
// every column the builder emits, and the Go type rows map to.
type Table struct {
	Name  string
	Alias string
	Type  reflect.Type
}

// NewTable returns the descriptor for table name aliased as alias, bound to T.
// Descriptors are declared once per entity, usually as package variables, so
// a blank name or alias panics.
func NewTable[T any](name, alias string) Table {
	t := Table{
		Name:  strings.TrimSpace(name),
		Alias: strings.TrimSpace(alias),
		Type:  reflect.TypeOf((*T)(nil)).Elem(),
	}
	if err := t.Validate(); err != nil {
		panic(err)
	}
	return t
}

// Validate reports a descriptor with a blank name or alias
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if t.Alias == "" {
		return fmt.Errorf("table %s: alias is required", t.Name)
	}
	return nil
}

// Column qualifies column with the table alias
func (t Table) Column(column string) string {
	return t.Alias + "." + column
}

func (t Table) String() string {
	return t.Name + " " + t.Alias
}

// Direction is an ORDER BY direction
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Order is one ORDER BY term
type Order struct {
	Column    string
	Direction Direction
}

// OrderAsc orders by column ascending
func OrderAsc(column string) Order {
	return Order{Column: column, Direction: Asc}
}

// OrderDesc orders by column descending
func OrderDesc(column string) Order {
	return Order{Column: column, Direction: Desc}
}

// JoinKind represents SQL JOIN types
type JoinKind string

const (
	InnerJoin JoinKind = "INNER JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
	RightJoin JoinKind = "RIGHT JOIN"
	FullJoin  JoinKind = "FULL OUTER JOIN"
)

// Join is one JOIN clause. On is emitted verbatim.
type Join struct {
	Kind  JoinKind
	Table Table
	On    string
}

func (j Join) String() string {
	return string(j.Kind) + " " + j.Table.Name + " " + j.Table.Alias + " ON " + j.On
}
