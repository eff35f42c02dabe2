package persist

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
)

// identifierColumn is the column the identifier is found by when no explicit
// identifier field is registered.
const identifierColumn = "id"

var (
	timeType      = reflect.TypeOf(time.Time{})
	nullInt64Type = reflect.TypeOf(sql.NullInt64{})
	valuerType    = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// Field is one persisted struct field.
type Field struct {
	Name   string // Go field name, also the statement placeholder
	Column string
	Index  []int
}

// Mapping is the persisted shape of one struct type: its columns in
// declaration order (embedded structs flattened in place) and its identifier.
// A Mapping is immutable once built.
type Mapping struct {
	Type   reflect.Type
	Fields []Field // non-identifier fields
	ID     Field

	embeds [][]int // pointer embeds, parents before children
}

// Columns returns the non-identifier column names in statement order
func (m *Mapping) Columns() []string {
	cols := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		cols[i] = f.Column
	}
	return cols
}

// MappingOption overrides the derived mapping of a registered type
type MappingOption func(*mappingConfig)

type mappingConfig struct {
	columns    map[string]string
	skip       map[string]bool
	identifier string
}

func newMappingConfig(opts ...MappingOption) *mappingConfig {
	cfg := &mappingConfig{
		columns: make(map[string]string),
		skip:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithColumn maps field to column, overriding the tag and the derived name
func WithColumn(field, column string) MappingOption {
	return func(c *mappingConfig) {
		c.columns[field] = column
	}
}

// WithoutField leaves field out of every statement
func WithoutField(field string) MappingOption {
	return func(c *mappingConfig) {
		c.skip[field] = true
	}
}

// WithIdentifier designates field as the identifier instead of the field
// mapped to the "id" column.
func WithIdentifier(field string) MappingOption {
	return func(c *mappingConfig) {
		c.identifier = field
	}
}

type candidate struct {
	field Field
	depth int
	typ   reflect.Type
}

// buildMapping derives the mapping of struct type t
func buildMapping(t reflect.Type, cfg *mappingConfig) (*Mapping, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrUnsupportedEntity, t)
	}

	var (
		all    []candidate
		embeds [][]int
	)
	collectFields(t, nil, 0, cfg, &all, &embeds)
	fields := shadow(all)

	for name := range cfg.columns {
		if !hasField(fields, name) {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, t, name)
		}
	}
	if cfg.identifier != "" && !hasField(fields, cfg.identifier) {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, t, cfg.identifier)
	}

	m := &Mapping{Type: t, embeds: embeds}
	found := 0
	for _, c := range fields {
		isID := c.field.Column == identifierColumn
		if cfg.identifier != "" {
			isID = c.field.Name == cfg.identifier
		}
		if !isID {
			m.Fields = append(m.Fields, c.field)
			continue
		}
		if !isIdentifierType(c.typ) {
			return nil, fmt.Errorf("%w: %s.%s has type %s", ErrUnsupportedIdentifier, t, c.field.Name, c.typ)
		}
		m.ID = c.field
		found++
	}

	switch {
	case found == 0:
		return nil, fmt.Errorf("%w: %s", ErrNoIdentifier, t)
	case found > 1:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousIdentifier, t)
	}
	return m, nil
}

func collectFields(t reflect.Type, index []int, depth int, cfg *mappingConfig, out *[]candidate, embeds *[][]int) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		path := append(append([]int{}, index...), i)
		tag, _, _ := strings.Cut(sf.Tag.Get("db"), ",")

		if sf.Anonymous && tag == "" {
			switch {
			case flattens(sf.Type):
				collectFields(sf.Type, path, depth+1, cfg, out, embeds)
				continue
			case sf.Type.Kind() == reflect.Ptr && flattens(sf.Type.Elem()):
				// an unexported pointer embed cannot be allocated, so it is skipped
				if sf.IsExported() {
					*embeds = append(*embeds, path)
					collectFields(sf.Type.Elem(), path, depth+1, cfg, out, embeds)
				}
				continue
			}
		}
		if !sf.IsExported() || tag == "-" || cfg.skip[sf.Name] {
			continue
		}

		column := tag
		if override, ok := cfg.columns[sf.Name]; ok {
			column = override
		} else if column == "" {
			column = toSnakeCase(sf.Name)
		}

		*out = append(*out, candidate{
			field: Field{Name: sf.Name, Column: column, Index: path},
			depth: depth,
			typ:   sf.Type,
		})
	}
}

// flattens reports whether an embedded field contributes its own fields
// rather than being stored as one value.
func flattens(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t != timeType && !t.Implements(valuerType)
}

// shadow keeps the shallowest field of each name, like Go's selector rules
func shadow(all []candidate) []candidate {
	shallowest := make(map[string]int, len(all))
	for _, c := range all {
		if d, ok := shallowest[c.field.Name]; !ok || c.depth < d {
			shallowest[c.field.Name] = c.depth
		}
	}

	kept := make([]candidate, 0, len(all))
	seen := make(map[string]bool, len(all))
	for _, c := range all {
		if c.depth != shallowest[c.field.Name] || seen[c.field.Name] {
			continue
		}
		seen[c.field.Name] = true
		kept = append(kept, c)
	}
	return kept
}

func hasField(fields []candidate, name string) bool {
	for _, c := range fields {
		if c.field.Name == name {
			return true
		}
	}
	return false
}

func isIdentifierType(t reflect.Type) bool {
	if t == nullInt64Type {
		return true
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return isIntKind(t.Kind())
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// allocate points every nil pointer embed of struct value v at a new zero
// struct, so its fields can be read, stamped and written back.
func (m *Mapping) allocate(v reflect.Value) {
	for _, path := range m.embeds {
		if f := v.FieldByIndex(path); f.IsNil() {
			f.Set(reflect.New(f.Type().Elem()))
		}
	}
}

// identifier reads the identifier of struct value v. ok is false when the
// identifier is absent: zero, a nil pointer, an invalid sql.NullInt64 or a
// field of a nil embed.
func (m *Mapping) identifier(v reflect.Value) (any, bool) {
	f, err := v.FieldByIndexErr(m.ID.Index)
	if err != nil {
		return nil, false
	}

	if f.Type() == nullInt64Type {
		n := f.Interface().(sql.NullInt64)
		return n, n.Valid
	}
	if f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return nil, false
		}
		return f.Interface(), true
	}
	return f.Interface(), !f.IsZero()
}

// setIdentifier writes a generated key onto the identifier of struct value v
func (m *Mapping) setIdentifier(v reflect.Value, key int64) {
	f := v.FieldByIndex(m.ID.Index)

	if f.Type() == nullInt64Type {
		f.Set(reflect.ValueOf(sql.NullInt64{Int64: key, Valid: true}))
		return
	}
	if f.Kind() == reflect.Ptr {
		p := reflect.New(f.Type().Elem())
		setInt(p.Elem(), key)
		f.Set(p)
		return
	}
	setInt(f, key)
}

func setInt(f reflect.Value, key int64) {
	switch f.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f.SetUint(uint64(key))
	default:
		f.SetInt(key)
	}
}

// toSnakeCase converts a Go field name to its column: FirstName -> first_name,
// ID -> id, UserID -> user_id, HTTPStatus -> http_status.
func toSnakeCase(name string) string {
	runes := []rune(name)
	var sb strings.Builder
	sb.Grow(len(name) + 4)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sb.WriteByte('_')
				}
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
