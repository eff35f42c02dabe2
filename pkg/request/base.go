// Package request holds the per-entity request layer: typed filter fields on
// top of one owned query builder.
//
// An entity request embeds *Base[T], keeps its filters as pointer and slice
// fields, and implements ApplyFilters by handing its filter step to Apply:
//
//	func (r *UserRequest) ApplyFilters() {
//		r.Apply(func(b *query.Builder[User]) {
//			b.AndEquals("role", r.role)
//			b.AndIn("id", r.ids)
//		})
//	}
//
// Requests, like builders, are single-use and single-owner.
package request

import (
	"github.com/ammar0144/querykit/pkg/db"
	"github.com/ammar0144/querykit/pkg/query"
)

// Base owns the builder of one logical query
type Base[T any] struct {
	builder *query.Builder[T]
	applied bool
}

// NewBase creates a request over table executing on exec
func NewBase[T any](table query.Table, exec db.Executor, mapper db.RowMapper[T]) *Base[T] {
	return &Base[T]{builder: query.NewBuilder(table, exec, mapper)}
}

// Builder returns the owned builder
func (r *Base[T]) Builder() *query.Builder[T] {
	return r.builder
}

// Apply runs fn against the builder the first time it is called. Later calls
// do nothing, so filters are never bound twice.
func (r *Base[T]) Apply(fn func(b *query.Builder[T])) {
	if r.applied || fn == nil {
		return
	}
	r.applied = true
	fn(r.builder)
}

// Applied reports whether filters were applied
func (r *Base[T]) Applied() bool {
	return r.applied
}

// SetOffset forwards to the builder
func (r *Base[T]) SetOffset(offset int) {
	r.builder.SetOffset(offset)
}

// SetLimit forwards to the builder
func (r *Base[T]) SetLimit(limit int) {
	r.builder.SetLimit(limit)
}

// SetPage sets LIMIT size OFFSET page*size for a zero-based page
func (r *Base[T]) SetPage(page, size int) {
	if page < 0 || size <= 0 {
		return
	}
	r.builder.SetLimit(size)
	r.builder.SetOffset(page * size)
}

// SetSelectColumns projects columns of the request's table
func (r *Base[T]) SetSelectColumns(columns ...string) {
	if len(columns) > 0 {
		r.builder.SelectColumns(columns...)
	}
}

// SetGroupColumns groups by columns of the request's table
func (r *Base[T]) SetGroupColumns(columns ...string) {
	if len(columns) > 0 {
		r.builder.GroupBy(columns...)
	}
}

// SetOrderColumns orders by the given terms
func (r *Base[T]) SetOrderColumns(terms ...query.Order) {
	if len(terms) > 0 {
		r.builder.OrderBy(terms...)
	}
}
