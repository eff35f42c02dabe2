package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ammar0144/querykit/pkg/persist"
	"github.com/ammar0144/querykit/pkg/query"
)

// ErrInvalidPage is returned by FindPage for a negative page or a non-positive size
var ErrInvalidPage = errors.New("invalid page request")

// GenericRepository provides CRUD operations for one entity type: writes go
// through the persist.Saver, reads through the request's own builder.
type GenericRepository[T any, R Request[T]] struct {
	saver *persist.Saver
	table query.Table
}

// NewGenericRepository creates a repository storing T in table
func NewGenericRepository[T any, R Request[T]](saver *persist.Saver, table query.Table) *GenericRepository[T, R] {
	return &GenericRepository[T, R]{saver: saver, table: table}
}

var _ Repository[struct{}, Request[struct{}]] = (*GenericRepository[struct{}, Request[struct{}]])(nil)

// Table returns the repository's table descriptor
func (r *GenericRepository[T, R]) Table() query.Table {
	return r.table
}

// ============================================================================
// WRITE OPERATIONS
// ============================================================================

// Save inserts or updates entity and returns it
func (r *GenericRepository[T, R]) Save(ctx context.Context, entity *T) (*T, error) {
	return persist.Save(ctx, r.saver, entity, r.table)
}

// SaveAll saves entities in order, stopping at the first failure
func (r *GenericRepository[T, R]) SaveAll(ctx context.Context, entities []*T) ([]*T, error) {
	return persist.SaveAll(ctx, r.saver, entities, r.table)
}

// ============================================================================
// READ OPERATIONS
// ============================================================================

// Find applies the request's filters and returns every matching row
func (r *GenericRepository[T, R]) Find(ctx context.Context, req R) ([]T, error) {
	req.ApplyFilters()
	return req.Builder().Select(ctx)
}

// FindFirst applies the request's filters and returns the first matching row
func (r *GenericRepository[T, R]) FindFirst(ctx context.Context, req R) (*T, bool, error) {
	req.ApplyFilters()
	return req.Builder().First(ctx)
}

// Count applies the request's filters and counts the matching rows
func (r *GenericRepository[T, R]) Count(ctx context.Context, req R) (int, error) {
	req.ApplyFilters()
	return req.Builder().Count(ctx)
}

// FindPage returns one zero-based page of the request's matches together
// with the total match count. Any LIMIT/OFFSET already on the request is
// replaced.
func (r *GenericRepository[T, R]) FindPage(ctx context.Context, req R, page, size int) (Page[T], error) {
	if page < 0 || size <= 0 {
		return Page[T]{}, fmt.Errorf("%w: page %d size %d", ErrInvalidPage, page, size)
	}

	req.ApplyFilters()
	b := req.Builder()

	total, err := b.Count(ctx)
	if err != nil {
		return Page[T]{}, err
	}

	b.SetLimit(size).SetOffset(page * size)
	content, err := b.Select(ctx)
	if err != nil {
		return Page[T]{}, err
	}

	return NewPage(content, total, page, size), nil
}
