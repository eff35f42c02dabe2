package repository

import (
	"context"

	"github.com/ammar0144/querykit/pkg/query"
)

// Request is the contract a repository reads through: a typed request that
// applies its filters (once) onto the builder it owns
type Request[T any] interface {
	ApplyFilters()
	Builder() *query.Builder[T]
}

// Repository defines the generic repository interface
type Repository[T any, R Request[T]] interface {
	// Commands (Write Operations - insert when the identifier is absent, update otherwise)
	Save(ctx context.Context, entity *T) (*T, error)
	SaveAll(ctx context.Context, entities []*T) ([]*T, error)

	// Queries (Read Operations - filters come from the request)
	Find(ctx context.Context, r R) ([]T, error)
	FindFirst(ctx context.Context, r R) (*T, bool, error)
	Count(ctx context.Context, r R) (int, error)
	FindPage(ctx context.Context, r R, page, size int) (Page[T], error)
}
