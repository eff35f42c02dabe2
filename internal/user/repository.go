package user

import (
	"context"

	"github.com/ammar0144/querykit/pkg/db"
	"github.com/ammar0144/querykit/pkg/persist"
	"github.com/ammar0144/querykit/pkg/query"
	"github.com/ammar0144/querykit/pkg/repository"
)

// Repository adds user finders to the generic repository
type Repository struct {
	*repository.GenericRepository[User, *Request]
	exec db.Executor
}

// NewRepository creates a user repository reading and writing through exec
func NewRepository(exec db.Executor, saver *persist.Saver) *Repository {
	return &Repository{
		GenericRepository: repository.NewGenericRepository[User, *Request](saver, Table),
		exec:              exec,
	}
}

// NewRequest starts a request on the repository's executor
func (r *Repository) NewRequest() *Request {
	return NewRequest(r.exec)
}

// FindByUsername returns the user with username, if any
func (r *Repository) FindByUsername(ctx context.Context, username string) (*User, bool, error) {
	return r.FindFirst(ctx, r.NewRequest().Username(username))
}

// FindByEmail returns the user with email, if any
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, bool, error) {
	return r.FindFirst(ctx, r.NewRequest().Email(email))
}

// FindActive returns active users, newest first
func (r *Repository) FindActive(ctx context.Context) ([]User, error) {
	req := r.NewRequest().Active(true)
	req.SetOrderColumns(query.OrderDesc("created_at"))
	return r.Find(ctx, req)
}

// FindByRole returns active users holding role, by username
func (r *Repository) FindByRole(ctx context.Context, role string) ([]User, error) {
	req := r.NewRequest().Role(role).Active(true)
	req.SetOrderColumns(query.OrderAsc("username"))
	return r.Find(ctx, req)
}
