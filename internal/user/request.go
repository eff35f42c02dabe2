package user

import (
	"github.com/ammar0144/querykit/pkg/db"
	"github.com/ammar0144/querykit/pkg/query"
	"github.com/ammar0144/querykit/pkg/request"
)

// searchColumns are matched by a keyword search
var searchColumns = []string{"username", "email", "first_name", "last_name"}

// Request filters users. Unset filters add nothing to the query.
type Request struct {
	*request.Base[User]

	ids       []int64
	username  *string
	usernames []string
	email     *string
	active    *bool
	role      *string
	keyword   string
}

// NewRequest creates a request executing on exec
func NewRequest(exec db.Executor) *Request {
	return &Request{Base: request.NewBase(Table, exec, RowMapper())}
}

func (r *Request) IDs(ids ...int64) *Request {
	r.ids = ids
	return r
}

func (r *Request) Username(username string) *Request {
	r.username = &username
	return r
}

func (r *Request) Usernames(usernames ...string) *Request {
	r.usernames = usernames
	return r
}

func (r *Request) Email(email string) *Request {
	r.email = &email
	return r
}

func (r *Request) Active(active bool) *Request {
	r.active = &active
	return r
}

func (r *Request) Role(role string) *Request {
	r.role = &role
	return r
}

// Search matches keyword against username, email and both name columns
func (r *Request) Search(keyword string) *Request {
	r.keyword = keyword
	return r
}

// ApplyFilters binds the set filters onto the builder, once
func (r *Request) ApplyFilters() {
	r.Apply(func(b *query.Builder[User]) {
		b.AndIn("id", r.ids).
			AndEquals("username", r.username).
			AndIn("username", r.usernames).
			AndEquals("email", r.email).
			AndEquals("active", r.active).
			AndEquals("role", r.role)

		for _, column := range searchColumns {
			b.Search(column, r.keyword)
		}
	})
}
