// Package querykit builds filtered SELECT/COUNT statements with named
// parameters and persists plain Go structs to MySQL, inserting or updating
// by identifier.
package querykit

import (
	"github.com/ammar0144/querykit/pkg/db"
	"github.com/ammar0144/querykit/pkg/persist"
	"github.com/ammar0144/querykit/pkg/query"
	"github.com/ammar0144/querykit/pkg/repository"
)

// Config represents database configuration
type Config = db.Config

// Table describes a queryable table
type Table = query.Table

// LoadConfig reads configuration from a YAML file and QUERYKIT_DB_* variables
func LoadConfig(path string) (*Config, error) {
	return db.LoadConfig(path)
}

// NewManager creates a new database manager
func NewManager(config *Config) (*db.Manager, error) {
	return db.NewManager(config)
}

// NewTable describes table name aliased as alias, holding rows of T
func NewTable[T any](name, alias string) Table {
	return query.NewTable[T](name, alias)
}

// NewBuilder creates a query builder over table
func NewBuilder[T any](table Table, exec db.Executor) *query.Builder[T] {
	return query.NewBuilder(table, exec, db.StructMapper[T]())
}

// NewSaver creates an entity saver running on exec
func NewSaver(exec db.Executor, opts ...persist.Option) *persist.Saver {
	return persist.NewSaver(exec, opts...)
}

// NewRepository creates a repository for T read through requests of type R
func NewRepository[T any, R repository.Request[T]](saver *persist.Saver, table Table) *repository.GenericRepository[T, R] {
	return repository.NewGenericRepository[T, R](saver, table)
}
