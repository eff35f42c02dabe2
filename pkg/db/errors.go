package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the package classifies.
const (
	mysqlErrDupEntry    = 1062
	mysqlErrNoSuchTable = 1146
)

// Sentinel errors for statement execution
var (
	// ErrNoExecutor is returned when a builder or helper has no Executor to run on
	ErrNoExecutor = errors.New("no executor configured")

	// ErrNoRowMapper is returned when rows are requested without a mapper
	ErrNoRowMapper = errors.New("no row mapper configured")

	// ErrNoTransaction is returned by Commit/Rollback when no transaction is open
	ErrNoTransaction = errors.New("no transaction in progress")

	// ErrTransactionActive is returned by Begin when a transaction is already open
	ErrTransactionActive = errors.New("transaction already in progress")
)

// IsDuplicateKey reports whether err carries a MySQL duplicate-entry error
func IsDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDupEntry
}

// IsMissingTable reports whether err carries a MySQL unknown-table error
func IsMissingTable(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrNoSuchTable
}

// IsNoTransaction checks if an error is ErrNoTransaction
func IsNoTransaction(err error) bool {
	return errors.Is(err, ErrNoTransaction)
}
