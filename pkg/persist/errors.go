package persist

import (
	"errors"
	"fmt"

	"github.com/ammar0144/querykit/pkg/db"
)

// Configuration errors. They are cached with the type's mapping and returned
// on every save of that type.
var (
	ErrNoIdentifier          = errors.New("persist: no identifier field")
	ErrAmbiguousIdentifier   = errors.New("persist: more than one identifier field")
	ErrUnsupportedIdentifier = errors.New("persist: identifier must be an integer, a pointer to an integer or sql.NullInt64")
	ErrUnsupportedEntity     = errors.New("persist: entity must be a non-nil pointer to a struct")
	ErrUnknownField          = errors.New("persist: unknown field")
	ErrAlreadyRegistered     = errors.New("persist: type already mapped")
	ErrNoColumns             = errors.New("persist: no columns to update")
)

// Save operations reported by SaveError
const (
	OpMapping = "mapping"
	OpInsert  = "insert"
	OpUpdate  = "update"
)

// SaveError is returned for every failed save. Err is the original cause:
// a configuration error above or the executor's error, unchanged.
type SaveError struct {
	Op    string
	Table string
	Err   error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("persist: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// IsSaveError reports whether err is, or wraps, a *SaveError
func IsSaveError(err error) bool {
	var se *SaveError
	return errors.As(err, &se)
}

// IsDuplicate reports whether a save failed on a unique constraint
func IsDuplicate(err error) bool {
	return db.IsDuplicateKey(err)
}

// IsConfiguration reports whether err comes from an unusable entity mapping
// or registration rather than from the store
func IsConfiguration(err error) bool {
	for _, target := range configurationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var configurationErrors = []error{
	ErrNoIdentifier,
	ErrAmbiguousIdentifier,
	ErrUnsupportedIdentifier,
	ErrUnsupportedEntity,
	ErrUnknownField,
	ErrAlreadyRegistered,
	ErrNoColumns,
}
