package store

import "errors"

var (
	// ErrNotFound wraps GORM's not-found error for consistency across
	// every Get* operation.
	ErrNotFound = errors.New("store: record not found")

	// ErrGrantAlreadyConsumed is returned by InsertGrant on a unique-index
	// collision on the hashed code column.
	ErrGrantAlreadyConsumed = errors.New("store: grant already consumed")
)
