package persistence

import "errors"

// Store errors shared by the SQL and in-memory stores.
var (
	// ErrNotFound: no row for the requested id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput wraps a record that failed validation before writing.
	ErrInvalidInput = errors.New("invalid input")
)
