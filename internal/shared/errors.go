package shared

import "errors"

var (
	// ErrNotFound indicates a referenced document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or incomplete input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a business-rule conflict or a lost lock race.
	// Lock-timeout conflicts are safe to retry; rule conflicts are not.
	ErrConflict = errors.New("conflict")
)
