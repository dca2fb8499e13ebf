// internal/param/errors.go
package param

import "errors"

var (
	// ErrNotFound is returned for an unknown index or name.
	ErrNotFound = errors.New("param: not found")

	// ErrTypeMismatch is returned when a descriptor type is not a storable type,
	// or when a written value does not carry the descriptor's type.
	ErrTypeMismatch = errors.New("param: type mismatch")
)
