// internal/persistence/fatal.go
package persistence

import (
	"errors"
	"fmt"
)

// FatalCode classifies an unrecoverable condition.
type FatalCode int

const (
	// FatalFlashFS: the flash blob store cannot back the value store.
	FatalFlashFS FatalCode = iota + 1
)

func (c FatalCode) String() string {
	switch c {
	case FatalFlashFS:
		return "flash_fs_error"
	default:
		return fmt.Sprintf("fatal(%d)", int(c))
	}
}

// FatalError is returned when the device cannot establish a trustworthy
// configuration state. The caller turns it into a halt/reset.
type FatalError struct {
	Code FatalCode
	Op   string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("persistence: fatal %s during %s: %v", e.Code, e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// FatalCodeOf extracts the fatal code from err, or 0.
func FatalCodeOf(err error) FatalCode {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return 0
}

// FatalHandler halts or resets the device. RaiseFatal does not return.
type FatalHandler interface {
	RaiseFatal(code FatalCode)
}
