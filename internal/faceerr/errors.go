// Package faceerr defines the error kinds shared by ingestion, storage and
// search. Callers classify errors with errors.Is against the sentinels.
package faceerr

import (
	"errors"
	"fmt"
)

var (
	// ErrReference means the operation targeted an event or photo that does
	// not exist. Not retried.
	ErrReference = errors.New("reference error")

	// ErrValidation means the input was malformed (wrong vector dimension,
	// missing field). Never coerced.
	ErrValidation = errors.New("validation error")

	// ErrStorage means the durable store could not complete the write or read.
	ErrStorage = errors.New("storage failure")
)

// Error carries the failing operation alongside its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Reference builds an ErrReference for op.
func Reference(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrReference, Err: fmt.Errorf(format, args...)}
}

// Validation builds an ErrValidation for op.
func Validation(op, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrValidation, Err: fmt.Errorf(format, args...)}
}

// Storage wraps a driver error as ErrStorage. Errors that already carry a
// kind are returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Op: op, Kind: ErrStorage, Err: err}
}

// IsReference reports whether err is an ErrReference.
func IsReference(err error) bool { return errors.Is(err, ErrReference) }

// IsValidation reports whether err is an ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsStorage reports whether err is an ErrStorage.
func IsStorage(err error) bool { return errors.Is(err, ErrStorage) }
