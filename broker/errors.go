package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the class of every *ValidationError. Callers should
	// not retry.
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrExists     = errors.New("already exists")
	// ErrConflict reports lock or transaction contention. The whole
	// operation is safe to retry.
	ErrConflict = errors.New("concurrency conflict")
)

type ValidationError struct {
	Field  string
	Reason string
}

func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
