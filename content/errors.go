package content

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches any *ValidationError.
	ErrValidation = errors.New("content: validation failed")
	// ErrConflict matches any *ConflictError.
	ErrConflict = errors.New("content: conflict")
	// ErrTransaction matches any *TransactionError.
	ErrTransaction = errors.New("content: transaction failed")
	// ErrUnknownCollection is returned when no schema is registered for a collection.
	ErrUnknownCollection = errors.New("content: unknown collection")
)

// ValidationError reports a malformed record or item. For flat upserts it aborts
// the single item; collection replaces filter the item out instead.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConflictError is returned when a create collides with an existing unique key
// outside the upsert path. It is never retried.
type ConflictError struct {
	Collection string
	Key        string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s/%s already exists", e.Collection, e.Key)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// TransactionError wraps any failure inside ReplaceCollection. The collection is
// left in its pre-replace state.
type TransactionError struct {
	Collection string
	Err        error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("replace %s: %v", e.Collection, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

func (e *TransactionError) Is(target error) bool { return target == ErrTransaction }
