package threat

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks across package boundaries.
var (
	// ErrValidation marks events rejected at ingestion for violating an
	// invariant. The store is left unchanged by a rejected append.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks lookups for an identifier that does not exist.
	// Empty query windows are not errors; only malformed or missing
	// identifiers surface ErrNotFound.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable marks transient persistence failures. The caller
	// owns the retry; no aggregate state is updated for a failed append.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError reports which field of an event violated an invariant.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError reports a lookup miss for a specific identifier.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) match any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TransientStoreError wraps a persistence backend failure that the
// ingestion collaborator should retry.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStoreUnavailable) match any TransientStoreError.
func (e *TransientStoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}
