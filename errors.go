package bulkq

import (
	"errors"
	"fmt"
)

var (
	// Store errors.
	ErrNoStore         = errors.New("bulkq: no store configured")
	ErrStoreClosed     = errors.New("bulkq: store closed")
	ErrMigrationFailed = errors.New("bulkq: migration failed")

	// Not found errors.
	ErrJobNotFound = errors.New("bulkq: job not found")

	// Conflict errors.
	ErrJobAlreadyExists  = errors.New("bulkq: job already exists")
	ErrDuplicateIdemKey  = errors.New("bulkq: idempotency key already used")
	ErrVersionConflict   = errors.New("bulkq: job row changed concurrently")
	ErrConflictExhausted = errors.New("bulkq: optimistic write retries exhausted")

	// Policy errors.
	ErrRetryBudgetExceeded = errors.New("bulkq: retry budget exceeded")
	ErrOwnerThrottled      = errors.New("bulkq: owner dispatch limit reached")

	// Signaling errors.
	ErrWorkerUnreachable = errors.New("bulkq: worker signal failed")
)

// ValidationError reports a bad submission or progress input. It is surfaced
// to the caller directly and never results in a state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bulkq: invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
