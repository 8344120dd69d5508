// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrRateLimitExceeded is the internal retry signal: the dispatcher returns it
// when the hourly quota is exhausted so the queue reschedules the job with
// backoff. It is never surfaced to the scheduling caller.
var ErrRateLimitExceeded = errors.New("RATE_LIMIT_EXCEEDED")

// ValidationError rejects a request before anything is persisted
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}

// ErrEmailNotFound is a sentinel error
type ErrEmailNotFound struct {
	EmailID string
}

func (e *ErrEmailNotFound) Error() string {
	return fmt.Sprintf("email with ID %s not found", e.EmailID)
}

// Helper constructor
func NewEmailNotFound(id string) error {
	return &ErrEmailNotFound{EmailID: id}
}
