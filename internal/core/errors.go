package core

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("payment not found")
	ErrDuplicateReference = errors.New("reference already exists")
	ErrTerminalState      = errors.New("payment already in terminal state")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrPaymentProcessing  = errors.New("payment processing error")
	ErrForbidden          = errors.New("operation requires admin")
	ErrRequestInProgress  = errors.New("a request with this idempotency key is in progress")
)

// ValidationError is returned before any network call is made
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err wraps a *ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
