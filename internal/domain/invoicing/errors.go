package invoicing

import (
	"errors"
	"fmt"
)

// ErrInvoiceNotFound is returned by repositories when no invoice matches.
var ErrInvoiceNotFound = errors.New("invoice not found")

// ValidationError reports input rejected at the boundary: a bad quantity or
// price, a payment outside its bounds, or a submit missing its patient or items.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// StateError reports an operation the invoice's current state does not allow,
// such as paying a cancelled invoice.
type StateError struct {
	InvoiceID string
	Reason    string
}

func (e *StateError) Error() string {
	if e.InvoiceID == "" {
		return e.Reason
	}
	return fmt.Sprintf("invoice %s: %s", e.InvoiceID, e.Reason)
}

// LookupFailure wraps a failed call to a clinical-record or catalog
// collaborator. Callers inside this package recover from it locally.
type LookupFailure struct {
	Source string
	Err    error
}

func (e *LookupFailure) Error() string {
	return fmt.Sprintf("%s lookup failed: %v", e.Source, e.Err)
}

func (e *LookupFailure) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsState reports whether err is or wraps a *StateError.
func IsState(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
