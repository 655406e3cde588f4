package fulfill

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound          = errors.New("fulfill: not found")
	ErrInvalidInput      = errors.New("fulfill: invalid input")
	ErrInvalidTransition = errors.New("fulfill: invalid status transition")

	// Catalog errors
	ErrCustomerNotFound    = errors.New("fulfill: customer not found")
	ErrServiceTypeNotFound = errors.New("fulfill: service type not found")

	// Order and invoice errors
	ErrOrderNotFound   = errors.New("fulfill: order not found")
	ErrInvoiceNotFound = errors.New("fulfill: invoice not found")

	// Service errors
	ErrServiceNotFound    = errors.New("fulfill: service not found")
	ErrProvisioningFailed = errors.New("fulfill: provisioning failed")
	ErrBillingClaimLost   = errors.New("fulfill: billing period already claimed")

	// Store errors
	ErrDuplicateKey      = errors.New("fulfill: duplicate key")
	ErrStoreClosed       = errors.New("fulfill: store is closed")
	ErrTransactionFailed = errors.New("fulfill: transaction failed")
	ErrMigrationFailed   = errors.New("fulfill: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("fulfill: validation failed for %s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrInvalidInput.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ProvisioningError wraps a failed external provisioning call. The service
// it refers to stays committed.
type ProvisioningError struct {
	ServiceID string
	Err       error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("fulfill: provisioning service %s: %v", e.ServiceID, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

func (e *ProvisioningError) Is(target error) bool {
	return target == ErrProvisioningFailed
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "fulfill: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("fulfill: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrServiceTypeNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrServiceNotFound)
}

// IsDuplicateKey returns true if a unique constraint rejected a write.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrBillingClaimLost)
}
