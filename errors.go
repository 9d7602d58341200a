package terrane

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for registration and resolution.
var (
	// ErrDuplicateRegistration is returned when an entity type is
	// registered more than once.
	ErrDuplicateRegistration = errors.New("terrane: duplicate registration")

	// ErrLedgerFrozen is returned when a registration is attempted
	// after the ledger has been frozen.
	ErrLedgerFrozen = errors.New("terrane: ledger is frozen")

	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("terrane: entity not found")
)

// DuplicateRegistrationError reports a second registration for an
// entity type already present in the ledger. The first registration is
// preserved; the duplicate is rejected.
type DuplicateRegistrationError struct {
	TypeName string
}

// Error returns the error string.
func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("terrane: entity type %q is already registered", e.TypeName)
}

// Is reports whether the target error matches ErrDuplicateRegistration.
func (e *DuplicateRegistrationError) Is(err error) bool {
	return err == ErrDuplicateRegistration
}

// IsDuplicateRegistration returns true if the error is a DuplicateRegistrationError.
func IsDuplicateRegistration(err error) bool {
	if err == nil {
		return false
	}
	var e *DuplicateRegistrationError
	return errors.As(err, &e) || errors.Is(err, ErrDuplicateRegistration)
}

// UnknownFieldError reports the first configured field name that does
// not resolve against the entity type's declared attributes, together
// with the view it was configured for.
type UnknownFieldError struct {
	TypeName string
	View     string // "detail", "list", "filter", or "serialization"
	Field    string
}

// Error returns the error string.
func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("terrane: %s view of %q references unknown field %q", e.View, e.TypeName, e.Field)
}

// IsUnknownField returns true if the error is an UnknownFieldError.
func IsUnknownField(err error) bool {
	if err == nil {
		return false
	}
	var e *UnknownFieldError
	return errors.As(err, &e)
}

// EmptyConfigurationError reports a configuration spec that selects no
// fields in any view and offers nothing to derive a default from.
type EmptyConfigurationError struct {
	TypeName string
}

// Error returns the error string.
func (e *EmptyConfigurationError) Error() string {
	return fmt.Sprintf("terrane: configuration for %q selects no fields", e.TypeName)
}

// IsEmptyConfiguration returns true if the error is an EmptyConfigurationError.
func IsEmptyConfiguration(err error) bool {
	if err == nil {
		return false
	}
	var e *EmptyConfigurationError
	return errors.As(err, &e)
}

// AbstractInstantiationError reports an attempt to register an abstract
// category root as a concrete leaf, or to instantiate it directly.
type AbstractInstantiationError struct {
	TypeName string
}

// Error returns the error string.
func (e *AbstractInstantiationError) Error() string {
	return fmt.Sprintf("terrane: %q is abstract and cannot be instantiated", e.TypeName)
}

// IsAbstractInstantiation returns true if the error is an AbstractInstantiationError.
func IsAbstractInstantiation(err error) bool {
	if err == nil {
		return false
	}
	var e *AbstractInstantiationError
	return errors.As(err, &e)
}

// UnresolvedSubtypeError reports a stored discriminator that no longer
// maps to a registered entity type. This is a data-integrity condition
// to surface, not to coerce.
type UnresolvedSubtypeError struct {
	Discriminator string
}

// Error returns the error string.
func (e *UnresolvedSubtypeError) Error() string {
	return fmt.Sprintf("terrane: no registered type for discriminator %q", e.Discriminator)
}

// IsUnresolvedSubtype returns true if the error is an UnresolvedSubtypeError.
func IsUnresolvedSubtype(err error) bool {
	if err == nil {
		return false
	}
	var e *UnresolvedSubtypeError
	return errors.As(err, &e)
}

// BadFilterKeyError reports a requested predicate key outside the
// entity type's configured filter fields.
type BadFilterKeyError struct {
	TypeName string
	Key      string
}

// Error returns the error string.
func (e *BadFilterKeyError) Error() string {
	return fmt.Sprintf("terrane: %q is not a filterable field of %q", e.Key, e.TypeName)
}

// IsBadFilterKey returns true if the error is a BadFilterKeyError.
func IsBadFilterKey(err error) bool {
	if err == nil {
		return false
	}
	var e *BadFilterKeyError
	return errors.As(err, &e)
}

// ValidationError represents a validation error for a single field value.
type ValidationError struct {
	Name string // Field name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("terrane: validation failed for field %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// AggregateError collects every problem found while validating one
// input, so callers can present all of them at once instead of fixing
// them one round-trip at a time.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "terrane: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("terrane: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil. A single error is returned unwrapped.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
