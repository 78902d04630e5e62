package domain

import (
	"errors"
	"fmt"
)

// FailureCategory is the machine-readable classification carried by every
// failure surfaced from this core.
type FailureCategory string

const (
	// FailureValidation marks a required field missing before a mutation is
	// attempted. The mutation is never sent.
	FailureValidation FailureCategory = "validation_failed"
	// FailureConstraint marks a write the persistence layer rejected because
	// a field value falls outside its enforced enumeration. It indicates the
	// taxonomy allow-list has drifted from the backend constraint.
	FailureConstraint FailureCategory = "constraint_rejected"
	// FailureTransient marks a network or timeout error on a persist call.
	// Callers revert optimistic state and let the user retry manually.
	FailureTransient FailureCategory = "transient"
	// FailureNotFound marks an entity deleted concurrently server-side.
	FailureNotFound FailureCategory = "not_found"
)

// Failure pairs a category with a human-readable message.
type Failure struct {
	Category FailureCategory
	Message  string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Category, f.Message)
}

// NewValidation builds a validation failure.
func NewValidation(format string, args ...any) error {
	return &Failure{Category: FailureValidation, Message: fmt.Sprintf(format, args...)}
}

// NewConstraint builds a constraint-rejection failure.
func NewConstraint(format string, args ...any) error {
	return &Failure{Category: FailureConstraint, Message: fmt.Sprintf(format, args...)}
}

// NewTransient builds a transient failure.
func NewTransient(format string, args ...any) error {
	return &Failure{Category: FailureTransient, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound builds a not-found failure.
func NewNotFound(format string, args ...any) error {
	return &Failure{Category: FailureNotFound, Message: fmt.Sprintf(format, args...)}
}

// CategoryOf extracts the failure category from an error chain. Unclassified
// errors are treated as transient so callers always roll back to a valid
// state.
func CategoryOf(err error) FailureCategory {
	var f *Failure
	if errors.As(err, &f) {
		return f.Category
	}
	return FailureTransient
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category FailureCategory) bool {
	var f *Failure
	return errors.As(err, &f) && f.Category == category
}
