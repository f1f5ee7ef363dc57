package entities

import (
	"errors"
	"fmt"
)

// ValidationResult represents the outcome of validating tool arguments
// against a parameters schema.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Err joins the result's errors, or returns nil when the result is valid.
func (r *ValidationResult) Err() error {
	if r == nil || r.Valid {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, e)
	}
	if len(errs) == 0 {
		return errors.New("validation failed")
	}
	return errors.Join(errs...)
}

// ValidationError represents a specific validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
