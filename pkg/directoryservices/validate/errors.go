package validate

import (
	"fmt"
	"strings"
)

// FieldError is a single field-scoped validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`

	// Warning marks advisory findings that are reported to the caller
	// but do not block the update.
	Warning bool `json:"warning,omitempty"`
}

// Errors accumulates field errors so a caller sees every independent
// problem in one pass instead of fixing them one at a time.
type Errors struct {
	errs []FieldError
}

// Add records a blocking field error.
func (e *Errors) Add(field, message string) {
	e.errs = append(e.errs, FieldError{Field: field, Message: message})
}

// AddWarning records an advisory finding.
func (e *Errors) AddWarning(field, message string) {
	e.errs = append(e.errs, FieldError{Field: field, Message: message, Warning: true})
}

// All returns every recorded finding, warnings included.
func (e *Errors) All() []FieldError {
	return e.errs
}

// Check returns e as an error if any blocking error was recorded.
func (e *Errors) Check() error {
	for _, fe := range e.errs {
		if !fe.Warning {
			return e
		}
	}
	return nil
}

// Error renders all blocking findings.
func (e *Errors) Error() string {
	var parts []string
	for _, fe := range e.errs {
		if fe.Warning {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", fe.Field, fe.Message))
	}
	return strings.Join(parts, "; ")
}
