package config

import (
	"fmt"
	"strings"
)

// Violation is one failed validation rule.
type Violation struct {
	// Field is the offending configuration field in document notation,
	// e.g. "log_to.table".
	Field string `json:"field"`

	// Rule is the failed validation rule.
	Rule string `json:"rule"`

	// Message is the human-readable description.
	Message string `json:"message"`
}

// ValidationError aggregates every violation found in one configuration
// document. Validation never stops at the first violation; callers get the
// full picture before anything executes.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "configuration invalid"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Message)
	}
	return fmt.Sprintf("configuration invalid: %s", strings.Join(parts, "; "))
}

// add appends a violation.
func (e *ValidationError) add(field, rule, message string) {
	e.Violations = append(e.Violations, Violation{Field: field, Rule: rule, Message: message})
}

// orNil returns the error when it carries violations, nil otherwise.
func (e *ValidationError) orNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}
