package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// ConfigurationError signals a mismatch between the static linked field
// configuration and the code. It is never caused by user input.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "linked field configuration: " + e.Reason
	}
	return fmt.Sprintf("linked field %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// ErrConfiguration matches any *ConfigurationError with errors.Is.
var ErrConfiguration = &ConfigurationError{}

// ValidationError is a client input fault in a submitted answer.
type ValidationError struct {
	Question string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Question == "" {
		return "invalid answer: " + e.Reason
	}
	return fmt.Sprintf("invalid answer for %s: %s", e.Question, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ErrValidation matches any *ValidationError with errors.Is.
var ErrValidation = &ValidationError{}
