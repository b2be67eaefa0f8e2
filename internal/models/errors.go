package models

import "fmt"

// ErrorScope tells a UI where a step error belongs.
type ErrorScope string

// ErrorKind classifies a step error.
type ErrorKind string

// Error scope constants.
const (
	ScopeField ErrorScope = "field"
	ScopeFlow  ErrorScope = "flow"
)

// Error kind constants.
const (
	KindValidation      ErrorKind = "validation"
	KindFormat          ErrorKind = "format"
	KindProvider        ErrorKind = "provider"
	KindAccountConflict ErrorKind = "account_conflict"
)

// StepError is a user-facing failure of a flow action.
//
// A field error names exactly one field and is cleared when that field's value changes.
// A flow error has no field and is cleared on dismissal or step change.
type StepError struct {
	Scope          ErrorScope `json:"scope"`
	Field          string     `json:"field,omitempty"`
	Kind           ErrorKind  `json:"kind"`
	Message        string     `json:"message"`
	StatusCode     int        `json:"status_code,omitempty"`
	ContinueAnyway bool       `json:"continue_anyway,omitempty"`
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Scope == ScopeField {
		return fmt.Sprintf("%s error on %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// IsField reports whether the error is scoped to a single field.
func (e *StepError) IsField() bool {
	return e != nil && e.Scope == ScopeField
}

// FieldError creates a field-scoped step error.
func FieldError(field string, kind ErrorKind, message string) *StepError {
	return &StepError{Scope: ScopeField, Field: field, Kind: kind, Message: message}
}

// FlowError creates a flow-scoped step error.
func FlowError(kind ErrorKind, message string) *StepError {
	return &StepError{Scope: ScopeFlow, Kind: kind, Message: message}
}

// WithStatus returns the error annotated with the originating status code.
func (e *StepError) WithStatus(code int) *StepError {
	e.StatusCode = code
	return e
}
