// Package models defines the core data structures for StepFlow.
//
// It includes step metadata, accumulated flow values, step errors, sessions and profile
// records, which are shared across the flow engine, the identity providers, the store and the API.
package models

import (
	"errors"
	"regexp"
	"strings"
)

// Validation constants for step definitions and user input
const (
	// MaxStepIDLength defines the maximum allowed length for a step identifier
	MaxStepIDLength = 64
	// MaxOptionLabelLength defines the maximum allowed length for option labels
	MaxOptionLabelLength = 100
	// MaxOptionsCount defines the maximum number of options a select step may carry
	MaxOptionsCount = 20
	// MinFullNameLength defines the minimum length of a non-empty full name
	MinFullNameLength = 2
	// MaxFullNameLength defines the maximum length of a full name
	MaxFullNameLength = 50
)

// Error variables for better error handling and testability
var (
	ErrEmptyStepID        = errors.New("step id cannot be empty")
	ErrStepIDTooLong      = errors.New("step id exceeds maximum length")
	ErrInvalidInputKind   = errors.New("invalid input kind")
	ErrMissingOptions     = errors.New("options are required for select steps")
	ErrTooManyOptions     = errors.New("too many options")
	ErrUnexpectedOptions  = errors.New("options are only allowed on select steps")
	ErrEmptyOptionID      = errors.New("option id cannot be empty")
	ErrEmptyOptionLabel   = errors.New("option label cannot be empty")
	ErrOptionLabelTooLong = errors.New("option label exceeds maximum length")
	ErrDuplicateOption    = errors.New("duplicate option id")
	ErrRequiredNoInput    = errors.New("steps without input cannot be required")
	ErrInvalidFullName    = errors.New("full name must be empty or 2-50 characters with only letters, spaces, hyphens, and apostrophes")
	ErrEmptyUserID        = errors.New("user id cannot be empty")
	ErrEmptyEmail         = errors.New("email cannot be empty")
)

var (
	fullNamePattern = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidateFullName checks the optional full name collected before sign-up.
// An empty name is valid.
func ValidateFullName(name string) error {
	if name == "" {
		return nil
	}
	if len(name) < MinFullNameLength || len(name) > MaxFullNameLength || !fullNamePattern.MatchString(name) {
		return ErrInvalidFullName
	}
	return nil
}

// IsValidEmail reports whether the address has the local@domain.tld shape.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsValidCode reports whether code is exactly length ASCII digits.
func IsValidCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeEmail trims surrounding whitespace and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRejected indicates a flow action was rejected with a step error.
	APIStatusRejected APIStatus = "rejected"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Rejected creates a response for a flow action that surfaced a step error.
// The result carries the flow snapshot so the client can render the error in place.
func Rejected(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRejected).
		WithMessage(message).
		WithResult(result).
		Build()
}
