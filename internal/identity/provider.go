// Package identity defines the one-time-code identity provider boundary and its implementations.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// ErrCodeMismatch is returned by code stores when a submitted code does not match.
var ErrCodeMismatch = errors.New("verification code does not match")

// SendOptions carries per-request instructions for sending a one-time code.
type SendOptions struct {
	// CreateUserIfAbsent asks the provider to create an account for an unknown email.
	CreateUserIfAbsent bool
	// Metadata is attached to a newly created account.
	Metadata map[string]any
}

// VerifyResult is the identity and session established by a verified code.
type VerifyResult struct {
	User    models.Identity
	Session models.Session
}

// Provider sends and verifies one-time codes.
type Provider interface {
	// SendOneTimeCode emails a fresh code to the address.
	SendOneTimeCode(ctx context.Context, email string, opts SendOptions) error
	// VerifyOneTimeCode checks a code and establishes a session.
	VerifyOneTimeCode(ctx context.Context, email, code string) (*VerifyResult, error)
}

// ErrorKind classifies provider failures.
type ErrorKind string

// Provider error kinds.
const (
	KindUserAlreadyExists ErrorKind = "user_already_exists"
	KindUserNotFound      ErrorKind = "user_not_found"
	KindInvalidEmail      ErrorKind = "invalid_email"
	KindInvalidCode       ErrorKind = "invalid_code"
	KindCodeExpired       ErrorKind = "code_expired"
	KindRateLimited       ErrorKind = "rate_limited"
	KindUnavailable       ErrorKind = "unavailable"
)

// ProviderError is a failure reported by an identity provider.
type ProviderError struct {
	Message    string
	StatusCode int
	Kind       ErrorKind
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("identity provider error (%d %s): %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("identity provider error (%s): %s", e.Kind, e.Message)
}

// Unwrap returns the underlying transport error, if any.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError.
func NewProviderError(kind ErrorKind, status int, message string) *ProviderError {
	return &ProviderError{Kind: kind, StatusCode: status, Message: message}
}

// Directory looks up existing accounts by email. Providers that cannot create users
// themselves use it to honor CreateUserIfAbsent.
type Directory interface {
	// LookupAccount returns the user id registered for email, if any.
	LookupAccount(ctx context.Context, email string) (userID string, found bool, err error)
}
