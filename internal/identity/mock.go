package identity

import (
	"context"
	"sync"
	"time"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// MockProvider is an in-memory Provider for tests and demos. It records every call.
//
// When Codes holds an entry for an email, only that code verifies; otherwise any code does.
// Gate, when set, blocks each call until a value is received, which lets tests hold a call
// in flight.
type MockProvider struct {
	mu sync.Mutex

	SendErr   error
	VerifyErr error
	Codes     map[string]string
	Gate      chan struct{}

	SendCalls   []MockSendCall
	VerifyCalls []MockVerifyCall
}

// MockSendCall records one SendOneTimeCode call.
type MockSendCall struct {
	Email string
	Opts  SendOptions
}

// MockVerifyCall records one VerifyOneTimeCode call.
type MockVerifyCall struct {
	Email string
	Code  string
}

// NewMockProvider creates a MockProvider that accepts everything.
func NewMockProvider() *MockProvider {
	return &MockProvider{Codes: make(map[string]string)}
}

// SendOneTimeCode implements Provider.
func (m *MockProvider) SendOneTimeCode(ctx context.Context, email string, opts SendOptions) error {
	m.mu.Lock()
	m.SendCalls = append(m.SendCalls, MockSendCall{Email: email, Opts: opts})
	gate, err := m.Gate, m.SendErr
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// VerifyOneTimeCode implements Provider.
func (m *MockProvider) VerifyOneTimeCode(ctx context.Context, email, code string) (*VerifyResult, error) {
	m.mu.Lock()
	m.VerifyCalls = append(m.VerifyCalls, MockVerifyCall{Email: email, Code: code})
	gate, err := m.Gate, m.VerifyErr
	want, pinned := m.Codes[email]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if pinned && want != code {
		return nil, NewProviderError(KindInvalidCode, 401, "Token has expired or is invalid")
	}
	user := models.Identity{UserID: "user-" + email, Email: email, CreatedAt: time.Now()}
	return &VerifyResult{
		User: user,
		Session: models.Session{
			AccessToken: "access-" + email,
			TokenType:   "bearer",
			ExpiresAt:   time.Now().Add(time.Hour),
			User:        user,
		},
	}, nil
}

// SendCount returns the number of SendOneTimeCode calls.
func (m *MockProvider) SendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SendCalls)
}

// VerifyCount returns the number of VerifyOneTimeCode calls.
func (m *MockProvider) VerifyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.VerifyCalls)
}

// SetSendErr sets the error returned by subsequent sends.
func (m *MockProvider) SetSendErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendErr = err
}

// SetVerifyErr sets the error returned by subsequent verifications.
func (m *MockProvider) SetVerifyErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerifyErr = err
}
