package flow

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/BTreeMap/StepFlow/internal/identity"
	"github.com/BTreeMap/StepFlow/internal/models"
)

// DefaultCodeLength is the number of digits in a one-time code.
const DefaultCodeLength = 6

// Coordinator errors.
var (
	ErrRequestInFlight = errors.New("a verification request is already in flight")
	ErrCooldownActive  = errors.New("resend is not available until the cooldown expires")
	ErrCodeNotSent     = errors.New("no verification code has been sent")
)

// User-facing messages for classified provider failures.
const (
	msgInvalidEmail    = "Please enter a valid email address"
	msgInvalidCode     = "Please enter the 6-digit code"
	msgUserExists      = "User already exists"
	msgNoAccount       = "No account found with this email address"
	msgCodeRejected    = "Invalid verification code"
	msgProviderFailure = "Something went wrong. Please try again."
)

// Coordinator runs the send/verify/resend cycle against an identity provider for one flow.
//
// At most one provider call is outstanding at a time; a second call is rejected locally with
// ErrRequestInFlight. Results that arrive after Close are discarded and reported as ErrFlowClosed.
// Provider failures are classified here, once, into field or flow scoped step errors.
type Coordinator struct {
	provider   identity.Provider
	cooldown   *Cooldown
	codeLength int
	metadata   map[string]any

	mu       sync.Mutex
	mode     models.AuthMode
	inFlight bool
	closed   bool
	sentTo   string
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithMode sets the initial authentication mode.
func WithMode(mode models.AuthMode) CoordinatorOption {
	return func(c *Coordinator) { c.mode = mode }
}

// WithCodeLength sets the number of digits a code must have.
func WithCodeLength(n int) CoordinatorOption {
	return func(c *Coordinator) { c.codeLength = n }
}

// WithCooldown sets the cooldown that gates Resend.
func WithCooldown(cd *Cooldown) CoordinatorOption {
	return func(c *Coordinator) { c.cooldown = cd }
}

// WithSignupMetadata sets metadata attached to accounts created during sign-up.
func WithSignupMetadata(md map[string]any) CoordinatorOption {
	return func(c *Coordinator) { c.metadata = md }
}

// NewCoordinator creates a Coordinator in signup mode unless configured otherwise.
func NewCoordinator(provider identity.Provider, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		provider:   provider,
		codeLength: DefaultCodeLength,
		mode:       models.AuthModeSignup,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cooldown == nil {
		c.cooldown = NewCooldown()
	}
	return c
}

// Mode returns the current authentication mode.
func (c *Coordinator) Mode() models.AuthMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches between signup and login.
func (c *Coordinator) SetMode(mode models.AuthMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
}

// CodeSent reports whether a code was accepted by the provider for the current email.
func (c *Coordinator) CodeSent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sentTo != ""
}

// Cooldown returns the resend cooldown.
func (c *Coordinator) Cooldown() *Cooldown {
	return c.cooldown
}

// CodeLength returns the required code length.
func (c *Coordinator) CodeLength() int {
	return c.codeLength
}

// SendCode validates the email locally and asks the provider to send a code.
// Rejections are returned as *models.StepError.
func (c *Coordinator) SendCode(ctx context.Context, email string) error {
	email = models.NormalizeEmail(email)
	if !models.IsValidEmail(email) {
		slog.Warn("Coordinator.SendCode: malformed email rejected locally")
		return models.FieldError(models.FieldEmail, models.KindFormat, msgInvalidEmail)
	}
	mode, err := c.begin()
	if err != nil {
		return err
	}

	slog.Debug("Coordinator.SendCode: sending code", "email", email, "mode", mode)
	sendErr := c.provider.SendOneTimeCode(ctx, email, identity.SendOptions{
		CreateUserIfAbsent: mode == models.AuthModeSignup,
		Metadata:           c.metadataFor(mode),
	})

	if err := c.end(); err != nil {
		slog.Debug("Coordinator.SendCode: discarding result after close", "email", email)
		return err
	}
	if sendErr != nil {
		se := classifySendError(mode, sendErr)
		slog.Warn("Coordinator.SendCode: provider rejected send", "email", email, "mode", mode, "scope", se.Scope, "kind", se.Kind, "error", sendErr)
		return se
	}

	c.mu.Lock()
	c.sentTo = email
	c.mu.Unlock()
	slog.Debug("Coordinator.SendCode: code sent", "email", email)
	return nil
}

// Resend sends a fresh code when the cooldown allows it. A successful resend restarts the
// cooldown; a failed one leaves it untouched.
func (c *Coordinator) Resend(ctx context.Context, email string) error {
	if !c.cooldown.CanTrigger() {
		slog.Debug("Coordinator.Resend: cooldown active", "remaining", c.cooldown.State().RemainingSeconds)
		return ErrCooldownActive
	}
	if err := c.SendCode(ctx, email); err != nil {
		return err
	}
	c.cooldown.Start()
	return nil
}

// VerifyCode validates the code locally and asks the provider to verify it. The entered code
// is never cleared on failure.
func (c *Coordinator) VerifyCode(ctx context.Context, email, code string) (*models.Session, error) {
	email = models.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if !models.IsValidCode(code, c.codeLength) {
		slog.Warn("Coordinator.VerifyCode: malformed code rejected locally", "length", len(code))
		return nil, models.FieldError(models.FieldVerificationCode, models.KindFormat, c.codeFormatMessage())
	}
	if !models.IsValidEmail(email) {
		return nil, models.FlowError(models.KindFormat, msgInvalidEmail)
	}
	if _, err := c.begin(); err != nil {
		return nil, err
	}

	slog.Debug("Coordinator.VerifyCode: verifying code", "email", email)
	res, verifyErr := c.provider.VerifyOneTimeCode(ctx, email, code)

	if err := c.end(); err != nil {
		slog.Debug("Coordinator.VerifyCode: discarding result after close", "email", email)
		return nil, err
	}
	if verifyErr != nil {
		se := classifyVerifyError(verifyErr)
		slog.Warn("Coordinator.VerifyCode: verification failed", "email", email, "scope", se.Scope, "error", verifyErr)
		return nil, se
	}
	if res == nil {
		return nil, models.FlowError(models.KindProvider, "Verification failed - no user or session returned").WithStatus(http.StatusUnauthorized)
	}

	session := res.Session
	session.User = res.User
	slog.Debug("Coordinator.VerifyCode: verified", "email", email, "userID", res.User.UserID)
	return &session, nil
}

// Close discards any in-flight result and stops the cooldown.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.sentTo = ""
	c.mu.Unlock()
	c.cooldown.Stop()
}

func (c *Coordinator) begin() (models.AuthMode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.mode, ErrFlowClosed
	}
	if c.inFlight {
		return c.mode, ErrRequestInFlight
	}
	c.inFlight = true
	return c.mode, nil
}

func (c *Coordinator) end() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if c.closed {
		return ErrFlowClosed
	}
	return nil
}

func (c *Coordinator) metadataFor(mode models.AuthMode) map[string]any {
	if mode != models.AuthModeSignup {
		return nil
	}
	return c.metadata
}

func (c *Coordinator) codeFormatMessage() string {
	if c.codeLength == DefaultCodeLength {
		return msgInvalidCode
	}
	return "Please enter the " + strconv.Itoa(c.codeLength) + "-digit code"
}

// classifySendError maps a send failure to a field or flow error.
func classifySendError(mode models.AuthMode, err error) *models.StepError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.FlowError(models.KindProvider, "The request was cancelled. Please try again.")
	}
	var pe *identity.ProviderError
	if !errors.As(err, &pe) {
		return models.FlowError(models.KindProvider, msgProviderFailure)
	}
	if pe.Kind == identity.KindUnavailable || pe.Kind == identity.KindRateLimited {
		return models.FlowError(models.KindProvider, pe.Message).WithStatus(pe.StatusCode)
	}

	msg := strings.ToLower(pe.Message)
	if mode == models.AuthModeSignup &&
		(pe.Kind == identity.KindUserAlreadyExists || strings.Contains(msg, "already") ||
			strings.Contains(msg, "exist") || pe.StatusCode == http.StatusUnprocessableEntity) {
		se := models.FieldError(models.FieldEmail, models.KindAccountConflict, msgUserExists).WithStatus(pe.StatusCode)
		se.ContinueAnyway = true
		return se
	}
	if mode == models.AuthModeLogin &&
		(pe.Kind == identity.KindUserNotFound || strings.Contains(msg, "not found") ||
			strings.Contains(msg, "invalid") || strings.Contains(msg, "user") || pe.StatusCode == http.StatusBadRequest) {
		return models.FieldError(models.FieldEmail, models.KindProvider, msgNoAccount).WithStatus(pe.StatusCode)
	}
	if pe.Kind == identity.KindInvalidEmail || strings.Contains(msg, "email") ||
		strings.Contains(msg, "invalid") || pe.StatusCode == http.StatusUnprocessableEntity {
		return models.FieldError(models.FieldEmail, models.KindProvider, pe.Message).WithStatus(pe.StatusCode)
	}
	return models.FlowError(models.KindProvider, pe.Message).WithStatus(pe.StatusCode)
}

// classifyVerifyError maps a verification failure to a code field error, or to a flow error
// when the provider could not be reached.
func classifyVerifyError(err error) *models.StepError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.FlowError(models.KindProvider, "The request was cancelled. Please try again.")
	}
	var pe *identity.ProviderError
	if !errors.As(err, &pe) {
		return models.FlowError(models.KindProvider, msgProviderFailure)
	}
	if pe.Kind == identity.KindUnavailable {
		return models.FlowError(models.KindProvider, pe.Message).WithStatus(pe.StatusCode)
	}
	msg := pe.Message
	if msg == "" {
		msg = msgCodeRejected
	}
	return models.FieldError(models.FieldVerificationCode, models.KindProvider, msg).WithStatus(pe.StatusCode)
}
