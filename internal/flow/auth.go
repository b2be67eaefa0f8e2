package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// ErrNoAccountConflict is returned by ContinueAnyway when there is no conflict to resolve.
var ErrNoAccountConflict = errors.New("no account conflict to continue past")

// AuthFlow is a Controller for the one-time-code sign-up and login flow.
//
// Advancing from the email step sends a code; advancing from the verification step verifies
// it and completes the flow with a *models.AuthResult.
type AuthFlow struct {
	*Controller
	coord *Coordinator
}

// NewAuthFlow creates an authentication flow over def using coord for provider calls.
func NewAuthFlow(def Definition, coord *Coordinator, opts ...ControllerOption) (*AuthFlow, error) {
	opts = append([]ControllerOption{WithBehavior(&authBehavior{coord: coord})}, opts...)
	c, err := NewController(def, opts...)
	if err != nil {
		return nil, err
	}
	return &AuthFlow{Controller: c, coord: coord}, nil
}

// Mode returns the current authentication mode.
func (f *AuthFlow) Mode() models.AuthMode {
	return f.coord.Mode()
}

// SetMode switches between sign-up and login.
func (f *AuthFlow) SetMode(mode models.AuthMode) {
	f.coord.SetMode(mode)
	f.changed()
}

// Cooldown returns the resend cooldown.
func (f *AuthFlow) Cooldown() *Cooldown {
	return f.coord.Cooldown()
}

// Resend sends a fresh code to the accepted email. It returns ErrCooldownActive without
// calling the provider while the cooldown runs.
func (f *AuthFlow) Resend(ctx context.Context) error {
	if !f.coord.CodeSent() {
		return ErrCodeNotSent
	}
	return f.call(func(values map[string]models.FieldValue) error {
		return f.coord.Resend(ctx, values[models.FieldEmail].Text)
	})
}

// ContinueAnyway resolves an "already exists" sign-up conflict by switching to login and
// sending a code to the same email.
func (f *AuthFlow) ContinueAnyway(ctx context.Context) error {
	se := f.CurrentError()
	if se == nil || !se.ContinueAnyway {
		return ErrNoAccountConflict
	}
	slog.Debug("AuthFlow.ContinueAnyway: switching to login")
	f.coord.SetMode(models.AuthModeLogin)
	f.DismissError()
	return f.Advance(ctx)
}

// authBehavior wires the coordinator into the controller.
type authBehavior struct {
	coord *Coordinator
}

func (b *authBehavior) BeforeAdvance(ctx context.Context, step models.Step, _ bool, values map[string]models.FieldValue) (any, error) {
	email := values[models.FieldEmail].Text
	fullName := strings.TrimSpace(values[models.FieldFullName].Text)

	switch step.FieldKey() {
	case models.FieldEmail:
		if b.coord.Mode() == models.AuthModeSignup {
			if err := models.ValidateFullName(fullName); err != nil {
				return nil, models.FieldError(models.FieldFullName, models.KindFormat, err.Error())
			}
		}
		return nil, b.coord.SendCode(ctx, email)
	case models.FieldVerificationCode:
		session, err := b.coord.VerifyCode(ctx, email, values[models.FieldVerificationCode].Text)
		if err != nil {
			return nil, err
		}
		return &models.AuthResult{
			Mode:     b.coord.Mode(),
			Session:  *session,
			FullName: fullName,
		}, nil
	}
	return nil, nil
}

func (b *authBehavior) StepEntered(_, to models.Step, forward bool) {
	if forward && to.FieldKey() == models.FieldVerificationCode && b.coord.CodeSent() {
		b.coord.Cooldown().Start()
	}
}

func (b *authBehavior) ClearOnBack(step models.Step) []string {
	switch step.FieldKey() {
	case models.FieldVerificationCode, models.FieldEmail:
		return []string{step.FieldKey()}
	}
	return nil
}

func (b *authBehavior) Describe(snap *models.FlowSnapshot) {
	snap.Mode = b.coord.Mode()
	cs := b.coord.Cooldown().State()
	snap.Cooldown = &cs
}

func (b *authBehavior) Close() {
	b.coord.Close()
}
