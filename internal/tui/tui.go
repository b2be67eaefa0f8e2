// Package tui implements the StepFlow terminal client.
//
// It runs the onboarding questionnaire and then the sign-up flow in-process, rendering each
// controller snapshot the way a mobile sheet would: the current step, its options or text
// input, errors, the resend cooldown and the transition phase.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BTreeMap/StepFlow/internal/flow"
	"github.com/BTreeMap/StepFlow/internal/identity"
	"github.com/BTreeMap/StepFlow/internal/models"
	"github.com/BTreeMap/StepFlow/internal/store"
)

// Opts configures the terminal client.
type Opts struct {
	Provider       identity.Provider
	Store          store.ProfileStore // optional
	Mode           models.AuthMode
	CodeLength     int
	ResendCooldown time.Duration
	SkipOnboarding bool
	Instant        bool // skip transition timings
}

// Option defines a configuration option for the terminal client.
type Option func(*Opts)

// WithProvider sets the identity provider.
func WithProvider(p identity.Provider) Option {
	return func(o *Opts) { o.Provider = p }
}

// WithStore sets the store completed sign-ups are saved to.
func WithStore(st store.ProfileStore) Option {
	return func(o *Opts) { o.Store = st }
}

// WithMode sets the initial authentication mode.
func WithMode(mode models.AuthMode) Option {
	return func(o *Opts) { o.Mode = mode }
}

// WithCodeLength sets the expected verification code length.
func WithCodeLength(n int) Option {
	return func(o *Opts) { o.CodeLength = n }
}

// WithResendCooldown sets the resend cooldown.
func WithResendCooldown(d time.Duration) Option {
	return func(o *Opts) { o.ResendCooldown = d }
}

// WithoutOnboarding starts directly at authentication.
func WithoutOnboarding() Option {
	return func(o *Opts) { o.SkipOnboarding = true }
}

// WithInstantTransitions applies step changes without exit and enter delays.
func WithInstantTransitions() Option {
	return func(o *Opts) { o.Instant = true }
}

// Run launches the terminal client and blocks until it exits.
func Run(opts ...Option) error {
	m, err := newModel(opts...)
	if err != nil {
		return err
	}
	defer m.close()

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(model); ok {
		fm.close()
		if fm.result != nil {
			fmt.Printf("Signed in as %s (%s)\n", fm.result.Session.User.Email, fm.result.Session.User.UserID)
		}
	}
	return nil
}

func resolveOpts(opts ...Option) (Opts, error) {
	cfg := Opts{
		Mode:           models.AuthModeSignup,
		CodeLength:     flow.DefaultCodeLength,
		ResendCooldown: flow.DefaultResendCooldown,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Provider == nil {
		return cfg, fmt.Errorf("identity provider not set")
	}
	if !models.IsValidAuthMode(cfg.Mode) {
		return cfg, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
	return cfg, nil
}

// definition returns the registered definition for kind with client timings applied.
func (o Opts) definition(kind models.FlowKind) (flow.Definition, error) {
	def, ok := flow.Get(kind)
	if !ok {
		return flow.Definition{}, fmt.Errorf("no %s flow registered", kind)
	}
	if o.Instant {
		def.FadeOut, def.FadeIn = 0, 0
	}
	return def, nil
}
