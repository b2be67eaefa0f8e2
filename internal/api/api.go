// Package api provides the HTTP server that hosts live StepFlow flows.
//
// Each onboarding or authentication flow runs as a session on the server; clients render the
// snapshot returned by every endpoint and drive the flow with data and navigation requests.
// Completed sign-ups are persisted through the profile store.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/StepFlow/internal/flow"
	"github.com/BTreeMap/StepFlow/internal/identity"
	"github.com/BTreeMap/StepFlow/internal/models"
	"github.com/BTreeMap/StepFlow/internal/scheduler"
	"github.com/BTreeMap/StepFlow/internal/store"
	"github.com/BTreeMap/StepFlow/internal/util"
)

// Default server configuration
const (
	// DefaultAddr is the default listen address
	DefaultAddr = ":8080"
	// DefaultIdleTimeout is how long a flow may go untouched before it is closed
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultReapInterval is how often idle flows are looked for
	DefaultReapInterval = time.Minute
	// DefaultSaveTimeout bounds the profile write made when a sign-up completes
	DefaultSaveTimeout = 5 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds configuration for the API server.
type Opts struct {
	Addr           string
	CodeLength     int
	ResendCooldown time.Duration
	IdleTimeout    time.Duration
	ReapInterval   time.Duration
	Instant        bool // skip transition timings
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithCodeLength sets the expected verification code length.
func WithCodeLength(n int) Option {
	return func(o *Opts) { o.CodeLength = n }
}

// WithResendCooldown sets the resend cooldown of authentication flows.
func WithResendCooldown(d time.Duration) Option {
	return func(o *Opts) { o.ResendCooldown = d }
}

// WithIdleTimeout sets how long an untouched flow lives.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Opts) { o.IdleTimeout = d }
}

// WithReapInterval sets how often idle flows are reaped.
func WithReapInterval(d time.Duration) Option {
	return func(o *Opts) { o.ReapInterval = d }
}

// WithInstantTransitions applies step changes without exit and enter delays.
func WithInstantTransitions() Option {
	return func(o *Opts) { o.Instant = true }
}

// Server hosts flow sessions over HTTP.
type Server struct {
	cfg      Opts
	provider identity.Provider
	st       store.ProfileStore
	sessions *Sessions
	mux      *http.ServeMux
}

// NewServer creates a server that verifies identities with provider and saves profiles to st.
func NewServer(provider identity.Provider, st store.ProfileStore, opts ...Option) *Server {
	cfg := Opts{
		Addr:           DefaultAddr,
		CodeLength:     flow.DefaultCodeLength,
		ResendCooldown: flow.DefaultResendCooldown,
		IdleTimeout:    DefaultIdleTimeout,
		ReapInterval:   DefaultReapInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		cfg:      cfg,
		provider: provider,
		st:       st,
		sessions: NewSessions(),
		mux:      http.NewServeMux(),
	}
	s.routes()
	slog.Debug("Server: created", "addr", cfg.Addr, "codeLength", cfg.CodeLength, "resendCooldown", cfg.ResendCooldown,
		"idleTimeout", cfg.IdleTimeout, "instant", cfg.Instant)
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /flows", s.createFlowHandler)
	s.mux.HandleFunc("GET /flows/{id}", s.getFlowHandler)
	s.mux.HandleFunc("DELETE /flows/{id}", s.deleteFlowHandler)
	s.mux.HandleFunc("POST /flows/{id}/data", s.dataHandler)
	s.mux.HandleFunc("POST /flows/{id}/advance", s.advanceHandler)
	s.mux.HandleFunc("POST /flows/{id}/back", s.backHandler)
	s.mux.HandleFunc("POST /flows/{id}/jump", s.jumpHandler)
	s.mux.HandleFunc("POST /flows/{id}/resend", s.resendHandler)
	s.mux.HandleFunc("POST /flows/{id}/continue-anyway", s.continueAnywayHandler)
	s.mux.HandleFunc("POST /flows/{id}/dismiss", s.dismissHandler)
	s.mux.HandleFunc("GET /definitions/{kind}", s.definitionHandler)
	s.mux.HandleFunc("GET /profiles", s.profileHandler)
	s.mux.HandleFunc("GET /healthz", s.healthHandler)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Sessions returns the live flow registry.
func (s *Server) Sessions() *Sessions {
	return s.sessions
}

// Run serves until ctx is cancelled, reaping idle flows in the background.
func (s *Server) Run(ctx context.Context) error {
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.Every(s.cfg.ReapInterval, func() {
		if n := s.sessions.ReapIdle(s.cfg.IdleTimeout); n > 0 {
			slog.Info("Server.Run: reaped idle flows", "count", n, "live", s.sessions.Len())
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule idle flow reaper: %w", err)
	}

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.sessions.CloseAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.sessions.CloseAll()
	if err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	return nil
}

// definition returns the registered definition for kind with server timings applied.
func (s *Server) definition(kind models.FlowKind) (flow.Definition, bool) {
	def, ok := flow.Get(kind)
	if !ok {
		return flow.Definition{}, false
	}
	if s.cfg.Instant {
		def.FadeOut, def.FadeIn = 0, 0
	}
	return def, true
}

// newSession builds a flow session for kind. onboardingID links a completed onboarding flow
// to a sign-up.
func (s *Server) newSession(kind models.FlowKind, mode models.AuthMode, onboardingID string) (*FlowSession, error) {
	def, ok := s.definition(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownKind, kind)
	}
	fs := &FlowSession{ID: util.GenerateFlowID(), Kind: kind, OnboardingID: onboardingID}

	switch kind {
	case models.FlowKindOnboarding:
		c, err := flow.NewOnboarding(def, flow.WithOnComplete(fs.setResult))
		if err != nil {
			return nil, err
		}
		fs.Controller = c
	case models.FlowKindAuth:
		var copts []flow.CoordinatorOption
		copts = append(copts,
			flow.WithMode(mode),
			flow.WithCodeLength(s.cfg.CodeLength),
			flow.WithCooldown(flow.NewCooldown(flow.WithCooldownDuration(s.cfg.ResendCooldown))),
		)
		if onboardingID != "" {
			copts = append(copts, flow.WithSignupMetadata(map[string]any{"onboarding_flow_id": onboardingID}))
		}
		coord := flow.NewCoordinator(s.provider, copts...)
		af, err := flow.NewAuthFlow(def, coord, flow.WithOnComplete(func(result any) {
			fs.setResult(result)
			s.completeAuth(fs, result)
		}))
		if err != nil {
			return nil, err
		}
		fs.Controller = af.Controller
		fs.Auth = af
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownKind, kind)
	}
	return fs, nil
}

// completeAuth persists the profile of a verified sign-up, merging the linked onboarding
// answers. Logins only create a bare profile for accounts the store has never seen.
func (s *Server) completeAuth(fs *FlowSession, result any) {
	res, ok := result.(*models.AuthResult)
	if !ok || s.st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultSaveTimeout)
	defer cancel()

	user := res.Session.User
	if !flow.NeedsProfile(res) {
		slog.Debug("Server.completeAuth: login completed", "flowID", fs.ID, "userID", user.UserID)
		return
	}

	var answers map[string]any
	if fs.OnboardingID != "" {
		if ob, ok := s.sessions.Peek(fs.OnboardingID); ok {
			if r, ok := ob.Result().(*flow.OnboardingResult); ok {
				answers = r.Answers
			}
		}
		if answers == nil {
			slog.Warn("Server.completeAuth: linked onboarding answers unavailable", "flowID", fs.ID, "onboardingID", fs.OnboardingID)
		}
	}

	profile := flow.BuildProfile(user, res.FullName, answers, time.Now().UTC())
	if err := s.st.SaveProfile(ctx, profile); err != nil {
		slog.Error("Server.completeAuth: failed to save profile", "error", err, "flowID", fs.ID, "userID", user.UserID)
		return
	}
	slog.Info("Server.completeAuth: profile saved", "flowID", fs.ID, "userID", user.UserID, "onboardingCompleted", profile.OnboardingCompleted)
}
