// Command stepflow-tui runs the onboarding and sign-up flows in the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/StepFlow/internal/identity"
	"github.com/BTreeMap/StepFlow/internal/models"
	"github.com/BTreeMap/StepFlow/internal/store"
	"github.com/BTreeMap/StepFlow/internal/tui"
	"github.com/BTreeMap/StepFlow/internal/util"
)

// providerMock accepts any code and is meant for trying the flows out
const providerMock = "mock"

// Flags holds command line flag values
type Flags struct {
	mode           *string
	skipOnboarding *bool
	dbDSN          *string
	provider       *string
	redisAddr      *string
	codesFile      *string
	logFile        *string
	instant        *bool
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "stepflow-tui:", err)
		}
		os.Exit(2)
	}
	if err := run(flags); err != nil {
		fmt.Fprintln(os.Stderr, "stepflow-tui:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("stepflow-tui", flag.ContinueOnError)
	flags := Flags{
		mode:           fs.String("mode", string(models.AuthModeSignup), "initial auth mode: signup or login"),
		skipOnboarding: fs.Bool("skip-onboarding", false, "start directly at authentication"),
		dbDSN:          fs.String("db-dsn", os.Getenv("DATABASE_URL"), "profile database DSN, in-memory when empty (overrides $DATABASE_URL)"),
		provider:       fs.String("identity-provider", envOr("IDENTITY_PROVIDER", providerMock), "identity provider: mock, local or twilio (overrides $IDENTITY_PROVIDER)"),
		redisAddr:      fs.String("redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "Redis address for the local provider (overrides $REDIS_ADDR)"),
		codesFile:      fs.String("codes-file", "stepflow-codes.txt", "file the local provider writes verification codes to"),
		logFile:        fs.String("log-file", "", "write logs to this file"),
		instant:        fs.Bool("instant", false, "disable step transition fades"),
	}
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if !models.IsValidAuthMode(models.AuthMode(*flags.mode)) {
		return Flags{}, fmt.Errorf("unknown mode %q", *flags.mode)
	}
	return flags, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// initializeLogger sends logs to path, or discards them since the terminal belongs to the UI
func initializeLogger(path string) (func() error, error) {
	if path == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return f.Close, nil
}

func run(flags Flags) error {
	closeLog, err := initializeLogger(*flags.logFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer closeLog()

	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}
	defer st.Close()

	provider, closeProvider, err := openProvider(flags, st)
	if err != nil {
		return fmt.Errorf("failed to create identity provider: %w", err)
	}
	defer closeProvider()

	return tui.Run(buildTUIOptions(flags, provider, st)...)
}

func openStore(dsn string) (store.ProfileStore, error) {
	if dsn == "" {
		return store.NewInMemoryStore(), nil
	}
	return store.New(dsn)
}

func openProvider(flags Flags, st store.ProfileStore) (identity.Provider, func() error, error) {
	if *flags.provider == providerMock {
		slog.Debug("stepflow-tui: using mock identity provider")
		return identity.NewMockProvider(), func() error { return nil }, nil
	}

	cfg := identity.Config{
		Kind:          *flags.provider,
		RedisAddr:     *flags.redisAddr,
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		SigningKey:    os.Getenv("SESSION_SIGNING_KEY"),
		SessionTTL:    util.ParseDurationEnv("SESSION_TTL", identity.DefaultSessionTTL),
		CodeLength:    util.ParseIntEnv("CODE_LENGTH", 6),
	}
	closers := []func() error{}
	if cfg.Kind == identity.ProviderLocal {
		f, err := os.OpenFile(*flags.codesFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open codes file: %w", err)
		}
		cfg.CodeOutput = f
		closers = append(closers, f.Close)
	}

	p, closeFn, err := identity.NewProvider(context.Background(), cfg, st)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, nil, err
	}
	closers = append(closers, closeFn)
	return p, func() error {
		var firstErr error
		for _, c := range closers {
			if err := c(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}, nil
}

func buildTUIOptions(flags Flags, provider identity.Provider, st store.ProfileStore) []tui.Option {
	opts := []tui.Option{
		tui.WithProvider(provider),
		tui.WithStore(st),
		tui.WithMode(models.AuthMode(*flags.mode)),
		tui.WithCodeLength(util.ParseIntEnv("CODE_LENGTH", 6)),
	}
	if cooldown := util.ParseDurationEnv("RESEND_COOLDOWN", -1); cooldown >= 0 {
		opts = append(opts, tui.WithResendCooldown(cooldown))
	}
	if *flags.skipOnboarding {
		opts = append(opts, tui.WithoutOnboarding())
	}
	if *flags.instant {
		opts = append(opts, tui.WithInstantTransitions())
	}
	return opts
}
