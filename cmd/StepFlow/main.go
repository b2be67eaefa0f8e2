package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/StepFlow/internal/api"
	"github.com/BTreeMap/StepFlow/internal/identity"
	"github.com/BTreeMap/StepFlow/internal/lockfile"
	"github.com/BTreeMap/StepFlow/internal/store"
	"github.com/BTreeMap/StepFlow/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for StepFlow state data
	DefaultStateDir = "/var/lib/stepflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "stepflow.db"
	// DefaultRedisAddr is where the local identity provider keeps its codes
	DefaultRedisAddr = "localhost:6379"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("StepFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("StepFlow exited successfully")
}

func run(args []string) error {
	// Load environment configuration
	config := loadEnvironmentConfig()

	// Initialize structured logger
	initializeLogger(config.Debug)

	// Parse command line flags
	flags, err := parseCommandLineFlags(config, args)
	if err != nil {
		return err
	}

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		return fmt.Errorf("failed to create required directories: %w", err)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir, *flags.apiAddr)
	if err != nil {
		var lockErr *lockfile.LockError
		if errors.As(err, &lockErr) {
			slog.Error("StepFlow is already running", "lock", lockErr.LockPath, "holder", lockErr.Holder)
		}
		return err
	}
	defer lock.Release()

	st, err := openStore(flags)
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, closeProvider, err := identity.NewProvider(ctx, buildIdentityConfig(flags), st)
	if err != nil {
		return fmt.Errorf("failed to create identity provider: %w", err)
	}
	defer closeProvider()

	apiOpts := buildAPIOptions(flags)
	slog.Info("Bootstrapping StepFlow with configured modules")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir,
		"dsn_set", *flags.dbDSN != "",
		"api_addr", *flags.apiAddr,
		"identity_provider", *flags.provider,
		"api_options", len(apiOpts))

	return api.NewServer(provider, st, apiOpts...).Run(ctx)
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	DatabaseURL      string
	APIAddr          string
	IdentityProvider string
	RedisAddr        string
	RedisPassword    string
	SigningKey       string
	SessionTTL       time.Duration
	CodeLength       int
	ResendCooldown   time.Duration
	IdleTimeout      time.Duration
	Debug            bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	apiAddr        *string
	provider       *string
	redisAddr      *string
	codeLength     *int
	resendCooldown *time.Duration
	idleTimeout    *time.Duration
	instant        *bool

	// Not exposed as flags
	redisPassword string
	signingKey    string
	sessionTTL    time.Duration
}

// initializeLogger sets up structured logging, at debug level when requested
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         os.Getenv("STEPFLOW_STATE_DIR"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		APIAddr:          os.Getenv("API_ADDR"),
		IdentityProvider: os.Getenv("IDENTITY_PROVIDER"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		SigningKey:       os.Getenv("SESSION_SIGNING_KEY"),
		SessionTTL:       util.ParseDurationEnv("SESSION_TTL", identity.DefaultSessionTTL),
		CodeLength:       util.ParseIntEnv("CODE_LENGTH", 6),
		ResendCooldown:   util.ParseDurationEnv("RESEND_COOLDOWN", 60*time.Second),
		IdleTimeout:      util.ParseDurationEnv("FLOW_IDLE_TIMEOUT", api.DefaultIdleTimeout),
		Debug:            util.ParseBoolEnv("DEBUG", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No STEPFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.IdentityProvider == "" {
		config.IdentityProvider = identity.ProviderLocal
	}
	if config.RedisAddr == "" {
		config.RedisAddr = DefaultRedisAddr
	}

	slog.Debug("environment variables loaded",
		"STEPFLOW_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"IDENTITY_PROVIDER", config.IdentityProvider,
		"REDIS_ADDR", config.RedisAddr,
		"SESSION_SIGNING_KEY_SET", config.SigningKey != "",
		"SESSION_TTL", config.SessionTTL,
		"CODE_LENGTH", config.CodeLength,
		"RESEND_COOLDOWN", config.ResendCooldown,
		"FLOW_IDLE_TIMEOUT", config.IdleTimeout)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config, args []string) (Flags, error) {
	fs := flag.NewFlagSet("StepFlow", flag.ContinueOnError)
	flags := Flags{
		stateDir:       fs.String("state-dir", config.StateDir, "state directory for StepFlow data (overrides $STEPFLOW_STATE_DIR)"),
		dbDSN:          fs.String("db-dsn", config.DatabaseURL, "profile database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		apiAddr:        fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		provider:       fs.String("identity-provider", config.IdentityProvider, "identity provider: local or twilio (overrides $IDENTITY_PROVIDER)"),
		redisAddr:      fs.String("redis-addr", config.RedisAddr, "Redis address for the local identity provider (overrides $REDIS_ADDR)"),
		codeLength:     fs.Int("code-length", config.CodeLength, "number of digits in verification codes (overrides $CODE_LENGTH)"),
		resendCooldown: fs.Duration("resend-cooldown", config.ResendCooldown, "wait before a code can be resent (overrides $RESEND_COOLDOWN)"),
		idleTimeout:    fs.Duration("idle-timeout", config.IdleTimeout, "discard flows idle this long (overrides $FLOW_IDLE_TIMEOUT)"),
		instant:        fs.Bool("instant", false, "disable step transition fades"),

		redisPassword: config.RedisPassword,
		signingKey:    config.SigningKey,
		sessionTTL:    config.SessionTTL,
	}

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"provider", *flags.provider,
		"redisAddr", *flags.redisAddr,
		"codeLength", *flags.codeLength,
		"resendCooldown", *flags.resendCooldown,
		"idleTimeout", *flags.idleTimeout,
		"instant", *flags.instant)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags, nil
}

// ensureDirectoriesExist creates the state directory and, for SQLite, the database directory
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{*flags.stateDir}
	if *flags.dbDSN != "" && store.DetectDSNType(*flags.dbDSN) == "sqlite3" {
		dirs = append(dirs, filepath.Dir(*flags.dbDSN))
	}
	for _, dir := range dirs {
		slog.Debug("Creating directory", "dir", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create directory", "error", err, "dir", dir)
			return err
		}
	}
	return nil
}

// openStore opens the profile store named by the DSN flag
func openStore(flags Flags) (store.ProfileStore, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildIdentityConfig constructs identity provider configuration
func buildIdentityConfig(flags Flags) identity.Config {
	return identity.Config{
		Kind:          *flags.provider,
		RedisAddr:     *flags.redisAddr,
		RedisPassword: flags.redisPassword,
		SigningKey:    flags.signingKey,
		SessionTTL:    flags.sessionTTL,
		CodeLength:    *flags.codeLength,
	}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.codeLength > 0 {
		apiOpts = append(apiOpts, api.WithCodeLength(*flags.codeLength))
	}
	if *flags.resendCooldown >= 0 {
		apiOpts = append(apiOpts, api.WithResendCooldown(*flags.resendCooldown))
	}
	if *flags.idleTimeout > 0 {
		apiOpts = append(apiOpts, api.WithIdleTimeout(*flags.idleTimeout))
	}
	if *flags.instant {
		apiOpts = append(apiOpts, api.WithInstantTransitions())
	}
	return apiOpts
}
