// Package store provides storage backends for StepFlow.
//
// This file implements a PostgreSQL-backed profile store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/StepFlow/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "", "DB_set", cfg.DB != nil)

	db := cfg.DB
	if db == nil {
		dsn := cfg.DSN
		if dsn == "" {
			slog.Error("PostgresStore DSN not set")
			return nil, fmt.Errorf("database DSN not set")
		}

		var err error
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			slog.Error("Failed to open Postgres connection", "error", err)
			return nil, err
		}
		slog.Debug("Postgres database opened")

		// Configure connection pool for better performance
		db.SetMaxOpenConns(DefaultMaxOpenConns)
		db.SetMaxIdleConns(DefaultMaxIdleConns)
		db.SetConnMaxLifetime(DefaultConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Postgres ping successful")

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// SaveProfile implements ProfileStore.
func (s *PostgresStore) SaveProfile(ctx context.Context, p models.ProfileRecord) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Email = models.NormalizeEmail(p.Email)
	answers, err := encodeAnswers(p.Answers)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	query := `INSERT INTO user_profiles (user_id, email, full_name, onboarding_completed, answers, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = COALESCE(EXCLUDED.full_name, user_profiles.full_name),
			onboarding_completed = (user_profiles.onboarding_completed OR EXCLUDED.onboarding_completed),
			answers = COALESCE(EXCLUDED.answers, user_profiles.answers),
			updated_at = EXCLUDED.updated_at`
	_, err = s.db.ExecContext(ctx, query, p.UserID, p.Email, nilIfEmpty(p.FullName), p.OnboardingCompleted,
		answers, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore.SaveProfile: failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to save profile for %s: %w", p.UserID, err)
	}
	slog.Debug("PostgresStore.SaveProfile: succeeded", "userID", p.UserID, "onboardingCompleted", p.OnboardingCompleted)
	return nil
}

// GetProfile implements ProfileStore.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.ProfileRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id = $1`, userID)
	p, err := scanProfileRow(row)
	if err != nil && err != ErrProfileNotFound {
		slog.Error("PostgresStore.GetProfile: failed", "error", err, "userID", userID)
	}
	return p, err
}

// GetProfileByEmail implements ProfileStore.
func (s *PostgresStore) GetProfileByEmail(ctx context.Context, email string) (*models.ProfileRecord, error) {
	email = models.NormalizeEmail(email)
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE email = $1`, email)
	p, err := scanProfileRow(row)
	if err != nil && err != ErrProfileNotFound {
		slog.Error("PostgresStore.GetProfileByEmail: failed", "error", err, "email", email)
	}
	return p, err
}

// LookupAccount implements ProfileStore.
func (s *PostgresStore) LookupAccount(ctx context.Context, email string) (string, bool, error) {
	return lookupAccount(ctx, s, email)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("PostgresStore.Close: closing database connection")
	return s.db.Close()
}
