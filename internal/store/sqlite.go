// Package store provides storage backends for StepFlow.
//
// This file implements an SQLite-backed profile store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/StepFlow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "", "DB_set", cfg.DB != nil)

	db := cfg.DB
	if db == nil {
		dsn := cfg.DSN
		if dsn == "" {
			slog.Error("SQLiteStore DSN not set")
			return nil, fmt.Errorf("database DSN not set")
		}

		// Ensure the directory exists
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("Failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		slog.Debug("SQLite database directory verified/created", "dir", dir)

		var err error
		db, err = sql.Open("sqlite3", dsn)
		if err != nil {
			slog.Error("Failed to open SQLite connection", "error", err)
			return nil, err
		}
		slog.Debug("SQLite database opened")
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("SQLite ping successful")

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveProfile implements ProfileStore.
func (s *SQLiteStore) SaveProfile(ctx context.Context, p models.ProfileRecord) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			full_name = COALESCE(excluded.full_name, user_profiles.full_name),
			onboarding_completed = (user_profiles.onboarding_completed OR excluded.onboarding_completed),
			answers = COALESCE(excluded.answers, user_profiles.answers),
			updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query, p.UserID, p.Email, nilIfEmpty(p.FullName), p.OnboardingCompleted,
		answers, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveProfile failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to save profile for %s: %w", p.UserID, err)
	}
	slog.Debug("SQLiteStore SaveProfile succeeded", "userID", p.UserID, "onboardingCompleted", p.OnboardingCompleted)
	return nil
}

// GetProfile implements ProfileStore.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*models.ProfileRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id = ?`, userID)
	p, err := scanProfileRow(row)
	if err != nil && err != ErrProfileNotFound {
		slog.Error("SQLiteStore GetProfile failed", "error", err, "userID", userID)
	}
	return p, err
}

// GetProfileByEmail implements ProfileStore.
func (s *SQLiteStore) GetProfileByEmail(ctx context.Context, email string) (*models.ProfileRecord, error) {
	email = models.NormalizeEmail(email)
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE email = ?`, email)
	p, err := scanProfileRow(row)
	if err != nil && err != ErrProfileNotFound {
		slog.Error("SQLiteStore GetProfileByEmail failed", "error", err, "email", email)
	}
	return p, err
}

// LookupAccount implements ProfileStore.
func (s *SQLiteStore) LookupAccount(ctx context.Context, email string) (string, bool, error) {
	return lookupAccount(ctx, s, email)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
