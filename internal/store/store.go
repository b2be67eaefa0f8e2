// Package store provides storage backends for StepFlow.
//
// It persists user profiles built from verified identities and completed onboarding answers,
// with an in-memory store for tests and development and SQLite or PostgreSQL for deployments.
package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// ErrProfileNotFound is returned when no profile matches a lookup.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileStore is the profile persistence boundary.
type ProfileStore interface {
	// SaveProfile inserts or updates a profile keyed by user id. Existing answers and full
	// name are kept when the new record leaves them empty.
	SaveProfile(ctx context.Context, p models.ProfileRecord) error
	// GetProfile returns the profile for a user id.
	GetProfile(ctx context.Context, userID string) (*models.ProfileRecord, error)
	// GetProfileByEmail returns the profile registered for an email.
	GetProfileByEmail(ctx context.Context, email string) (*models.ProfileRecord, error)
	// LookupAccount reports the user id registered for an email.
	LookupAccount(ctx context.Context, email string) (string, bool, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string  // Database connection string or file path
	DB  *sql.DB // Pre-opened database handle; takes precedence over DSN
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithDB supplies an already opened database handle.
func WithDB(db *sql.DB) Option {
	return func(o *Opts) { o.DB = db }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the backend matching the DSN.
func New(dsn string) (ProfileStore, error) {
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}

// InMemoryStore is a simple in-memory profile store.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]models.ProfileRecord
	byEmail  map[string]string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		profiles: make(map[string]models.ProfileRecord),
		byEmail:  make(map[string]string),
	}
}

// SaveProfile implements ProfileStore.
func (s *InMemoryStore) SaveProfile(_ context.Context, p models.ProfileRecord) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.Email = models.NormalizeEmail(p.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.profiles[p.UserID]; ok {
		p = mergeProfile(prev, p)
		if prev.Email != p.Email {
			delete(s.byEmail, prev.Email)
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	s.profiles[p.UserID] = cloneProfile(p)
	s.byEmail[p.Email] = p.UserID
	slog.Debug("InMemoryStore.SaveProfile: saved", "userID", p.UserID, "email", p.Email)
	return nil
}

// GetProfile implements ProfileStore.
func (s *InMemoryStore) GetProfile(_ context.Context, userID string) (*models.ProfileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	out := cloneProfile(p)
	return &out, nil
}

// GetProfileByEmail implements ProfileStore.
func (s *InMemoryStore) GetProfileByEmail(ctx context.Context, email string) (*models.ProfileRecord, error) {
	s.mu.RLock()
	id, ok := s.byEmail[models.NormalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrProfileNotFound
	}
	return s.GetProfile(ctx, id)
}

// LookupAccount implements ProfileStore.
func (s *InMemoryStore) LookupAccount(ctx context.Context, email string) (string, bool, error) {
	return lookupAccount(ctx, s, email)
}

// Close implements ProfileStore.
func (s *InMemoryStore) Close() error {
	return nil
}

// lookupAccount maps a by-email lookup onto the identity directory contract.
func lookupAccount(ctx context.Context, s ProfileStore, email string) (string, bool, error) {
	p, err := s.GetProfileByEmail(ctx, email)
	if errors.Is(err, ErrProfileNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p.UserID, true, nil
}

// mergeProfile applies next over prev the way SaveProfile's upsert does in SQL.
func mergeProfile(prev, next models.ProfileRecord) models.ProfileRecord {
	if next.FullName == "" {
		next.FullName = prev.FullName
	}
	if next.Answers == nil {
		next.Answers = prev.Answers
	}
	next.OnboardingCompleted = next.OnboardingCompleted || prev.OnboardingCompleted
	next.CreatedAt = prev.CreatedAt
	return next
}

func cloneProfile(p models.ProfileRecord) models.ProfileRecord {
	if p.Answers != nil {
		answers := make(map[string]any, len(p.Answers))
		for k, v := range p.Answers {
			answers[k] = v
		}
		p.Answers = answers
	}
	return p
}
