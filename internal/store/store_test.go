package store

import (
	"context"
	"errors"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/StepFlow/internal/models"
)

func sampleProfile() models.ProfileRecord {
	return models.ProfileRecord{
		UserID:              "user-1",
		Email:               "Ada@Example.com ",
		FullName:            "Ada Lovelace",
		OnboardingCompleted: true,
		Answers: map[string]any{
			"gender": "female",
			"goals":  []any{"strength", "mobility"},
		},
	}
}

// exerciseProfileStore runs the behavior every backend must share.
func exerciseProfileStore(t *testing.T, s ProfileStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.GetProfile(ctx, "user-1")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	id, found, err := s.LookupAccount(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, id)

	require.NoError(t, s.SaveProfile(ctx, sampleProfile()))

	got, err := s.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, "Ada Lovelace", got.FullName)
	assert.True(t, got.OnboardingCompleted)
	assert.Equal(t, "female", got.Answers["gender"])
	assert.False(t, got.CreatedAt.IsZero())

	byEmail, err := s.GetProfileByEmail(ctx, "  ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", byEmail.UserID)

	id, found, err = s.LookupAccount(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "user-1", id)

	// A later save without answers keeps what onboarding stored.
	require.NoError(t, s.SaveProfile(ctx, models.ProfileRecord{UserID: "user-1", Email: "ada@example.com"}))
	got, err = s.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.FullName)
	assert.True(t, got.OnboardingCompleted)
	assert.Equal(t, "female", got.Answers["gender"])

	err = s.SaveProfile(ctx, models.ProfileRecord{Email: "x@example.com"})
	assert.ErrorIs(t, err, models.ErrEmptyUserID)
	err = s.SaveProfile(ctx, models.ProfileRecord{UserID: "user-2", Email: "x@example.com", FullName: "R2-D2"})
	assert.ErrorIs(t, err, models.ErrInvalidFullName)
}

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	defer s.Close()
	exerciseProfileStore(t, s)
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.SaveProfile(ctx, sampleProfile()))

	got, err := s.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	got.Answers["gender"] = "changed"

	again, err := s.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "female", again.Answers["gender"])
}

func TestInMemoryStore_EmailChange(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.SaveProfile(ctx, sampleProfile()))
	require.NoError(t, s.SaveProfile(ctx, models.ProfileRecord{UserID: "user-1", Email: "new@example.com"}))

	_, found, err := s.LookupAccount(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = s.LookupAccount(ctx, "new@example.com")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSQLiteStore(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "stepflow.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	require.NoError(t, err)
	defer s.Close()
	exerciseProfileStore(t, s)
}

func TestSQLiteStore_RequiresDSN(t *testing.T) {
	_, err := NewSQLiteStore()
	assert.Error(t, err)
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db":       "postgres",
		"postgresql://localhost/db":         "postgres",
		"host=localhost dbname=stepflow":    "postgres",
		"/var/lib/stepflow/stepflow.db":     "sqlite3",
		"file:stepflow.db?_busy_timeout=50": "sqlite3",
	}
	for dsn, want := range cases {
		assert.Equal(t, want, DetectDSNType(dsn), dsn)
	}
}

func newMockPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS user_profiles").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewPostgresStore(WithDB(db))
	require.NoError(t, err)
	return s, mock
}

func TestPostgresStore_SaveProfile(t *testing.T) {
	s, mock := newMockPostgres(t)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	p := sampleProfile()
	p.CreatedAt = created
	p.UpdatedAt = created
	mock.ExpectExec("INSERT INTO user_profiles").
		WithArgs("user-1", "ada@example.com", "Ada Lovelace", true, sqlmock.AnyArg(), created, created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SaveProfile(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveProfileError(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec("INSERT INTO user_profiles").WillReturnError(errors.New("connection reset"))

	err := s.SaveProfile(context.Background(), sampleProfile())
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProfileByEmail(t *testing.T) {
	s, mock := newMockPostgres(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"user_id", "email", "full_name", "onboarding_completed", "answers", "created_at", "updated_at"}).
		AddRow("user-1", "ada@example.com", nil, false, `{"vision":"run a marathon"}`, now, now)
	mock.ExpectQuery("SELECT (.+) FROM user_profiles WHERE email = \\$1").
		WithArgs("ada@example.com").
		WillReturnRows(rows)

	p, err := s.GetProfileByEmail(context.Background(), "Ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Empty(t, p.FullName)
	assert.Equal(t, "run a marathon", p.Answers["vision"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LookupAccountMissing(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectQuery("SELECT (.+) FROM user_profiles WHERE email = \\$1").
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	id, found, err := s.LookupAccount(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MigrationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()

	_, err = NewPostgresStore(WithDB(db))
	assert.ErrorContains(t, err, "failed to run migrations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore(t *testing.T) {
	// This test requires a running PostgreSQL instance.
	// Set the DATABASE_URL environment variable for connection string.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pgStore, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	// Clean up table before test
	pgStore.db.Exec("DELETE FROM user_profiles WHERE user_id = 'user-1' OR user_id = 'user-2'")
	exerciseProfileStore(t, pgStore)
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
