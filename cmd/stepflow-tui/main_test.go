package main

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/StepFlow/internal/identity"
	"github.com/BTreeMap/StepFlow/internal/models"
	"github.com/BTreeMap/StepFlow/internal/store"
	"github.com/BTreeMap/StepFlow/internal/tui"
)

func TestParseFlagsDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("IDENTITY_PROVIDER", "")

	flags, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, string(models.AuthModeSignup), *flags.mode)
	assert.Equal(t, providerMock, *flags.provider)
	assert.Empty(t, *flags.dbDSN)
	assert.False(t, *flags.skipOnboarding)
}

func TestParseFlagsRejectsUnknownMode(t *testing.T) {
	_, err := parseFlags([]string{"-mode", "register"})
	assert.Error(t, err)
}

func TestBuildTUIOptions(t *testing.T) {
	t.Setenv("CODE_LENGTH", "4")
	t.Setenv("RESEND_COOLDOWN", "10s")

	flags, err := parseFlags([]string{"-mode", "login", "-skip-onboarding", "-instant"})
	require.NoError(t, err)

	provider := identity.NewMockProvider()
	st := store.NewInMemoryStore()
	var opts tui.Opts
	for _, opt := range buildTUIOptions(flags, provider, st) {
		opt(&opts)
	}
	assert.Same(t, provider, opts.Provider)
	assert.Equal(t, models.AuthModeLogin, opts.Mode)
	assert.Equal(t, 4, opts.CodeLength)
	assert.Equal(t, 10*time.Second, opts.ResendCooldown)
	assert.True(t, opts.SkipOnboarding)
	assert.True(t, opts.Instant)
}

func TestOpenProviderMock(t *testing.T) {
	flags, err := parseFlags(nil)
	require.NoError(t, err)

	p, closeFn, err := openProvider(flags, store.NewInMemoryStore())
	require.NoError(t, err)
	assert.NoError(t, closeFn())
	assert.IsType(t, &identity.MockProvider{}, p)
}

func TestOpenProviderLocalWritesCodesToFile(t *testing.T) {
	mr := miniredis.RunT(t)
	codes := filepath.Join(t.TempDir(), "codes.txt")

	flags, err := parseFlags([]string{"-identity-provider", "local", "-redis-addr", mr.Addr(), "-codes-file", codes})
	require.NoError(t, err)

	p, closeFn, err := openProvider(flags, store.NewInMemoryStore())
	require.NoError(t, err)
	defer closeFn()

	require.NoError(t, p.SendOneTimeCode(t.Context(), "ada@example.com", identity.SendOptions{CreateUserIfAbsent: true}))
	data, err := os.ReadFile(codes)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`ada@example.com: \d+`), string(data))
}

func TestOpenStore(t *testing.T) {
	st, err := openStore("")
	require.NoError(t, err)
	assert.IsType(t, &store.InMemoryStore{}, st)

	st, err = openStore(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	defer st.Close()
	assert.IsType(t, &store.SQLiteStore{}, st)
}
