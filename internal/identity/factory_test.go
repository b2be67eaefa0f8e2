package identity

import (
	"bytes"
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Local(t *testing.T) {
	mr := miniredis.RunT(t)
	var out bytes.Buffer
	dir := &fakeDirectory{accounts: map[string]string{}}

	p, closeFn, err := NewProvider(context.Background(), Config{
		Kind:       ProviderLocal,
		RedisAddr:  mr.Addr(),
		SigningKey: "secret",
		SessionTTL: 2 * time.Hour,
		CodeLength: 8,
		CodeOutput: &out,
	}, dir)
	require.NoError(t, err)
	defer closeFn()

	require.IsType(t, &LocalProvider{}, p)
	ctx := context.Background()
	require.NoError(t, p.SendOneTimeCode(ctx, "ada@example.com", SendOptions{CreateUserIfAbsent: true}))

	code := regexp.MustCompile(`\b\d{8}\b`).FindString(out.String())
	require.NotEmpty(t, code, "code should be written to the configured output")

	res, err := p.VerifyOneTimeCode(ctx, "ada@example.com", code)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Session.AccessToken)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), res.Session.ExpiresAt, time.Minute)
}

func TestNewProvider_LocalRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, _, err := NewProvider(context.Background(), Config{Kind: ProviderLocal, RedisAddr: addr}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestNewProvider_Twilio(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_VERIFY_SERVICE_SID", "VA123")

	p, closeFn, err := NewProvider(context.Background(), Config{Kind: ProviderTwilio}, nil)
	require.NoError(t, err)
	assert.NoError(t, closeFn())
	assert.IsType(t, &TwilioProvider{}, p)
}

func TestNewProvider_UnknownKind(t *testing.T) {
	_, closeFn, err := NewProvider(context.Background(), Config{Kind: "carrier-pigeon"}, nil)
	require.Error(t, err)
	assert.NoError(t, closeFn())
}
