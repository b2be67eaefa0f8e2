package identity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Provider kinds accepted by NewProvider.
const (
	ProviderTwilio = "twilio"
	ProviderLocal  = "local"
)

// Config selects and configures an identity provider.
type Config struct {
	Kind          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SigningKey    string
	SessionTTL    time.Duration
	CodeLength    int
	CodeOutput    io.Writer // where the local provider delivers codes, stderr when nil
}

// NewProvider builds the provider named by cfg.Kind. Account existence is answered by dir.
// The returned close function releases provider resources.
func NewProvider(ctx context.Context, cfg Config, dir Directory) (Provider, func() error, error) {
	noop := func() error { return nil }

	var issuer *SessionIssuer
	if cfg.SigningKey != "" {
		var opts []IssuerOption
		if cfg.SessionTTL > 0 {
			opts = append(opts, WithSessionTTL(cfg.SessionTTL))
		}
		var err error
		if issuer, err = NewSessionIssuer([]byte(cfg.SigningKey), opts...); err != nil {
			return nil, noop, err
		}
	} else {
		slog.Warn("identity.NewProvider: no signing key set, sessions will carry no tokens")
	}

	switch cfg.Kind {
	case ProviderTwilio:
		p, err := NewTwilioProvider(WithDirectory(dir), WithSessionIssuer(issuer))
		if err != nil {
			return nil, noop, err
		}
		slog.Debug("identity.NewProvider: using Twilio Verify")
		return p, noop, nil

	case ProviderLocal:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, noop, fmt.Errorf("redis at %s not reachable: %w", cfg.RedisAddr, err)
		}
		out := cfg.CodeOutput
		if out == nil {
			out = os.Stderr
		}
		opts := []LocalOption{
			WithCodeSender(NewWriterSender(out)),
			WithLocalDirectory(dir),
			WithLocalSessionIssuer(issuer),
		}
		if cfg.CodeLength > 0 {
			opts = append(opts, WithLocalCodeLength(cfg.CodeLength))
		}
		p, err := NewLocalProvider(rdb, opts...)
		if err != nil {
			rdb.Close()
			return nil, noop, err
		}
		slog.Debug("identity.NewProvider: using local provider", "redisAddr", cfg.RedisAddr)
		return p, rdb.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown identity provider %q", cfg.Kind)
}
