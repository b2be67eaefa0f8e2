package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Local provider defaults.
const (
	DefaultCodeTTL     = 10 * time.Minute
	DefaultMaxAttempts = 5
	defaultCodeLength  = 6
	localKeyPrefix     = "stepflow:otp"
)

const (
	fieldDigest   = "digest"
	fieldAttempts = "attempts"
)

var errCodeNotFound = errors.New("verification code not found")

// LocalOpts holds configuration options for the Redis-backed provider.
type LocalOpts struct {
	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
	Sender      CodeSender
	Directory   Directory
	Issuer      *SessionIssuer
}

// LocalOption defines a configuration option for the Redis-backed provider.
type LocalOption func(*LocalOpts)

// WithLocalCodeLength sets the number of digits in generated codes.
func WithLocalCodeLength(n int) LocalOption {
	return func(o *LocalOpts) { o.CodeLength = n }
}

// WithCodeTTL sets how long a code stays valid.
func WithCodeTTL(ttl time.Duration) LocalOption {
	return func(o *LocalOpts) { o.TTL = ttl }
}

// WithMaxAttempts sets how many wrong guesses burn a code.
func WithMaxAttempts(n int) LocalOption {
	return func(o *LocalOpts) { o.MaxAttempts = n }
}

// WithCodeSender sets the code delivery channel.
func WithCodeSender(s CodeSender) LocalOption {
	return func(o *LocalOpts) { o.Sender = s }
}

// WithLocalDirectory sets the account directory consulted for CreateUserIfAbsent.
func WithLocalDirectory(d Directory) LocalOption {
	return func(o *LocalOpts) { o.Directory = d }
}

// WithLocalSessionIssuer sets the issuer for verified sessions.
func WithLocalSessionIssuer(s *SessionIssuer) LocalOption {
	return func(o *LocalOpts) { o.Issuer = s }
}

// LocalProvider generates codes itself and keeps only their SHA-256 digest in Redis, with a
// TTL and an attempt cap.
type LocalProvider struct {
	redis    *redis.Client
	cfg      LocalOpts
	accounts accounts
}

// NewLocalProvider creates a provider storing codes in rdb.
func NewLocalProvider(rdb *redis.Client, opts ...LocalOption) (*LocalProvider, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client must be provided")
	}
	cfg := LocalOpts{
		CodeLength:  defaultCodeLength,
		TTL:         DefaultCodeTTL,
		MaxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("code sender must be provided")
	}
	if cfg.CodeLength <= 0 || cfg.TTL <= 0 || cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("code length, ttl and max attempts must be positive")
	}
	return &LocalProvider{
		redis:    rdb,
		cfg:      cfg,
		accounts: accounts{directory: cfg.Directory, issuer: cfg.Issuer},
	}, nil
}

// SendOneTimeCode implements Provider. A new code replaces any previous one for the email.
func (p *LocalProvider) SendOneTimeCode(ctx context.Context, email string, opts SendOptions) error {
	if err := p.accounts.checkSend(ctx, email, opts); err != nil {
		return err
	}
	code, err := generateCode(p.cfg.CodeLength)
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	key := p.key(email)
	_, err = p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldDigest, digest(code), fieldAttempts, 0)
		pipe.Expire(ctx, key, p.cfg.TTL)
		return nil
	})
	if err != nil {
		slog.Error("LocalProvider.SendOneTimeCode: failed to store code", "email", email, "error", err)
		return &ProviderError{Kind: KindUnavailable, StatusCode: http.StatusServiceUnavailable, Message: "Code store unavailable", Err: err}
	}

	if err := p.cfg.Sender.SendCode(ctx, email, code); err != nil {
		slog.Error("LocalProvider.SendOneTimeCode: delivery failed", "email", email, "error", err)
		_ = p.redis.Del(ctx, key).Err()
		return &ProviderError{Kind: KindUnavailable, StatusCode: http.StatusBadGateway, Message: "Error sending confirmation email", Err: err}
	}
	slog.Debug("LocalProvider.SendOneTimeCode: code sent", "email", email, "ttl", p.cfg.TTL)
	return nil
}

// VerifyOneTimeCode implements Provider. A matching code is consumed; a wrong one counts an
// attempt and the code is deleted once MaxAttempts is reached.
func (p *LocalProvider) VerifyOneTimeCode(ctx context.Context, email, code string) (*VerifyResult, error) {
	err := p.consume(ctx, p.key(email), digest(code))
	switch {
	case err == nil:
	case errors.Is(err, errCodeNotFound):
		return nil, NewProviderError(KindCodeExpired, http.StatusUnauthorized, "Token has expired or is invalid")
	case errors.Is(err, ErrCodeMismatch):
		return nil, &ProviderError{Kind: KindInvalidCode, StatusCode: http.StatusUnauthorized, Message: "Invalid verification code", Err: err}
	default:
		slog.Error("LocalProvider.VerifyOneTimeCode: code store failed", "email", email, "error", err)
		return nil, &ProviderError{Kind: KindUnavailable, StatusCode: http.StatusServiceUnavailable, Message: "Code store unavailable", Err: err}
	}
	slog.Debug("LocalProvider.VerifyOneTimeCode: code accepted", "email", email)
	return p.accounts.establish(ctx, email)
}

func (p *LocalProvider) consume(ctx context.Context, key, provided string) error {
	const maxRetries = 4
	for i := 0; i < maxRetries; i++ {
		err := p.redis.Watch(ctx, func(tx *redis.Tx) error {
			rec, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			stored, ok := rec[fieldDigest]
			if !ok {
				return errCodeNotFound
			}
			if subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) == 1 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			attempts, _ := strconv.Atoi(rec[fieldAttempts])
			attempts++
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if attempts >= p.cfg.MaxAttempts {
					pipe.Del(ctx, key)
				} else {
					pipe.HSet(ctx, key, fieldAttempts, attempts)
				}
				return nil
			})
			if err != nil {
				return err
			}
			return ErrCodeMismatch
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errCodeNotFound
}

func (p *LocalProvider) key(email string) string {
	return localKeyPrefix + ":" + email
}

func digest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// generateCode returns n uniformly random decimal digits.
func generateCode(n int) (string, error) {
	buf := make([]byte, n)
	ten := big.NewInt(10)
	for i := range buf {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + d.Int64())
	}
	return string(buf), nil
}
