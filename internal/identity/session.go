package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// DefaultSessionTTL is the lifetime of an issued access token.
const DefaultSessionTTL = time.Hour

const defaultIssuer = "stepflow"

// ErrEmptySigningKey is returned when a SessionIssuer is built without a key.
var ErrEmptySigningKey = errors.New("session signing key must be provided")

// Claims are the JWT claims of an access token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SessionIssuer mints HS256 access tokens and opaque refresh tokens for verified identities.
type SessionIssuer struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// IssuerOption configures a SessionIssuer.
type IssuerOption func(*SessionIssuer)

// WithSessionTTL sets the access token lifetime.
func WithSessionTTL(ttl time.Duration) IssuerOption {
	return func(s *SessionIssuer) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithIssuer sets the iss claim.
func WithIssuer(iss string) IssuerOption {
	return func(s *SessionIssuer) { s.issuer = iss }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) IssuerOption {
	return func(s *SessionIssuer) { s.now = now }
}

// NewSessionIssuer creates an issuer signing with key.
func NewSessionIssuer(key []byte, opts ...IssuerOption) (*SessionIssuer, error) {
	if len(key) == 0 {
		return nil, ErrEmptySigningKey
	}
	s := &SessionIssuer{
		key:    append([]byte(nil), key...),
		ttl:    DefaultSessionTTL,
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates a session for user.
func (s *SessionIssuer) Issue(user models.Identity) (models.Session, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		slog.Error("SessionIssuer.Issue: signing failed", "userID", user.UserID, "error", err)
		return models.Session{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	slog.Debug("SessionIssuer.Issue: session issued", "userID", user.UserID, "expiresAt", expiresAt)
	return models.Session{
		AccessToken:  signed,
		RefreshToken: uuid.NewString(),
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}

// Parse validates an access token and returns its claims.
func (s *SessionIssuer) Parse(token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	}); err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	return claims, nil
}
