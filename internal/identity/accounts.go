package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// accounts emulates account creation for providers that only verify codes: the directory
// answers whether an email is registered and the issuer mints the session.
type accounts struct {
	directory Directory
	issuer    *SessionIssuer
}

// checkSend enforces CreateUserIfAbsent semantics before a code is sent.
func (a accounts) checkSend(ctx context.Context, email string, opts SendOptions) error {
	if a.directory == nil {
		return nil
	}
	_, found, err := a.directory.LookupAccount(ctx, email)
	if err != nil {
		slog.Error("identity.checkSend: directory lookup failed", "email", email, "error", err)
		return &ProviderError{Kind: KindUnavailable, StatusCode: http.StatusServiceUnavailable, Message: "Account lookup failed", Err: err}
	}
	if opts.CreateUserIfAbsent && found {
		return NewProviderError(KindUserAlreadyExists, http.StatusUnprocessableEntity, "User already registered")
	}
	if !opts.CreateUserIfAbsent && !found {
		return NewProviderError(KindUserNotFound, http.StatusBadRequest, "User not found")
	}
	return nil
}

// establish resolves the identity for a verified email and issues its session.
func (a accounts) establish(ctx context.Context, email string) (*VerifyResult, error) {
	user := models.Identity{Email: email, CreatedAt: time.Now()}
	if a.directory != nil {
		id, found, err := a.directory.LookupAccount(ctx, email)
		if err != nil {
			return nil, &ProviderError{Kind: KindUnavailable, StatusCode: http.StatusServiceUnavailable, Message: "Account lookup failed", Err: err}
		}
		if found {
			user.UserID = id
		}
	}
	if user.UserID == "" {
		user.UserID = uuid.NewString()
		user.Created = true
	}
	if a.issuer == nil {
		return &VerifyResult{User: user, Session: models.Session{User: user}}, nil
	}
	session, err := a.issuer.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to establish session for %s: %w", email, err)
	}
	return &VerifyResult{User: user, Session: session}, nil
}
