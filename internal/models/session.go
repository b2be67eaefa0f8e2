package models

import "time"

// Identity is the verified user returned by an identity provider.
type Identity struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Created   bool      `json:"created"` // true when the provider created the account during this flow
	CreatedAt time.Time `json:"created_at"`
}

// Session is the credential pair issued after a successful verification.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

// AuthResult is what the authentication flow reports on completion.
type AuthResult struct {
	Mode     AuthMode `json:"mode"`
	Session  Session  `json:"session"`
	FullName string   `json:"full_name,omitempty"`
}
