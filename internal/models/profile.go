package models

import "time"

// ProfileRecord is the persisted user profile built from a verified identity and
// the flattened onboarding answers.
type ProfileRecord struct {
	UserID              string         `json:"user_id"`
	Email               string         `json:"email"`
	FullName            string         `json:"full_name,omitempty"`
	OnboardingCompleted bool           `json:"onboarding_completed"`
	Answers             map[string]any `json:"answers,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Validate checks the record before it is stored.
func (p *ProfileRecord) Validate() error {
	if p.UserID == "" {
		return ErrEmptyUserID
	}
	if p.Email == "" {
		return ErrEmptyEmail
	}
	return ValidateFullName(p.FullName)
}
