package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// profileColumns is the column list shared by every profile SELECT.
const profileColumns = `user_id, email, full_name, onboarding_completed, answers, created_at, updated_at`

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// encodeAnswers marshals onboarding answers for storage; nil answers map to NULL.
func encodeAnswers(answers map[string]any) (interface{}, error) {
	if answers == nil {
		return nil, nil
	}
	b, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal answers: %w", err)
	}
	return string(b), nil
}

// scanProfileRow scans a ProfileRecord from a single sql.Row.
func scanProfileRow(row *sql.Row) (*models.ProfileRecord, error) {
	var p models.ProfileRecord
	var fullName, answers sql.NullString
	err := row.Scan(&p.UserID, &p.Email, &fullName, &p.OnboardingCompleted, &answers, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile failed: %w", err)
	}
	p.FullName = fullName.String
	if answers.Valid && answers.String != "" {
		if err := json.Unmarshal([]byte(answers.String), &p.Answers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal answers for %s: %w", p.UserID, err)
		}
	}
	return &p, nil
}
