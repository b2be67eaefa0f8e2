package flow

import (
	"strings"
	"time"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// Flatten converts accumulated values into the record handed to profile persistence.
// Single-select fields are unwrapped to their id (nil when unanswered), multi-select fields
// stay id lists, and text is trimmed.
func Flatten(order StepOrder, values map[string]models.FieldValue) map[string]any {
	out := make(map[string]any, order.Len())
	for _, step := range order.steps {
		if !step.HasInput() {
			continue
		}
		v := values[step.FieldKey()]
		switch step.Kind {
		case models.InputSingleSelect:
			if len(v.Selected) > 0 {
				out[step.FieldKey()] = v.Selected[0]
			} else {
				out[step.FieldKey()] = nil
			}
		case models.InputMultiSelect:
			out[step.FieldKey()] = append([]string{}, v.Selected...)
		default:
			out[step.FieldKey()] = strings.TrimSpace(v.Text)
		}
	}
	return out
}

// BuildProfile combines a verified identity with onboarding answers. An empty fullName falls
// back to the questionnaire's full name answer.
func BuildProfile(user models.Identity, fullName string, answers map[string]any, now time.Time) models.ProfileRecord {
	if fullName == "" {
		if name, ok := answers[models.FieldOnboardingFullName].(string); ok && models.ValidateFullName(name) == nil {
			fullName = name
		}
	}
	return models.ProfileRecord{
		UserID:              user.UserID,
		Email:               models.NormalizeEmail(user.Email),
		FullName:            fullName,
		OnboardingCompleted: answers != nil,
		Answers:             answers,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// NeedsProfile reports whether a completed authentication should write a profile. Sign-ups
// always do; logins only when the provider created the account on the way.
func NeedsProfile(res *models.AuthResult) bool {
	if res == nil {
		return false
	}
	return res.Mode == models.AuthModeSignup || res.Session.User.Created
}
