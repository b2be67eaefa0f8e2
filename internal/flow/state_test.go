package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/StepFlow/internal/models"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	o := MustStepOrder(
		models.InfoStep("welcome", "Hi"),
		models.SingleSelectStep("gender", true, genderOptions...),
		models.MultiSelectStep("goals", true, genderOptions...),
		models.FreeTextStep("name", false),
	)
	return NewState(o, models.FreeTextStep("extra", false))
}

func TestState_EveryInputFieldPresent(t *testing.T) {
	s := newTestState(t)
	vals := s.Values()
	assert.Len(t, vals, 4)
	for _, key := range []string{"gender", "goals", "name", "extra"} {
		v, ok := vals[key]
		assert.True(t, ok, key)
		assert.True(t, v.IsEmpty(), key)
	}
	_, ok := vals["welcome"]
	assert.False(t, ok)
}

func TestState_SingleSelectReplaces(t *testing.T) {
	s := newTestState(t)
	require.NoError(t, s.Select("gender", "female"))
	require.NoError(t, s.Select("gender", "male"))
	v, _ := s.Value("gender")
	assert.Equal(t, []string{"male"}, v.Selected)
}

func TestState_MultiSelectNoDuplicates(t *testing.T) {
	s := newTestState(t)
	require.NoError(t, s.Select("goals", "female"))
	require.NoError(t, s.Select("goals", "female"))
	require.NoError(t, s.Toggle("goals", "male"))
	v, _ := s.Value("goals")
	assert.Equal(t, []string{"female", "male"}, v.Selected)

	require.NoError(t, s.Toggle("goals", "female"))
	v, _ = s.Value("goals")
	assert.Equal(t, []string{"male"}, v.Selected)
}

func TestState_Errors(t *testing.T) {
	s := newTestState(t)
	assert.ErrorIs(t, s.SetText("nope", "x"), ErrUnknownField)
	assert.ErrorIs(t, s.SetText("welcome", "x"), ErrUnknownField)
	assert.ErrorIs(t, s.SetText("gender", "x"), ErrKindMismatch)
	assert.ErrorIs(t, s.Select("name", "female"), ErrKindMismatch)
	assert.ErrorIs(t, s.Select("gender", "robot"), ErrUnknownOption)
	assert.ErrorIs(t, s.Select("gender", "other"), ErrOptionDisabled)
}

func TestState_ValuesAreCopies(t *testing.T) {
	s := newTestState(t)
	require.NoError(t, s.Select("goals", "female"))
	vals := s.Values()
	g := vals["goals"]
	g.Selected[0] = "tampered"
	v, _ := s.Value("goals")
	assert.Equal(t, []string{"female"}, v.Selected)
}

func TestState_ResetAndClear(t *testing.T) {
	s := newTestState(t)
	require.NoError(t, s.SetText("name", "Ann"))
	require.NoError(t, s.Select("gender", "female"))
	require.NoError(t, s.Clear("name"))
	assert.Equal(t, "", s.Text("name"))
	s.Reset()
	v, _ := s.Value("gender")
	assert.True(t, v.IsEmpty())
}

func TestStepOrder(t *testing.T) {
	_, err := NewStepOrder()
	assert.ErrorIs(t, err, ErrEmptyStepOrder)

	_, err = NewStepOrder(models.FreeTextStep("a", true), models.FreeTextStep("a", true))
	assert.ErrorIs(t, err, ErrDuplicateStep)

	_, err = NewStepOrder(models.FreeTextStep("a", true), models.FreeTextStep("b", true).WithField("a"))
	assert.ErrorIs(t, err, ErrDuplicateField)

	_, err = NewStepOrder(models.SingleSelectStep("a", true))
	assert.ErrorIs(t, err, models.ErrMissingOptions)

	o := MustStepOrder(models.InfoStep("w", "W"), models.FreeTextStep("a", true))
	assert.Equal(t, []string{"w", "a"}, o.IDs())
	i, ok := o.IndexOf("a")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
}

func TestRegistryDefaults(t *testing.T) {
	def, ok := Get(models.FlowKindOnboarding)
	require.True(t, ok)
	assert.Equal(t, OnboardingFadeOut, def.FadeOut)
	assert.Equal(t, 7, def.Order.Len())

	auth, ok := Get(models.FlowKindAuth)
	require.True(t, ok)
	assert.Equal(t, []string{models.StepWelcome, models.StepEmail, models.StepVerification}, auth.Order.IDs())

	assert.Error(t, Register(Definition{Kind: "bogus", Order: auth.Order}))
}

func TestFlatten(t *testing.T) {
	o := MustStepOrder(
		models.InfoStep("welcome", "Hi"),
		models.SingleSelectStep("gender", true, genderOptions...),
		models.MultiSelectStep("goals", true, genderOptions...),
		models.FreeTextStep("name", false),
		models.SingleSelectStep("unanswered", false, genderOptions...),
	)
	s := NewState(o)
	require.NoError(t, s.Select("gender", "female"))
	require.NoError(t, s.Select("goals", "male"))
	require.NoError(t, s.SetText("name", "  Ann  "))

	out := Flatten(o, s.Values())
	assert.Equal(t, "female", out["gender"])
	assert.Equal(t, []string{"male"}, out["goals"])
	assert.Equal(t, "Ann", out["name"])
	assert.Nil(t, out["unanswered"])
	_, hasWelcome := out["welcome"]
	assert.False(t, hasWelcome)
}

func TestBuildProfile(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	user := models.Identity{UserID: "u1", Email: " Ann@Example.com"}

	p := BuildProfile(user, "", map[string]any{models.FieldOnboardingFullName: "Ann Lee", "gender": "female"}, now)
	assert.Equal(t, "ann@example.com", p.Email)
	assert.Equal(t, "Ann Lee", p.FullName)
	assert.True(t, p.OnboardingCompleted)
	assert.Equal(t, now, p.CreatedAt)

	p = BuildProfile(user, "Annie", map[string]any{models.FieldOnboardingFullName: "Ann Lee"}, now)
	assert.Equal(t, "Annie", p.FullName, "the sign-up name wins")

	p = BuildProfile(user, "", map[string]any{models.FieldOnboardingFullName: "4nn"}, now)
	assert.Empty(t, p.FullName, "invalid onboarding names are dropped")

	p = BuildProfile(user, "", nil, now)
	assert.False(t, p.OnboardingCompleted)
	assert.Nil(t, p.Answers)
}

func TestNeedsProfile(t *testing.T) {
	assert.False(t, NeedsProfile(nil))
	assert.True(t, NeedsProfile(&models.AuthResult{Mode: models.AuthModeSignup}))
	assert.False(t, NeedsProfile(&models.AuthResult{Mode: models.AuthModeLogin}))
	created := &models.AuthResult{Mode: models.AuthModeLogin}
	created.Session.User.Created = true
	assert.True(t, NeedsProfile(created))
}
