package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/StepFlow/internal/models"
)

func twoStepDefinition() Definition {
	return Definition{
		Kind: models.FlowKindOnboarding,
		Order: MustStepOrder(
			models.SingleSelectStep("gender", true, genderOptions...),
			models.FreeTextStep("vision", true),
		),
	}
}

func TestController_GenderVisionScenario(t *testing.T) {
	ctx := context.Background()
	c, err := NewOnboarding(twoStepDefinition())
	require.NoError(t, err)

	require.NoError(t, c.Advance(ctx))
	snap := c.Snapshot()
	assert.Equal(t, 0, snap.StepIndex)
	require.NotNil(t, snap.Error)
	assert.Equal(t, models.ScopeField, snap.Error.Scope)
	assert.Equal(t, "gender", snap.Error.Field)

	require.NoError(t, c.Select("gender", "female"))
	assert.Nil(t, c.CurrentError(), "field error clears when the field changes")

	require.NoError(t, c.Advance(ctx))
	assert.Equal(t, "vision", c.CurrentStep().ID)
}

func TestController_AdvanceReachesCompletedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	def, ok := Get(models.FlowKindOnboarding)
	require.True(t, ok)
	def.FadeOut, def.FadeIn = 0, 0

	calls := 0
	var got *OnboardingResult
	c, err := NewOnboarding(def, WithOnComplete(func(r any) {
		calls++
		got = r.(*OnboardingResult)
	}))
	require.NoError(t, err)

	fill := func(step models.Step) {
		switch step.Kind {
		case models.InputSingleSelect, models.InputMultiSelect:
			require.NoError(t, c.Select(step.FieldKey(), step.Options[0].ID))
		default:
			require.NoError(t, c.SetText(step.FieldKey(), "Jane Doe"))
		}
	}

	for i := 0; i < def.Order.Len()-1; i++ {
		assert.Equal(t, def.Order.At(i).ID, c.CurrentStep().ID, "never skips a step")
		fill(c.CurrentStep())
		require.NoError(t, c.Advance(ctx))
	}
	assert.False(t, c.Completed())
	fill(c.CurrentStep())
	require.NoError(t, c.Advance(ctx))
	assert.True(t, c.Completed())
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, c.Advance(ctx), ErrFlowCompleted)
	assert.Equal(t, 1, calls)

	require.NotNil(t, got)
	assert.Equal(t, "female", got.Answers[models.FieldGender])
	assert.Equal(t, []string{"weight_loss"}, got.Answers[models.FieldGoals])
	assert.Equal(t, "Jane Doe", got.Answers[models.FieldVision])
}

func TestController_BackFromFirstStepExits(t *testing.T) {
	exits := 0
	c, err := NewOnboarding(twoStepDefinition(), WithOnExit(func() { exits++ }))
	require.NoError(t, err)

	require.NoError(t, c.Back())
	require.NoError(t, c.Back())
	assert.Equal(t, 2, exits)
	assert.Equal(t, 0, c.Snapshot().StepIndex)
}

func TestController_BackMovesToPreviousStep(t *testing.T) {
	ctx := context.Background()
	c, err := NewOnboarding(twoStepDefinition())
	require.NoError(t, err)
	require.NoError(t, c.Select("gender", "male"))
	require.NoError(t, c.Advance(ctx))
	require.NoError(t, c.Back())
	assert.Equal(t, "gender", c.CurrentStep().ID)
	v := c.Snapshot().Values["gender"]
	assert.Equal(t, []string{"male"}, v.Selected, "onboarding keeps answers on back")
}

func TestController_JumpTo(t *testing.T) {
	c, err := NewOnboarding(twoStepDefinition())
	require.NoError(t, err)

	before := c.Snapshot()
	require.NoError(t, c.JumpTo("gender"))
	after := c.Snapshot()
	assert.Equal(t, before.StepIndex, after.StepIndex)
	assert.Equal(t, before.Values, after.Values)

	require.NoError(t, c.JumpTo("vision"), "jump bypasses the validation gate")
	assert.Equal(t, "vision", c.CurrentStep().ID)
	assert.ErrorIs(t, c.JumpTo("missing"), ErrUnknownStep)
}

func TestController_FlowErrorClearsOnStepChange(t *testing.T) {
	ctx := context.Background()
	def := twoStepDefinition()
	c, err := NewOnboarding(def)
	require.NoError(t, err)

	require.NoError(t, c.JumpTo("vision"))
	require.NoError(t, c.SetText("vision", "x"))
	require.NoError(t, c.Advance(ctx))
	se := c.CurrentError()
	require.NotNil(t, se, "gender was skipped by the jump")
	assert.Equal(t, models.ScopeFlow, se.Scope)
	assert.False(t, c.Completed())

	require.NoError(t, c.SetText("vision", "y"))
	assert.NotNil(t, c.CurrentError(), "flow errors survive data changes")

	require.NoError(t, c.Back())
	assert.Nil(t, c.CurrentError())
}

func TestController_DismissError(t *testing.T) {
	c, err := NewOnboarding(twoStepDefinition())
	require.NoError(t, err)
	require.NoError(t, c.Advance(context.Background()))
	require.NotNil(t, c.CurrentError())
	c.DismissError()
	assert.Nil(t, c.CurrentError())
}

func TestController_RejectsAdvanceDuringTransition(t *testing.T) {
	ctx := context.Background()
	timer := newManualTimer()
	def := twoStepDefinition()
	def.FadeOut, def.FadeIn = 150*time.Millisecond, 200*time.Millisecond

	c, err := NewOnboarding(def, WithAnimator(NewTimedAnimator(WithTimer(timer))))
	require.NoError(t, err)
	require.NoError(t, c.Select("gender", "female"))
	require.NoError(t, c.Advance(ctx))

	assert.Equal(t, models.PhaseExiting, c.Snapshot().Phase)
	assert.Equal(t, "gender", c.CurrentStep().ID, "index changes only after the exit phase")
	assert.ErrorIs(t, c.Advance(ctx), ErrTransitionInFlight)
	assert.ErrorIs(t, c.Back(), ErrTransitionInFlight)

	timer.fireNext()
	assert.Equal(t, "vision", c.CurrentStep().ID)
	assert.Equal(t, models.PhaseEntering, c.Snapshot().Phase)
	timer.fireAll()
	assert.Equal(t, models.PhaseIdle, c.Snapshot().Phase)
}

func TestController_JumpDuringTransitionLastWriteWins(t *testing.T) {
	timer := newManualTimer()
	def := Definition{
		Kind: models.FlowKindOnboarding,
		Order: MustStepOrder(
			models.FreeTextStep("a", false),
			models.FreeTextStep("b", false),
			models.FreeTextStep("c", false),
		),
		FadeOut: time.Second,
		FadeIn:  time.Second,
	}
	c, err := NewController(def, WithAnimator(NewTimedAnimator(WithTimer(timer))))
	require.NoError(t, err)

	require.NoError(t, c.JumpTo("b"))
	require.NoError(t, c.JumpTo("c"))
	timer.fireAll()
	assert.Equal(t, "c", c.CurrentStep().ID)
	require.NoError(t, c.Advance(context.Background()))
	assert.True(t, c.Completed())
}

func TestController_CloseResetsAndRejects(t *testing.T) {
	ctx := context.Background()
	timer := newManualTimer()
	def := twoStepDefinition()
	def.FadeOut = time.Second

	c, err := NewOnboarding(def, WithAnimator(NewTimedAnimator(WithTimer(timer))))
	require.NoError(t, err)
	require.NoError(t, c.Select("gender", "female"))
	require.NoError(t, c.Advance(ctx))
	c.Close()
	timer.fireAll()

	snap := c.Snapshot()
	assert.True(t, snap.Closed)
	assert.Equal(t, 0, snap.StepIndex)
	assert.True(t, snap.Values["gender"].IsEmpty())
	assert.ErrorIs(t, c.Advance(ctx), ErrFlowClosed)
	assert.ErrorIs(t, c.SetText("vision", "x"), ErrFlowClosed)
	c.Close()
}

func TestController_SnapshotProgress(t *testing.T) {
	c, err := NewOnboarding(twoStepDefinition())
	require.NoError(t, err)
	require.NoError(t, c.Select("gender", "female"))
	snap := c.Snapshot()
	assert.True(t, snap.CanAdvance)
	assert.False(t, snap.CanGoBack)
	assert.Equal(t, models.Progress{CurrentStep: 1, TotalSteps: 2, CompletedSteps: 1, Percentage: 50}, snap.Progress)
}
