package flow

import (
	"context"

	"github.com/BTreeMap/StepFlow/internal/models"
)

const msgOnboardingIncomplete = "Please complete all onboarding steps before continuing"

// OnboardingResult is reported when the questionnaire completes.
type OnboardingResult struct {
	Answers map[string]any               `json:"answers"`
	Values  map[string]models.FieldValue `json:"values"`
}

// onboardingBehavior re-checks every required step before packaging the answers.
type onboardingBehavior struct {
	basicBehavior
	order StepOrder
}

func (b onboardingBehavior) BeforeAdvance(_ context.Context, _ models.Step, last bool, values map[string]models.FieldValue) (any, error) {
	if !last {
		return nil, nil
	}
	for _, step := range b.order.steps {
		if !CanAdvance(step, values) {
			return nil, models.FlowError(models.KindValidation, msgOnboardingIncomplete)
		}
	}
	return &OnboardingResult{
		Answers: Flatten(b.order, values),
		Values:  values,
	}, nil
}

// NewOnboarding creates a controller for an onboarding definition.
// The completion result is an *OnboardingResult.
func NewOnboarding(def Definition, opts ...ControllerOption) (*Controller, error) {
	opts = append([]ControllerOption{WithBehavior(onboardingBehavior{order: def.Order})}, opts...)
	return NewController(def, opts...)
}
