package flow

import (
	"time"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// Transition timings observed on the mobile client.
const (
	OnboardingFadeOut = 150 * time.Millisecond
	OnboardingFadeIn  = 200 * time.Millisecond
	AuthFadeOut       = 200 * time.Millisecond
	AuthFadeIn        = 200 * time.Millisecond
)

// DefaultOnboardingDefinition returns the onboarding questionnaire.
func DefaultOnboardingDefinition() Definition {
	return Definition{
		Kind: models.FlowKindOnboarding,
		Order: MustStepOrder(
			models.FreeTextStep(models.FieldOnboardingFullName, true).
				WithCopy("What's your name?", "We'll use it to personalize your plan", "Full name"),
			models.SingleSelectStep(models.FieldGender, true,
				models.Option{ID: "female", Label: "Female"},
				models.Option{ID: "male", Label: "Male"},
				models.Option{ID: "non_binary", Label: "Non-binary"},
				models.Option{ID: "prefer_not_to_say", Label: "Prefer not to say"},
			).WithCopy("What's your gender?", "Help us tailor your recommendations", ""),
			models.LongTextStep(models.FieldVision, true).
				WithCopy("What's your vision?", "Describe who you want to become", "Describe your vision..."),
			models.SingleSelectStep(models.FieldCountPerDay, true,
				models.Option{ID: "5", Label: "5 per day"},
				models.Option{ID: "10", Label: "10 per day"},
				models.Option{ID: "15", Label: "15 per day"},
				models.Option{ID: "20", Label: "20 per day"},
			).WithCopy("How many reminders per day?", "You can change this later", ""),
			models.SingleSelectStep(models.FieldFitnessLevel, true,
				models.Option{ID: "beginner", Label: "Beginner", Description: "New to fitness or getting back into it"},
				models.Option{ID: "intermediate", Label: "Intermediate", Description: "Regular exercise routine, familiar with basics"},
				models.Option{ID: "advanced", Label: "Advanced", Description: "Experienced with complex movements and training"},
			).WithCopy("What's your fitness level?", "Help us personalize your workout experience", ""),
			models.MultiSelectStep(models.FieldGoals, true,
				models.Option{ID: "weight_loss", Label: "Weight Loss", Description: "Burn calories and lose weight"},
				models.Option{ID: "muscle_gain", Label: "Muscle Gain", Description: "Build strength and muscle mass"},
				models.Option{ID: "endurance", Label: "Endurance", Description: "Improve cardiovascular health"},
				models.Option{ID: "flexibility", Label: "Flexibility", Description: "Increase mobility and flexibility"},
				models.Option{ID: "general_fitness", Label: "General Fitness", Description: "Overall health and wellness"},
			).WithCopy("What are your fitness goals?", "Select all that apply to customize your experience", ""),
			models.SingleSelectStep(models.FieldWorkoutFrequency, true,
				models.Option{ID: "2-3_times", Label: "2-3 times per week", Description: "Perfect for beginners or busy schedules"},
				models.Option{ID: "4-5_times", Label: "4-5 times per week", Description: "Great for building consistent habits"},
				models.Option{ID: "6-7_times", Label: "6-7 times per week", Description: "For dedicated fitness enthusiasts"},
			).WithCopy("How often do you want to work out?", "We'll suggest a routine that fits your schedule", ""),
		),
		FadeOut: OnboardingFadeOut,
		FadeIn:  OnboardingFadeIn,
	}
}

// DefaultAuthDefinition returns the welcome, email and verification steps shared by
// sign-up and login.
func DefaultAuthDefinition() Definition {
	return Definition{
		Kind: models.FlowKindAuth,
		Order: MustStepOrder(
			models.InfoStep(models.StepWelcome, "Welcome"),
			models.FreeTextStep(models.StepEmail, true).WithField(models.FieldEmail).
				WithCopy("What's your email?", "We'll send you a verification code", "you@example.com"),
			models.FreeTextStep(models.StepVerification, true).WithField(models.FieldVerificationCode).
				WithCopy("Check your email", "Enter the code we sent you", "123456"),
		),
		Extra: []models.Step{
			models.FreeTextStep(models.FieldFullName, false),
		},
		FadeOut: AuthFadeOut,
		FadeIn:  AuthFadeIn,
	}
}
