// Package models defines flow type definitions to avoid circular imports.
package models

// FlowKind identifies which wizard a flow runs.
type FlowKind string

// AuthMode selects the completion behavior of the authentication flow.
type AuthMode string

// TransitionPhase is the visual phase of a step transition.
type TransitionPhase string

// Flow kind constants.
const (
	FlowKindOnboarding FlowKind = "onboarding"
	FlowKindAuth       FlowKind = "auth"
)

// Auth mode constants.
const (
	AuthModeSignup AuthMode = "signup"
	AuthModeLogin  AuthMode = "login"
)

// Transition phase constants.
const (
	PhaseIdle     TransitionPhase = "idle"
	PhaseExiting  TransitionPhase = "exiting"
	PhaseEntering TransitionPhase = "entering"
)

// Auth step identifiers, in flow order.
const (
	StepWelcome      = "welcome"
	StepEmail        = "email"
	StepVerification = "verification"
)

// Auth field keys.
const (
	FieldEmail            = "email"
	FieldVerificationCode = "verificationCode"
	FieldFullName         = "fullName"
)

// Onboarding field keys of the default questionnaire.
const (
	FieldOnboardingFullName = "full_name"
	FieldGender             = "gender"
	FieldVision             = "vision"
	FieldCountPerDay        = "count_per_day"
	FieldFitnessLevel       = "fitness_level"
	FieldGoals              = "goals"
	FieldWorkoutFrequency   = "workout_frequency"
)

// IsValidFlowKind checks if the given flow kind is supported.
func IsValidFlowKind(k FlowKind) bool {
	return k == FlowKindOnboarding || k == FlowKindAuth
}

// IsValidAuthMode checks if the given auth mode is supported.
func IsValidAuthMode(m AuthMode) bool {
	return m == AuthModeSignup || m == AuthModeLogin
}
