package models

import (
	"encoding/json"
	"strings"
)

// FieldValue is the accumulated value of one field in a flow.
//
// Select fields keep their ids in Selected (at most one for single-select, no duplicates for
// multi-select); text fields keep their raw input in Text. An unset field is a FieldValue with
// its Kind set and nothing else, never a missing map entry.
type FieldValue struct {
	Kind     InputKind `json:"kind"`
	Text     string    `json:"text,omitempty"`
	Selected []string  `json:"selected,omitempty"`
}

// IsEmpty reports whether the value carries no usable input.
// Text is considered after trimming whitespace.
func (v FieldValue) IsEmpty() bool {
	switch v.Kind {
	case InputSingleSelect, InputMultiSelect:
		return len(v.Selected) == 0
	case InputFreeText, InputLongText:
		return strings.TrimSpace(v.Text) == ""
	default:
		return true
	}
}

// Has reports whether the option id is selected.
func (v FieldValue) Has(id string) bool {
	for _, s := range v.Selected {
		if s == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the value.
func (v FieldValue) Clone() FieldValue {
	if v.Selected != nil {
		v.Selected = append([]string(nil), v.Selected...)
	}
	return v
}

// AuthFlowState is the typed view of the authentication flow's fields.
type AuthFlowState struct {
	Email            string `json:"email"`
	VerificationCode string `json:"-"`
	FullName         string `json:"full_name,omitempty"`
}

// CooldownState is the observable state of the resend cooldown.
// CanTrigger is derived from RemainingSeconds and never stored.
type CooldownState struct {
	RemainingSeconds int `json:"remaining_seconds"`
}

// CanTrigger reports whether the guarded action may run.
func (c CooldownState) CanTrigger() bool {
	return c.RemainingSeconds == 0
}

// MarshalJSON emits the derived can_trigger flag next to the remaining seconds.
func (c CooldownState) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RemainingSeconds int  `json:"remaining_seconds"`
		CanTrigger       bool `json:"can_trigger"`
	}{c.RemainingSeconds, c.CanTrigger()})
}

// Progress summarizes how far a flow has come.
type Progress struct {
	CurrentStep    int `json:"current_step"` // 1-based
	TotalSteps     int `json:"total_steps"`
	CompletedSteps int `json:"completed_steps"`
	Percentage     int `json:"percentage"`
}

// FlowSnapshot is the read-only view of a flow exposed to user interfaces.
type FlowSnapshot struct {
	ID         string                `json:"id,omitempty"`
	Kind       FlowKind              `json:"kind"`
	Mode       AuthMode              `json:"mode,omitempty"`
	Step       Step                  `json:"step"`
	StepIndex  int                   `json:"step_index"`
	StepIDs    []string              `json:"step_ids"`
	Values     map[string]FieldValue `json:"values"`
	Error      *StepError            `json:"error,omitempty"`
	CanAdvance bool                  `json:"can_advance"`
	CanGoBack  bool                  `json:"can_go_back"`
	Phase      TransitionPhase       `json:"phase"`
	Progress   Progress              `json:"progress"`
	Busy       bool                  `json:"busy"`
	Completed  bool                  `json:"completed"`
	Closed     bool                  `json:"closed"`
	Cooldown   *CooldownState        `json:"cooldown,omitempty"`
}

// IsLastStep reports whether the snapshot is positioned on the final step.
func (s FlowSnapshot) IsLastStep() bool {
	return s.StepIndex == len(s.StepIDs)-1
}
