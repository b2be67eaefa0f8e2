package flow

import "github.com/BTreeMap/StepFlow/internal/models"

// CanAdvance reports whether the step's required input is satisfied by values.
// Optional steps always pass. A missing entry counts as unanswered.
func CanAdvance(step models.Step, values map[string]models.FieldValue) bool {
	if !step.Required {
		return true
	}
	v, ok := values[step.FieldKey()]
	if !ok {
		return false
	}
	return !v.IsEmpty()
}

// RequiredMessage is the field error shown when CanAdvance rejects a step.
func RequiredMessage(step models.Step) string {
	switch step.Kind {
	case models.InputSingleSelect:
		return "Please select an option"
	case models.InputMultiSelect:
		return "Please select at least one option"
	default:
		return "This field is required"
	}
}

// ComputeProgress counts answered input steps against the full order.
func ComputeProgress(order StepOrder, index int, values map[string]models.FieldValue) models.Progress {
	p := models.Progress{CurrentStep: index + 1, TotalSteps: order.Len()}
	for _, step := range order.steps {
		if !step.HasInput() {
			if order.index[step.ID] < index {
				p.CompletedSteps++
			}
			continue
		}
		if v, ok := values[step.FieldKey()]; ok && !v.IsEmpty() {
			p.CompletedSteps++
		}
	}
	if p.TotalSteps > 0 {
		p.Percentage = (p.CompletedSteps*100 + p.TotalSteps/2) / p.TotalSteps
	}
	return p
}
