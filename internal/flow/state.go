package flow

import (
	"errors"
	"fmt"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// State mutation errors.
var (
	ErrUnknownField   = errors.New("unknown field")
	ErrKindMismatch   = errors.New("operation does not match field input kind")
	ErrUnknownOption  = errors.New("unknown option")
	ErrOptionDisabled = errors.New("option is disabled")
)

// State is the accumulated record a flow builds up step by step.
//
// Every input field has an entry from construction on, so "required but unanswered" is always
// checkable. State is not safe for concurrent use; its owning Controller serializes access.
type State struct {
	fields map[string]models.Step
	values map[string]models.FieldValue
}

// NewState creates an empty state for the input steps of order plus any extra fields.
func NewState(order StepOrder, extra ...models.Step) *State {
	s := &State{
		fields: make(map[string]models.Step, order.Len()+len(extra)),
		values: make(map[string]models.FieldValue, order.Len()+len(extra)),
	}
	for _, step := range append(order.Steps(), extra...) {
		if !step.HasInput() {
			continue
		}
		s.fields[step.FieldKey()] = step
	}
	s.Reset()
	return s
}

// Reset returns every field to its empty value.
func (s *State) Reset() {
	for key, step := range s.fields {
		s.values[key] = models.FieldValue{Kind: step.Kind}
	}
}

// Value returns the current value of a field.
func (s *State) Value(field string) (models.FieldValue, bool) {
	v, ok := s.values[field]
	return v.Clone(), ok
}

// Text returns the raw text of a text field, or "" for anything else.
func (s *State) Text(field string) string {
	return s.values[field].Text
}

// Values returns a deep copy of all field values.
func (s *State) Values() map[string]models.FieldValue {
	out := make(map[string]models.FieldValue, len(s.values))
	for k, v := range s.values {
		out[k] = v.Clone()
	}
	return out
}

// SetText replaces the text of a free-text or long-text field.
func (s *State) SetText(field, text string) error {
	step, err := s.field(field)
	if err != nil {
		return err
	}
	if step.Kind != models.InputFreeText && step.Kind != models.InputLongText {
		return fmt.Errorf("%w: %s is %s", ErrKindMismatch, field, step.Kind)
	}
	s.values[field] = models.FieldValue{Kind: step.Kind, Text: text}
	return nil
}

// Select adds an option to a select field. Single-select fields hold at most one id, so
// selecting replaces any previous choice; multi-select fields ignore duplicates.
func (s *State) Select(field, optionID string) error {
	step, err := s.selectable(field, optionID)
	if err != nil {
		return err
	}
	v := s.values[field]
	switch {
	case step.Kind == models.InputSingleSelect:
		v.Selected = []string{optionID}
	case !v.Has(optionID):
		v.Selected = append(append([]string(nil), v.Selected...), optionID)
	}
	s.values[field] = v
	return nil
}

// Deselect removes an option from a select field.
func (s *State) Deselect(field, optionID string) error {
	step, err := s.field(field)
	if err != nil {
		return err
	}
	if !step.Kind.IsSelect() {
		return fmt.Errorf("%w: %s is %s", ErrKindMismatch, field, step.Kind)
	}
	v := s.values[field]
	kept := make([]string, 0, len(v.Selected))
	for _, id := range v.Selected {
		if id != optionID {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	v.Selected = kept
	s.values[field] = v
	return nil
}

// Toggle selects an unselected option or deselects a selected one.
func (s *State) Toggle(field, optionID string) error {
	if v, ok := s.values[field]; ok && v.Has(optionID) {
		return s.Deselect(field, optionID)
	}
	return s.Select(field, optionID)
}

// Clear empties a field.
func (s *State) Clear(field string) error {
	step, err := s.field(field)
	if err != nil {
		return err
	}
	s.values[field] = models.FieldValue{Kind: step.Kind}
	return nil
}

// Auth returns the typed view of the authentication fields.
func (s *State) Auth() models.AuthFlowState {
	return models.AuthFlowState{
		Email:            s.Text(models.FieldEmail),
		VerificationCode: s.Text(models.FieldVerificationCode),
		FullName:         s.Text(models.FieldFullName),
	}
}

func (s *State) field(field string) (models.Step, error) {
	step, ok := s.fields[field]
	if !ok {
		return models.Step{}, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return step, nil
}

func (s *State) selectable(field, optionID string) (models.Step, error) {
	step, err := s.field(field)
	if err != nil {
		return step, err
	}
	if !step.Kind.IsSelect() {
		return step, fmt.Errorf("%w: %s is %s", ErrKindMismatch, field, step.Kind)
	}
	opt, ok := step.Option(optionID)
	if !ok {
		return step, fmt.Errorf("%w: %s/%s", ErrUnknownOption, field, optionID)
	}
	if opt.Disabled {
		return step, fmt.Errorf("%w: %s/%s", ErrOptionDisabled, field, optionID)
	}
	return step, nil
}
