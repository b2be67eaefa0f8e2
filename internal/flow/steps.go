package flow

import (
	"errors"
	"fmt"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// Step order construction errors.
var (
	ErrEmptyStepOrder = errors.New("step order must contain at least one step")
	ErrDuplicateStep  = errors.New("duplicate step id")
	ErrDuplicateField = errors.New("duplicate field key")
	ErrUnknownStep    = errors.New("unknown step")
)

// StepOrder is an immutable ordered sequence of validated steps.
// The first step has no back target; advancing from the last step completes the flow.
type StepOrder struct {
	steps      []models.Step
	index      map[string]int
	fieldIndex map[string]int
}

// NewStepOrder validates every step and builds the order.
func NewStepOrder(steps ...models.Step) (StepOrder, error) {
	if len(steps) == 0 {
		return StepOrder{}, ErrEmptyStepOrder
	}
	o := StepOrder{
		steps:      make([]models.Step, len(steps)),
		index:      make(map[string]int, len(steps)),
		fieldIndex: make(map[string]int, len(steps)),
	}
	for i, s := range steps {
		if err := s.Validate(); err != nil {
			return StepOrder{}, err
		}
		if _, dup := o.index[s.ID]; dup {
			return StepOrder{}, fmt.Errorf("%w: %s", ErrDuplicateStep, s.ID)
		}
		o.index[s.ID] = i
		if s.HasInput() {
			if _, dup := o.fieldIndex[s.FieldKey()]; dup {
				return StepOrder{}, fmt.Errorf("%w: %s", ErrDuplicateField, s.FieldKey())
			}
			o.fieldIndex[s.FieldKey()] = i
		}
		s.Options = append([]models.Option(nil), s.Options...)
		o.steps[i] = s
	}
	return o, nil
}

// MustStepOrder is NewStepOrder for static definitions; it panics on invalid input.
func MustStepOrder(steps ...models.Step) StepOrder {
	o, err := NewStepOrder(steps...)
	if err != nil {
		panic(err)
	}
	return o
}

// Len returns the number of steps.
func (o StepOrder) Len() int { return len(o.steps) }

// At returns the step at index i.
func (o StepOrder) At(i int) models.Step { return o.steps[i] }

// IndexOf returns the position of the step with the given id.
func (o StepOrder) IndexOf(id string) (int, bool) {
	i, ok := o.index[id]
	return i, ok
}

// Step looks up a step by id.
func (o StepOrder) Step(id string) (models.Step, bool) {
	i, ok := o.index[id]
	if !ok {
		return models.Step{}, false
	}
	return o.steps[i], true
}

// IDs returns the step ids in order.
func (o StepOrder) IDs() []string {
	ids := make([]string, len(o.steps))
	for i, s := range o.steps {
		ids[i] = s.ID
	}
	return ids
}

// Steps returns a copy of the steps in order.
func (o StepOrder) Steps() []models.Step {
	return append([]models.Step(nil), o.steps...)
}
