// Package models defines step metadata for stepped flows.
package models

import "fmt"

// InputKind identifies the input a step collects.
type InputKind string

const (
	// InputNone marks an informational step that collects nothing (e.g. a welcome screen).
	InputNone InputKind = "none"
	// InputSingleSelect collects at most one option id.
	InputSingleSelect InputKind = "single-select"
	// InputMultiSelect collects a set of option ids.
	InputMultiSelect InputKind = "multi-select"
	// InputFreeText collects a single line of text.
	InputFreeText InputKind = "free-text"
	// InputLongText collects multi-line text.
	InputLongText InputKind = "long-text"
)

// IsValidInputKind checks if the given input kind is supported.
func IsValidInputKind(k InputKind) bool {
	switch k {
	case InputNone, InputSingleSelect, InputMultiSelect, InputFreeText, InputLongText:
		return true
	default:
		return false
	}
}

// IsSelect reports whether the kind is backed by an option set.
func (k InputKind) IsSelect() bool {
	return k == InputSingleSelect || k == InputMultiSelect
}

// PresentationSize is a hint for how much of the screen a step's sheet should occupy.
type PresentationSize string

const (
	// SizeCompact asks for a short sheet (the 55% snap point).
	SizeCompact PresentationSize = "compact"
	// SizeFull asks for a tall sheet (the 90% snap point).
	SizeFull PresentationSize = "full"
)

// Option is one selectable choice on a select step.
type Option struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"`
}

// Step is the metadata of one screen in a flow.
//
// Steps are built with the kind-specific constructors below, which keep the option set and
// the required flag consistent with the input kind. Validate rejects anything else.
type Step struct {
	ID          string           `json:"id"`
	Field       string           `json:"field,omitempty"` // state key, defaults to ID
	Kind        InputKind        `json:"kind"`
	Required    bool             `json:"required"`
	Options     []Option         `json:"options,omitempty"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Placeholder string           `json:"placeholder,omitempty"`
	Size        PresentationSize `json:"size,omitempty"`
}

// InfoStep builds a step that collects no input and never blocks advancing.
func InfoStep(id, title string) Step {
	return Step{ID: id, Kind: InputNone, Title: title, Size: SizeCompact}
}

// SingleSelectStep builds a single-select step.
func SingleSelectStep(id string, required bool, options ...Option) Step {
	return Step{ID: id, Kind: InputSingleSelect, Required: required, Options: options, Size: SizeFull}
}

// MultiSelectStep builds a multi-select step.
func MultiSelectStep(id string, required bool, options ...Option) Step {
	return Step{ID: id, Kind: InputMultiSelect, Required: required, Options: options, Size: SizeFull}
}

// FreeTextStep builds a single-line text step.
func FreeTextStep(id string, required bool) Step {
	return Step{ID: id, Kind: InputFreeText, Required: required, Size: SizeFull}
}

// LongTextStep builds a multi-line text step.
func LongTextStep(id string, required bool) Step {
	return Step{ID: id, Kind: InputLongText, Required: required, Size: SizeFull}
}

// WithField returns a copy of the step bound to a different state key.
func (s Step) WithField(field string) Step {
	s.Field = field
	return s
}

// WithCopy returns a copy of the step carrying user-facing text.
func (s Step) WithCopy(title, description, placeholder string) Step {
	s.Title = title
	s.Description = description
	s.Placeholder = placeholder
	return s
}

// FieldKey returns the state key the step writes to.
func (s Step) FieldKey() string {
	if s.Field != "" {
		return s.Field
	}
	return s.ID
}

// HasInput reports whether the step collects a value.
func (s Step) HasInput() bool {
	return s.Kind != InputNone
}

// Option returns the option with the given id.
func (s Step) Option(id string) (Option, bool) {
	for _, o := range s.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Validate performs construction-time validation of a step definition.
func (s Step) Validate() error {
	if s.ID == "" {
		return ErrEmptyStepID
	}
	if len(s.ID) > MaxStepIDLength {
		return fmt.Errorf("%w: %s", ErrStepIDTooLong, s.ID)
	}
	if !IsValidInputKind(s.Kind) {
		return fmt.Errorf("%w: %q on step %s", ErrInvalidInputKind, s.Kind, s.ID)
	}
	if s.Kind == InputNone && s.Required {
		return fmt.Errorf("%w: %s", ErrRequiredNoInput, s.ID)
	}
	if !s.Kind.IsSelect() {
		if len(s.Options) > 0 {
			return fmt.Errorf("%w: %s", ErrUnexpectedOptions, s.ID)
		}
		return nil
	}
	return s.validateOptions()
}

// validateOptions validates the option set of a select step.
func (s Step) validateOptions() error {
	if len(s.Options) == 0 {
		return fmt.Errorf("%w: %s", ErrMissingOptions, s.ID)
	}
	if len(s.Options) > MaxOptionsCount {
		return fmt.Errorf("%w: %s", ErrTooManyOptions, s.ID)
	}
	seen := make(map[string]struct{}, len(s.Options))
	for _, o := range s.Options {
		if o.ID == "" {
			return fmt.Errorf("%w: %s", ErrEmptyOptionID, s.ID)
		}
		if o.Label == "" {
			return fmt.Errorf("%w: %s/%s", ErrEmptyOptionLabel, s.ID, o.ID)
		}
		if len(o.Label) > MaxOptionLabelLength {
			return fmt.Errorf("%w: %s/%s", ErrOptionLabelTooLong, s.ID, o.ID)
		}
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateOption, s.ID, o.ID)
		}
		seen[o.ID] = struct{}{}
	}
	return nil
}
