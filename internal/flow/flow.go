// Package flow drives stepped wizards: step ordering, accumulated state, validation gating,
// animated transitions, resend cooldowns and one-time-code verification.
package flow

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// Definition describes one kind of stepped flow.
type Definition struct {
	Kind    models.FlowKind
	Order   StepOrder
	Extra   []models.Step // fields held in state that no step renders (e.g. the optional full name)
	FadeOut time.Duration
	FadeIn  time.Duration
}

// Validate checks that the definition can back a controller.
func (d Definition) Validate() error {
	if !models.IsValidFlowKind(d.Kind) {
		return fmt.Errorf("invalid flow kind %q", d.Kind)
	}
	if d.Order.Len() == 0 {
		return ErrEmptyStepOrder
	}
	if d.FadeOut < 0 || d.FadeIn < 0 {
		return fmt.Errorf("negative transition duration for flow %s", d.Kind)
	}
	for _, s := range d.Extra {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, clash := d.Order.fieldIndex[s.FieldKey()]; clash {
			return fmt.Errorf("%w: %s", ErrDuplicateField, s.FieldKey())
		}
	}
	return nil
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.FlowKind]Definition)
)

// Register associates a FlowKind with its Definition, replacing any previous one.
func Register(def Definition) error {
	if err := def.Validate(); err != nil {
		slog.Error("flow.Register: invalid definition", "kind", def.Kind, "error", err)
		return err
	}
	registryMu.Lock()
	registry[def.Kind] = def
	registryMu.Unlock()
	slog.Debug("flow.Register: definition registered", "kind", def.Kind, "steps", def.Order.Len())
	return nil
}

// Get retrieves the Definition for a given FlowKind.
func Get(kind models.FlowKind) (Definition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	def, ok := registry[kind]
	return def, ok
}

// Register default definitions
func init() {
	if err := Register(DefaultOnboardingDefinition()); err != nil {
		panic(err)
	}
	if err := Register(DefaultAuthDefinition()); err != nil {
		panic(err)
	}
}
