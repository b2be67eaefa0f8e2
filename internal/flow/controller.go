package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// Controller errors.
var (
	ErrFlowClosed         = errors.New("flow is closed")
	ErrFlowCompleted      = errors.New("flow is already completed")
	ErrTransitionInFlight = errors.New("a step transition is in flight")
)

// Behavior customizes a Controller for one kind of flow. The state machine topology is the
// same for every behavior; only the work done around step changes differs.
type Behavior interface {
	// BeforeAdvance runs after the validation gate passes and before the step changes.
	// On the last step a nil error completes the flow with the returned result.
	// A *models.StepError is surfaced on the controller; other errors are returned to the caller.
	BeforeAdvance(ctx context.Context, step models.Step, last bool, values map[string]models.FieldValue) (any, error)
	// StepEntered runs after a step change has been applied.
	StepEntered(from, to models.Step, forward bool)
	// ClearOnBack lists the fields to clear when leaving step backwards.
	ClearOnBack(step models.Step) []string
	// Describe adds behavior-specific state to a snapshot.
	Describe(snap *models.FlowSnapshot)
	// Close releases behavior resources.
	Close()
}

// Controller drives one flow instance through its StepOrder. It is the sole mutator of the
// flow's State; all methods are safe for concurrent use.
type Controller struct {
	def        Definition
	behavior   Behavior
	animator   Animator
	onComplete func(any)
	onExit     func()
	onChange   func()

	mu            sync.Mutex
	state         *State
	index         int
	err           *models.StepError
	busy          bool
	transitioning bool
	completed     bool
	closed        bool
	result        any
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithBehavior sets the flow behavior.
func WithBehavior(b Behavior) ControllerOption {
	return func(c *Controller) { c.behavior = b }
}

// WithAnimator sets the transition animator.
func WithAnimator(a Animator) ControllerOption {
	return func(c *Controller) { c.animator = a }
}

// WithOnComplete sets the handler invoked exactly once when the flow completes.
func WithOnComplete(fn func(result any)) ControllerOption {
	return func(c *Controller) { c.onComplete = fn }
}

// WithOnExit sets the handler invoked when back is requested on the first step.
func WithOnExit(fn func()) ControllerOption {
	return func(c *Controller) { c.onExit = fn }
}

// WithOnChange sets a handler invoked after any observable change.
func WithOnChange(fn func()) ControllerOption {
	return func(c *Controller) { c.onChange = fn }
}

// NewController creates a controller positioned on the first step of def.
func NewController(def Definition, opts ...ControllerOption) (*Controller, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		def:   def,
		state: NewState(def.Order, def.Extra...),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.behavior == nil {
		c.behavior = basicBehavior{}
	}
	if c.animator == nil {
		c.animator = NewTimedAnimator()
	}
	slog.Debug("Controller: created", "kind", def.Kind, "steps", def.Order.Len())
	return c, nil
}

// Kind returns the flow kind.
func (c *Controller) Kind() models.FlowKind {
	return c.def.Kind
}

// Definition returns the definition the controller was built from.
func (c *Controller) Definition() Definition {
	return c.def
}

// CurrentStep returns the step the flow is positioned on.
func (c *Controller) CurrentStep() models.Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.def.Order.At(c.index)
}

// CurrentError returns a copy of the current step error, or nil.
func (c *Controller) CurrentError() *models.StepError {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return nil
	}
	e := *c.err
	return &e
}

// CanAdvance reports whether the current step passes the validation gate.
func (c *Controller) CanAdvance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CanAdvance(c.def.Order.At(c.index), c.state.values)
}

// Completed reports whether the flow reached its terminal state.
func (c *Controller) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

// Result returns the completion result, or nil before completion.
func (c *Controller) Result() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Advance moves to the next step, or completes the flow from the last step.
//
// A step that fails the validation gate gets a field error and the index does not change;
// such rejections are reported on the controller, not returned.
func (c *Controller) Advance(ctx context.Context) error {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	step := c.def.Order.At(c.index)
	if !CanAdvance(step, c.state.values) {
		c.err = models.FieldError(step.FieldKey(), models.KindValidation, RequiredMessage(step))
		c.mu.Unlock()
		slog.Warn("Controller.Advance: step incomplete", "kind", c.def.Kind, "step", step.ID)
		c.changed()
		return nil
	}
	from := c.index
	last := from == c.def.Order.Len()-1
	c.err = nil
	c.busy = true
	values := c.state.Values()
	c.mu.Unlock()
	c.changed()

	slog.Debug("Controller.Advance: running step behavior", "kind", c.def.Kind, "step", step.ID, "last", last)
	result, err := c.behavior.BeforeAdvance(ctx, step, last, values)

	c.mu.Lock()
	c.busy = false
	if c.closed {
		c.mu.Unlock()
		slog.Debug("Controller.Advance: flow closed while step behavior ran", "kind", c.def.Kind, "step", step.ID)
		return ErrFlowClosed
	}
	if err != nil {
		var se *models.StepError
		if errors.As(err, &se) {
			c.err = se
			c.mu.Unlock()
			c.changed()
			return nil
		}
		c.mu.Unlock()
		c.changed()
		return err
	}
	if last {
		c.completed = true
		c.result = result
		onComplete := c.onComplete
		c.mu.Unlock()
		slog.Debug("Controller.Advance: flow completed", "kind", c.def.Kind)
		if onComplete != nil {
			onComplete(result)
		}
		c.changed()
		return nil
	}
	c.transitioning = true
	c.mu.Unlock()

	c.animator.Transition(c.moveTo(from+1, nil), c.def.FadeOut, c.def.FadeIn)
	c.changed()
	return nil
}

// Back moves to the previous step. On the first step it invokes the exit handler instead.
func (c *Controller) Back() error {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.index == 0 {
		onExit := c.onExit
		c.mu.Unlock()
		slog.Debug("Controller.Back: exit requested from first step", "kind", c.def.Kind)
		if onExit != nil {
			onExit()
		}
		return nil
	}
	step := c.def.Order.At(c.index)
	target := c.index - 1
	c.transitioning = true
	c.mu.Unlock()

	stale := c.behavior.ClearOnBack(step)
	c.animator.Transition(c.moveTo(target, stale), c.def.FadeOut, c.def.FadeIn)
	c.changed()
	return nil
}

// JumpTo moves directly to a step without consulting the validation gate.
// Jumping to the step the flow is already on is a no-op.
func (c *Controller) JumpTo(stepID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrFlowClosed
	}
	if c.completed {
		c.mu.Unlock()
		return ErrFlowCompleted
	}
	if c.busy {
		c.mu.Unlock()
		return ErrRequestInFlight
	}
	target, ok := c.def.Order.IndexOf(stepID)
	if !ok {
		c.mu.Unlock()
		return ErrUnknownStep
	}
	if target == c.index && !c.transitioning {
		c.mu.Unlock()
		return nil
	}
	c.transitioning = true
	c.mu.Unlock()

	slog.Debug("Controller.JumpTo: jumping", "kind", c.def.Kind, "step", stepID)
	c.animator.Transition(c.moveTo(target, nil), c.def.FadeOut, c.def.FadeIn)
	c.changed()
	return nil
}

// SetText sets a text field.
func (c *Controller) SetText(field, text string) error {
	return c.update(field, func(s *State) error { return s.SetText(field, text) })
}

// Select selects an option on a select field.
func (c *Controller) Select(field, optionID string) error {
	return c.update(field, func(s *State) error { return s.Select(field, optionID) })
}

// Deselect removes an option from a select field.
func (c *Controller) Deselect(field, optionID string) error {
	return c.update(field, func(s *State) error { return s.Deselect(field, optionID) })
}

// Toggle flips an option on a select field.
func (c *Controller) Toggle(field, optionID string) error {
	return c.update(field, func(s *State) error { return s.Toggle(field, optionID) })
}

// ClearField empties a field.
func (c *Controller) ClearField(field string) error {
	return c.update(field, func(s *State) error { return s.Clear(field) })
}

// DismissError clears the current step error.
func (c *Controller) DismissError() {
	c.mu.Lock()
	c.err = nil
	c.mu.Unlock()
	c.changed()
}

// Snapshot returns the read-only view of the flow.
func (c *Controller) Snapshot() models.FlowSnapshot {
	c.mu.Lock()
	step := c.def.Order.At(c.index)
	snap := models.FlowSnapshot{
		Kind:       c.def.Kind,
		Step:       step,
		StepIndex:  c.index,
		StepIDs:    c.def.Order.IDs(),
		Values:     c.state.Values(),
		CanAdvance: CanAdvance(step, c.state.values),
		CanGoBack:  c.index > 0,
		Progress:   ComputeProgress(c.def.Order, c.index, c.state.values),
		Busy:       c.busy,
		Completed:  c.completed,
		Closed:     c.closed,
	}
	if c.err != nil {
		e := *c.err
		snap.Error = &e
	}
	c.mu.Unlock()

	snap.Phase = c.animator.Phase()
	c.behavior.Describe(&snap)
	return snap
}

// Close tears the flow down: state is reset, pending transitions are dropped and any
// in-flight result will be ignored. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state.Reset()
	c.index = 0
	c.err = nil
	c.busy = false
	c.transitioning = false
	c.result = nil
	c.mu.Unlock()

	c.animator.Stop()
	c.behavior.Close()
	slog.Debug("Controller.Close: flow closed", "kind", c.def.Kind)
	c.changed()
}

// call runs fn while the controller is marked busy. Step errors returned by fn are surfaced
// on the controller; anything else is returned.
func (c *Controller) call(fn func(values map[string]models.FieldValue) error) error {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.busy = true
	c.err = nil
	values := c.state.Values()
	c.mu.Unlock()
	c.changed()

	err := fn(values)

	c.mu.Lock()
	c.busy = false
	if c.closed {
		c.mu.Unlock()
		return ErrFlowClosed
	}
	var se *models.StepError
	if errors.As(err, &se) {
		c.err = se
		err = nil
	}
	c.mu.Unlock()
	c.changed()
	return err
}

func (c *Controller) update(field string, fn func(*State) error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrFlowClosed
	}
	if c.completed {
		c.mu.Unlock()
		return ErrFlowCompleted
	}
	if err := fn(c.state); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.err.IsField() && c.err.Field == field {
		c.err = nil
	}
	c.mu.Unlock()
	c.changed()
	return nil
}

// moveTo builds the mutation applied between the exit and enter phases.
func (c *Controller) moveTo(target int, stale []string) func() {
	return func() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		prev := c.index
		for _, field := range stale {
			_ = c.state.Clear(field)
		}
		c.index = target
		c.transitioning = false
		c.err = nil
		from, to := c.def.Order.At(prev), c.def.Order.At(target)
		c.mu.Unlock()

		slog.Debug("Controller: step changed", "kind", c.def.Kind, "from", from.ID, "to", to.ID)
		c.behavior.StepEntered(from, to, target > prev)
		c.changed()
	}
}

func (c *Controller) readyLocked() error {
	switch {
	case c.closed:
		return ErrFlowClosed
	case c.completed:
		return ErrFlowCompleted
	case c.busy:
		return ErrRequestInFlight
	case c.transitioning:
		return ErrTransitionInFlight
	}
	return nil
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

// basicBehavior completes with the accumulated values and does nothing else.
type basicBehavior struct{}

func (basicBehavior) BeforeAdvance(_ context.Context, _ models.Step, last bool, values map[string]models.FieldValue) (any, error) {
	if !last {
		return nil, nil
	}
	return values, nil
}

func (basicBehavior) StepEntered(models.Step, models.Step, bool) {}

func (basicBehavior) ClearOnBack(models.Step) []string { return nil }

func (basicBehavior) Describe(*models.FlowSnapshot) {}

func (basicBehavior) Close() {}
