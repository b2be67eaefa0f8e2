package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// Animator sequences a two-phase step transition: exit, mutate, enter.
type Animator interface {
	// Transition runs mutate after the exit phase and before the enter phase.
	// Calls made while an exit phase is pending replace its mutation; the latest call wins.
	Transition(mutate func(), fadeOut, fadeIn time.Duration)
	// Phase returns the current visual phase.
	Phase() models.TransitionPhase
	// Stop drops any pending mutation and returns to idle.
	Stop()
}

// TimedAnimator implements Animator with a Timer. Zero durations run the phase inline, which
// makes the whole transition synchronous.
type TimedAnimator struct {
	mu      sync.Mutex
	timer   Timer
	phase   models.TransitionPhase
	gen     uint64
	pending func()
	fadeIn  time.Duration
	timerID string
	onPhase func(models.TransitionPhase)
}

// AnimatorOption configures a TimedAnimator.
type AnimatorOption func(*TimedAnimator)

// WithTimer overrides the timer used to schedule phase ends.
func WithTimer(t Timer) AnimatorOption {
	return func(a *TimedAnimator) { a.timer = t }
}

// WithPhaseObserver registers a callback invoked on every phase change.
// It runs without the animator lock held.
func WithPhaseObserver(fn func(models.TransitionPhase)) AnimatorOption {
	return func(a *TimedAnimator) { a.onPhase = fn }
}

// NewTimedAnimator creates an idle animator.
func NewTimedAnimator(opts ...AnimatorOption) *TimedAnimator {
	a := &TimedAnimator{phase: models.PhaseIdle}
	for _, opt := range opts {
		opt(a)
	}
	if a.timer == nil {
		a.timer = NewSimpleTimer()
	}
	return a
}

// Transition implements Animator.
func (a *TimedAnimator) Transition(mutate func(), fadeOut, fadeIn time.Duration) {
	a.mu.Lock()
	a.pending = mutate
	a.fadeIn = fadeIn
	if a.phase == models.PhaseExiting {
		a.mu.Unlock()
		slog.Debug("TimedAnimator.Transition: replaced pending mutation")
		return
	}
	if a.timerID != "" {
		a.timer.Cancel(a.timerID)
		a.timerID = ""
	}
	a.gen++
	gen := a.gen
	a.phase = models.PhaseExiting
	a.mu.Unlock()
	a.notify(models.PhaseExiting)

	a.schedule(gen, fadeOut, a.finishExit)
}

// Phase implements Animator.
func (a *TimedAnimator) Phase() models.TransitionPhase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// Stop implements Animator.
func (a *TimedAnimator) Stop() {
	a.mu.Lock()
	a.gen++
	a.pending = nil
	if a.timerID != "" {
		a.timer.Cancel(a.timerID)
		a.timerID = ""
	}
	changed := a.phase != models.PhaseIdle
	a.phase = models.PhaseIdle
	a.mu.Unlock()
	if changed {
		a.notify(models.PhaseIdle)
	}
}

// finishExit runs the latest pending mutation, then any that arrived while it ran,
// and starts the enter phase.
func (a *TimedAnimator) finishExit(gen uint64) {
	for {
		a.mu.Lock()
		if gen != a.gen || a.phase != models.PhaseExiting {
			a.mu.Unlock()
			return
		}
		a.timerID = ""
		mutate := a.pending
		a.pending = nil
		if mutate == nil {
			a.phase = models.PhaseEntering
			fadeIn := a.fadeIn
			a.mu.Unlock()
			a.notify(models.PhaseEntering)
			a.schedule(gen, fadeIn, a.finishEnter)
			return
		}
		a.mu.Unlock()
		mutate()
	}
}

func (a *TimedAnimator) finishEnter(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || a.phase != models.PhaseEntering {
		a.mu.Unlock()
		return
	}
	a.timerID = ""
	a.phase = models.PhaseIdle
	a.mu.Unlock()
	a.notify(models.PhaseIdle)
}

func (a *TimedAnimator) schedule(gen uint64, d time.Duration, next func(uint64)) {
	if d <= 0 {
		next(gen)
		return
	}
	id, err := a.timer.ScheduleAfter(d, func() { next(gen) })
	if err != nil {
		slog.Error("TimedAnimator.schedule: failed to schedule phase end, finishing inline", "error", err)
		next(gen)
		return
	}
	a.mu.Lock()
	if gen == a.gen && a.phase != models.PhaseIdle {
		a.timerID = id
	}
	a.mu.Unlock()
}

func (a *TimedAnimator) notify(phase models.TransitionPhase) {
	if a.onPhase != nil {
		a.onPhase(phase)
	}
}
