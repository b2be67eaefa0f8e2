package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/StepFlow/internal/models"
)

// DefaultResendCooldown is the wait between one-time-code sends.
const DefaultResendCooldown = 60 * time.Second

// CooldownStatus is the lifecycle position of a Cooldown.
type CooldownStatus string

// Cooldown status constants.
const (
	CooldownIdle    CooldownStatus = "idle"
	CooldownRunning CooldownStatus = "running"
	CooldownExpired CooldownStatus = "expired"
)

// Cooldown is a one-second countdown gating the resend action.
//
// It moves idle -> running(N) -> ... -> expired. Start always restarts at the full duration.
// The tick source is a time.Ticker unless WithManualTicks is used, in which case the owner
// calls Tick.
type Cooldown struct {
	mu        sync.Mutex
	seconds   int
	interval  time.Duration
	manual    bool
	remaining int
	started   bool
	stop      chan struct{}
	onChange  func(models.CooldownState)
}

// CooldownOption configures a Cooldown.
type CooldownOption func(*Cooldown)

// WithCooldownDuration sets the countdown length, rounded up to whole seconds.
func WithCooldownDuration(d time.Duration) CooldownOption {
	return func(c *Cooldown) {
		c.seconds = int((d + time.Second - 1) / time.Second)
	}
}

// WithTickInterval sets how much real time one tick takes.
func WithTickInterval(d time.Duration) CooldownOption {
	return func(c *Cooldown) { c.interval = d }
}

// WithManualTicks disables the internal ticker.
func WithManualTicks() CooldownOption {
	return func(c *Cooldown) { c.manual = true }
}

// WithCooldownObserver registers a callback invoked after every state change.
func WithCooldownObserver(fn func(models.CooldownState)) CooldownOption {
	return func(c *Cooldown) { c.onChange = fn }
}

// NewCooldown creates an idle cooldown.
func NewCooldown(opts ...CooldownOption) *Cooldown {
	c := &Cooldown{
		seconds:  int(DefaultResendCooldown / time.Second),
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.seconds < 0 {
		c.seconds = 0
	}
	return c
}

// Start (re)starts the countdown at the full duration.
func (c *Cooldown) Start() {
	c.mu.Lock()
	c.stopLocked()
	c.started = true
	c.remaining = c.seconds
	if c.remaining > 0 && !c.manual && c.interval > 0 {
		stop := make(chan struct{})
		c.stop = stop
		go c.run(stop)
	}
	state := c.stateLocked()
	c.mu.Unlock()

	slog.Debug("Cooldown.Start: countdown started", "seconds", state.RemainingSeconds)
	c.notify(state)
}

// Tick advances the countdown by one second. Ticks at zero are ignored.
func (c *Cooldown) Tick() {
	c.tick(nil)
}

// tick decrements the countdown. A non-nil owner must still be the live ticker channel,
// so a goroutine from before a restart never ticks the new countdown.
func (c *Cooldown) tick(owner chan struct{}) {
	c.mu.Lock()
	if c.remaining == 0 || (owner != nil && c.stop != owner) {
		c.mu.Unlock()
		return
	}
	c.remaining--
	if c.remaining == 0 {
		c.stopLocked()
	}
	state := c.stateLocked()
	c.mu.Unlock()
	c.notify(state)
}

// Stop halts the countdown and returns to idle.
func (c *Cooldown) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.started = false
	c.remaining = 0
	c.mu.Unlock()
}

// State returns the observable countdown state.
func (c *Cooldown) State() models.CooldownState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// CanTrigger reports whether the guarded action may run now.
func (c *Cooldown) CanTrigger() bool {
	return c.State().CanTrigger()
}

// Status returns the lifecycle position.
func (c *Cooldown) Status() CooldownStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case !c.started:
		return CooldownIdle
	case c.remaining > 0:
		return CooldownRunning
	default:
		return CooldownExpired
	}
}

func (c *Cooldown) run(stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick(stop)
		}
	}
}

func (c *Cooldown) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Cooldown) stateLocked() models.CooldownState {
	return models.CooldownState{RemainingSeconds: c.remaining}
}

func (c *Cooldown) notify(state models.CooldownState) {
	if c.onChange != nil {
		c.onChange(state)
	}
}
