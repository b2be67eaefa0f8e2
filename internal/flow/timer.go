package flow

import (
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

var errNilCallback = errors.New("nil timer callback")

// Timer schedules and cancels delayed callbacks. The animator uses it to end its phases.
type Timer interface {
	// ScheduleAfter runs fn once delay has elapsed and returns an id for Cancel.
	ScheduleAfter(delay time.Duration, fn func()) (string, error)
	// Cancel drops a scheduled callback; unknown or already fired ids are ignored.
	Cancel(id string) error
	// Stop drops every scheduled callback.
	Stop()
}

// SimpleTimer implements Timer with time.AfterFunc. A callback that was cancelled after its
// timer fired but before it ran is skipped.
type SimpleTimer struct {
	mu      sync.Mutex
	seq     uint64
	pending map[string]*time.Timer
}

// NewSimpleTimer creates a SimpleTimer with nothing scheduled.
func NewSimpleTimer() *SimpleTimer {
	return &SimpleTimer{pending: make(map[string]*time.Timer)}
}

// ScheduleAfter implements Timer.
func (t *SimpleTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	if fn == nil {
		return "", errNilCallback
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	id := "phase-" + strconv.FormatUint(t.seq, 10)
	t.pending[id] = time.AfterFunc(delay, func() {
		if t.take(id) {
			fn()
		}
	})
	return id, nil
}

// take removes id and reports whether it was still scheduled. Removing first lets fn
// schedule the next phase on the same timer.
func (t *SimpleTimer) take(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[id]
	delete(t.pending, id)
	return ok
}

// Cancel implements Timer.
func (t *SimpleTimer) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.pending[id]; ok {
		tm.Stop()
		delete(t.pending, id)
	}
	return nil
}

// Stop implements Timer.
func (t *SimpleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tm := range t.pending {
		tm.Stop()
		delete(t.pending, id)
	}
	slog.Debug("SimpleTimer.Stop: pending callbacks dropped")
}

// Pending returns the number of callbacks that have not fired or been cancelled.
func (t *SimpleTimer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
