package flow

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// manualTimer is a Timer whose callbacks run only when fired by the test.
type manualTimer struct {
	mu     sync.Mutex
	nextID int
	fns    map[string]func()
	delays map[string]time.Duration
}

func newManualTimer() *manualTimer {
	return &manualTimer{fns: make(map[string]func()), delays: make(map[string]time.Duration)}
}

func (m *manualTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("t%d", m.nextID)
	m.fns[id] = fn
	m.delays[id] = delay
	return id, nil
}

func (m *manualTimer) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fns, id)
	delete(m.delays, id)
	return nil
}

func (m *manualTimer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fns = make(map[string]func())
	m.delays = make(map[string]time.Duration)
}

func (m *manualTimer) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fns)
}

// fireAll runs every pending callback in scheduling order, including ones scheduled by the
// callbacks themselves.
func (m *manualTimer) fireAll() {
	for {
		m.mu.Lock()
		if len(m.fns) == 0 {
			m.mu.Unlock()
			return
		}
		ids := make([]string, 0, len(m.fns))
		for id := range m.fns {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			var a, b int
			fmt.Sscanf(ids[i], "t%d", &a)
			fmt.Sscanf(ids[j], "t%d", &b)
			return a < b
		})
		id := ids[0]
		fn := m.fns[id]
		delete(m.fns, id)
		delete(m.delays, id)
		m.mu.Unlock()
		fn()
	}
}

// fireNext runs the oldest pending callback.
func (m *manualTimer) fireNext() bool {
	m.mu.Lock()
	best, bestN := "", -1
	for id := range m.fns {
		var n int
		fmt.Sscanf(id, "t%d", &n)
		if bestN < 0 || n < bestN {
			best, bestN = id, n
		}
	}
	if best == "" {
		m.mu.Unlock()
		return false
	}
	fn := m.fns[best]
	delete(m.fns, best)
	delete(m.delays, best)
	m.mu.Unlock()
	fn()
	return true
}
