package api

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/StepFlow/internal/flow"
	"github.com/BTreeMap/StepFlow/internal/models"
)

// FlowSession is one live flow owned by the server.
type FlowSession struct {
	ID           string
	Kind         models.FlowKind
	Controller   *flow.Controller
	Auth         *flow.AuthFlow // nil for onboarding flows
	OnboardingID string         // linked onboarding flow for sign-up
	CreatedAt    time.Time

	mu       sync.Mutex
	lastSeen time.Time
	result   any
}

// Snapshot returns the controller snapshot stamped with the session id.
func (fs *FlowSession) Snapshot() models.FlowSnapshot {
	snap := fs.Controller.Snapshot()
	snap.ID = fs.ID
	return snap
}

// Result returns the completion result, which outlives Close.
func (fs *FlowSession) Result() any {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.result
}

// LastSeen returns the time of the last request that touched the session.
func (fs *FlowSession) LastSeen() time.Time {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.lastSeen
}

func (fs *FlowSession) setResult(result any) {
	fs.mu.Lock()
	fs.result = result
	fs.mu.Unlock()
}

func (fs *FlowSession) touch(now time.Time) {
	fs.mu.Lock()
	fs.lastSeen = now
	fs.mu.Unlock()
}

// Sessions is the registry of live flow sessions.
type Sessions struct {
	mu    sync.RWMutex
	flows map[string]*FlowSession
	now   func() time.Time
}

// NewSessions creates an empty registry.
func NewSessions() *Sessions {
	return &Sessions{
		flows: make(map[string]*FlowSession),
		now:   time.Now,
	}
}

// Add registers a session.
func (s *Sessions) Add(fs *FlowSession) {
	now := s.now()
	if fs.CreatedAt.IsZero() {
		fs.CreatedAt = now
	}
	fs.touch(now)
	s.mu.Lock()
	s.flows[fs.ID] = fs
	s.mu.Unlock()
	slog.Debug("Sessions.Add: flow registered", "flowID", fs.ID, "kind", fs.Kind)
}

// Get returns a session and marks it as recently used.
func (s *Sessions) Get(id string) (*FlowSession, bool) {
	s.mu.RLock()
	fs, ok := s.flows[id]
	s.mu.RUnlock()
	if ok {
		fs.touch(s.now())
	}
	return fs, ok
}

// Peek returns a session without touching it.
func (s *Sessions) Peek(id string) (*FlowSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fs, ok := s.flows[id]
	return fs, ok
}

// Remove unregisters and closes a session.
func (s *Sessions) Remove(id string) bool {
	s.mu.Lock()
	fs, ok := s.flows[id]
	delete(s.flows, id)
	s.mu.Unlock()
	if ok {
		fs.Controller.Close()
		slog.Debug("Sessions.Remove: flow closed", "flowID", id)
	}
	return ok
}

// ReapIdle closes every session untouched for longer than maxIdle and returns how many
// were closed.
func (s *Sessions) ReapIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	var idle []*FlowSession
	s.mu.Lock()
	for id, fs := range s.flows {
		if fs.LastSeen().Before(cutoff) {
			idle = append(idle, fs)
			delete(s.flows, id)
		}
	}
	s.mu.Unlock()

	for _, fs := range idle {
		fs.Controller.Close()
		slog.Info("Sessions.ReapIdle: closed idle flow", "flowID", fs.ID, "kind", fs.Kind, "lastSeen", fs.LastSeen())
	}
	return len(idle)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flows)
}

// CloseAll closes and removes every session.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	flows := s.flows
	s.flows = make(map[string]*FlowSession)
	s.mu.Unlock()
	for _, fs := range flows {
		fs.Controller.Close()
	}
	slog.Debug("Sessions.CloseAll: closed flows", "count", len(flows))
}
