package identity

import (
	"sync"

	"github.com/skcetlabs/portal/pkg/rbac"
)

// Snapshot is one observation of the client-side identity state.
// IsLoaded is false until the provider's client state has resolved; that
// window is "pending" and must never be treated as denied.
type Snapshot struct {
	IsLoaded   bool
	IsSignedIn bool
	UserID     string
	Role       rbac.Role
}

// Principal converts the snapshot into the decision point's input
func (s Snapshot) Principal() rbac.Principal {
	return rbac.Principal{
		UserID:        s.UserID,
		Role:          s.Role,
		Authenticated: s.IsSignedIn,
	}
}

// SessionState mirrors the identity provider's reactive client state for
// one render cycle. It starts unloaded; the provider client feeds it via
// SetSignedIn/SetSignedOut, and subscribers are notified on every change.
type SessionState struct {
	mu      sync.RWMutex
	snap    Snapshot
	subs    map[int]chan Snapshot
	nextSub int
}

// NewSessionState creates a session state in the pending (unloaded) phase
func NewSessionState() *SessionState {
	return &SessionState{
		subs: make(map[int]chan Snapshot),
	}
}

// Snapshot returns the current state
func (s *SessionState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// SetSignedIn marks the state loaded with an authenticated user. Role may
// be empty for users who have not completed onboarding.
func (s *SessionState) SetSignedIn(userID string, role rbac.Role) {
	s.update(Snapshot{IsLoaded: true, IsSignedIn: true, UserID: userID, Role: role})
}

// SetSignedOut marks the state loaded with no authenticated user
func (s *SessionState) SetSignedOut() {
	s.update(Snapshot{IsLoaded: true})
}

// Reset returns the state to pending, e.g. when the provider client
// re-initializes after navigation
func (s *SessionState) Reset() {
	s.update(Snapshot{})
}

// Subscribe registers for state-change notifications. The returned cancel
// function must be called when the subscriber's render cycle ends; an
// abandoned in-flight notification is simply discarded.
func (s *SessionState) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
	return ch, cancel
}

func (s *SessionState) update(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	for _, ch := range s.subs {
		// Drop the stale notification if the subscriber hasn't drained yet;
		// it only ever needs the latest snapshot
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
