package relay

import (
	"sync"
	"time"
)

// State tracks a stream session through its lifecycle. Terminal states are
// never left once entered.
type State int

const (
	StateIdle State = iota
	StateSubscribed
	StateStreaming
	StateCompleted
	StateTimedOut
	StateCancelled
	StateUpstreamError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	case StateUpstreamError:
		return "upstream_error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a session.
func (s State) Terminal() bool { return s >= StateCompleted }

// session is the runtime-only state held per open stream. It is created on
// request accept and destroyed when the stream ends; never persisted.
type session struct {
	correlationID string

	mu           sync.Mutex
	state        State
	lastActivity time.Time
}

func newSession(correlationID string) *session {
	return &session{correlationID: correlationID, state: StateIdle, lastActivity: time.Now()}
}

// advance moves the session forward; terminal states are sticky.
func (s *session) advance(next State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Terminal() {
		s.state = next
	}
	s.lastActivity = time.Now()
	return s.state
}

func (s *session) current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
