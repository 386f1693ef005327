package mcpserver

import (
	"fmt"
	"sync"
)

// SessionState is one state in the MCP session lifecycle:
//
//	New -> Initialized -> Ready <-> Serving -> Closing -> Closed
//
// The teacher leaves this transition implicit in the go-sdk's own session
// bookkeeping; corpuskit makes it explicit so Serve/Close can reject
// lifecycle steps attempted out of order (e.g. Serve after Close). NewServer
// already reaches Ready, and the tool handlers do not consult the state.
type SessionState string

const (
	StateNew         SessionState = "new"
	StateInitialized SessionState = "initialized"
	StateReady       SessionState = "ready"
	StateServing     SessionState = "serving"
	StateClosing     SessionState = "closing"
	StateClosed      SessionState = "closed"
)

var validTransitions = map[SessionState][]SessionState{
	StateNew:         {StateInitialized},
	StateInitialized: {StateReady},
	StateReady:       {StateServing, StateClosing},
	StateServing:     {StateReady, StateClosing},
	StateClosing:     {StateClosed},
	StateClosed:      {},
}

// Session tracks one client connection's lifecycle state.
type Session struct {
	mu    sync.Mutex
	state SessionState
}

// NewSession returns a session in the New state.
func NewSession() *Session {
	return &Session{state: StateNew}
}

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to next, returning an error if that
// transition isn't allowed from the current state.
func (s *Session) Transition(next SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, allowed := range validTransitions[s.state] {
		if allowed == next {
			s.state = next
			return nil
		}
	}
	return fmt.Errorf("mcpserver: invalid session transition %s -> %s", s.state, next)
}

// MustBeAtLeastReady reports whether the session can accept tools/call
// requests (Ready or already Serving).
func (s *Session) MustBeAtLeastReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady && s.state != StateServing {
		return fmt.Errorf("mcpserver: session not ready (state=%s)", s.state)
	}
	return nil
}
