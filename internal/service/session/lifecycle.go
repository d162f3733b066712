// Package session provides the lifecycle state machine and identifiers
// for remote recognition sessions.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a session.
type State int

const (
	// StatePending - created, continuous recognition not started.
	StatePending State = iota
	// StateRunning - started, waiting for a terminal event.
	StateRunning
	// StateStopped - the remote service reported session stopped.
	StateStopped
	// StateCanceled - the remote service canceled the session.
	StateCanceled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	case StateCanceled:
		return "CANCELED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (STOPPED or CANCELED).
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateCanceled
}

// Errors for invalid state transitions.
var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrSessionEnded   = errors.New("session has ended")
)

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	PENDING → RUNNING → STOPPED
//	   │         │
//	   │         └──→ CANCELED
//	   └────────────→ STOPPED | CANCELED
//
// The first terminal transition wins; later ones report false. Terminal
// events may arrive before Start returns, so PENDING may end directly.
type Lifecycle struct {
	mu        sync.RWMutex
	sessionId string
	state     State
}

// NewLifecycle creates a new session lifecycle in PENDING state.
func NewLifecycle(sessionId string) *Lifecycle {
	return &Lifecycle{
		sessionId: sessionId,
		state:     StatePending,
	}
}

// SessionId returns the session ID.
func (l *Lifecycle) SessionId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionId
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsEnded returns true if the session reached a terminal state.
func (l *Lifecycle) IsEnded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Start transitions PENDING → RUNNING.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StatePending:
		l.state = StateRunning
		return nil
	case StateRunning:
		return ErrAlreadyStarted
	default:
		return ErrSessionEnded
	}
}

// Stop moves to STOPPED. Returns true if this call ended the session.
func (l *Lifecycle) Stop() bool {
	return l.end(StateStopped)
}

// Cancel moves to CANCELED. Returns true if this call ended the session.
func (l *Lifecycle) Cancel() bool {
	return l.end(StateCanceled)
}

func (l *Lifecycle) end(to State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = to
	return true
}
