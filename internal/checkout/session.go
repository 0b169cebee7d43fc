package checkout

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type State string

const (
	StateIdle            State = "Idle"
	StateSubmitting      State = "Submitting"
	StateSucceeded       State = "Succeeded"
	StatePartiallyFailed State = "PartiallyFailed"
	StateFailed          State = "Failed"
)

var (
	ErrSubmissionInFlight       = errors.New("a checkout is already being submitted for this session")
	ErrInvalidSessionTransition = errors.New("invalid session state transition")
	ErrSessionNotOwned          = errors.New("checkout session belongs to another customer")
)

// DefaultSessionIdleTTL is how long a settled session is remembered without activity.
const DefaultSessionIdleTTL = 30 * time.Minute

// Settled states may start a new attempt; Submitting may only settle.
var sessionTransitions = map[State][]State{
	StateIdle:            {StateSubmitting},
	StateSubmitting:      {StateSucceeded, StatePartiallyFailed, StateFailed},
	StateSucceeded:       {StateSubmitting},
	StatePartiallyFailed: {StateSubmitting},
	StateFailed:          {StateSubmitting},
}

func canMove(from, to State) bool {
	for _, s := range sessionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	SessionID  string    `json:"sessionId"`
	State      State     `json:"state"`
	CheckoutID string    `json:"checkoutId,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
	OwnerID    string    `json:"-"`
}

// Session tracks the submission state of one checkout session.
type Session struct {
	mu         sync.Mutex
	id         string
	state      State
	checkoutID string
	ownerID    string
	updatedAt  time.Time
}

// Begin moves the session to Submitting for a new attempt. The first customer to submit owns
// the session; an empty ownerID skips the check.
func (s *Session) Begin(checkoutID, ownerID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ownerID != "" && s.ownerID != "" && s.ownerID != ownerID {
		return ErrSessionNotOwned
	}
	if s.state == StateSubmitting {
		return ErrSubmissionInFlight
	}
	if !canMove(s.state, StateSubmitting) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidSessionTransition, s.state, StateSubmitting)
	}
	s.state = StateSubmitting
	s.checkoutID = checkoutID
	if s.ownerID == "" {
		s.ownerID = ownerID
	}
	s.updatedAt = now
	return nil
}

// Finish settles the in-flight attempt.
func (s *Session) Finish(state State, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !canMove(s.state, state) || s.state != StateSubmitting {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidSessionTransition, s.state, state)
	}
	s.state = state
	s.updatedAt = now
	return nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{SessionID: s.id, State: s.state, CheckoutID: s.checkoutID, UpdatedAt: s.updatedAt, OwnerID: s.ownerID}
}

// idleSince reports whether the session is settled and untouched since cutoff.
func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateSubmitting && s.updatedAt.Before(cutoff)
}

// Sessions holds one Session per checkout session id. Settled sessions are dropped once idle
// for longer than idleTTL, so an evicted session reads as Idle again.
type Sessions struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	idleTTL   time.Duration
	lastPrune time.Time
}

func NewSessions() *Sessions {
	return NewSessionsWithTTL(DefaultSessionIdleTTL)
}

func NewSessionsWithTTL(idleTTL time.Duration) *Sessions {
	return &Sessions{sessions: make(map[string]*Session), idleTTL: idleTTL}
}

// Get returns the session for id, creating it in Idle.
func (r *Sessions) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *Sessions) get(id string) *Session {
	s, ok := r.sessions[id]
	if !ok {
		s = &Session{id: id, state: StateIdle}
		r.sessions[id] = s
	}
	return s
}

// Begin starts a new attempt on the session for id. The lookup and the transition happen under
// one lock, so a prune can never drop a session between the two.
func (r *Sessions) Begin(id, checkoutID, ownerID string, now time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked(now)
	s := r.get(id)
	if err := s.Begin(checkoutID, ownerID, now); err != nil {
		return nil, err
	}
	return s, nil
}

// Prune drops every settled session idle since before now minus the TTL and returns how many went.
func (r *Sessions) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastPrune = time.Time{}
	return r.pruneLocked(now)
}

// pruneLocked runs at most once per minute.
func (r *Sessions) pruneLocked(now time.Time) int {
	if r.idleTTL <= 0 || now.Sub(r.lastPrune) < time.Minute {
		return 0
	}
	r.lastPrune = now

	cutoff := now.Add(-r.idleTTL)
	pruned := 0
	for id, s := range r.sessions {
		if s.idleSince(cutoff) {
			delete(r.sessions, id)
			pruned++
		}
	}
	return pruned
}

func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Lookup returns a snapshot without creating the session.
func (r *Sessions) Lookup(id string) (Snapshot, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return Snapshot{SessionID: id, State: StateIdle}, false
	}
	return s.Snapshot(), true
}
