package session

import (
	"sync"
	"time"

	"github.com/surveyhub/portal/internal/core/domain"
)

// Status is the activity state of a session's store.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusError   Status = "error"
)

// State is an immutable snapshot of a Store.
type State struct {
	Identity      *domain.Identity
	Credentials   domain.Credentials
	Status        Status
	Err           error
	LastRenewalAt time.Time
	// Renewals increases by one on every successful login or refresh.
	Renewals uint64
}

// Authenticated reports whether an identity is present.
func (s State) Authenticated() bool { return s.Identity != nil }

func (s State) clone() State {
	s.Identity = s.Identity.Clone()
	return s
}

// Observer is notified synchronously, in update order, with the state after each update.
// Observers may read the store but must not call Update: that would deadlock.
type Observer func(State)

type subscription struct {
	id uint64
	fn Observer
}

// Store holds one session's identity and credential pair. Every Update is applied as a
// whole: no observer or reader ever sees a partially applied change.
type Store struct {
	mu        sync.RWMutex
	state     State
	observers []subscription
	nextID    uint64

	// notifyMu serializes update+notify so observers see states in order.
	notifyMu sync.Mutex
}

// NewStore returns an unauthenticated, idle store.
func NewStore() *Store {
	return &Store{state: State{Status: StatusIdle}}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Update applies fn to a copy of the current state, publishes it atomically and
// notifies observers before returning.
func (s *Store) Update(fn func(*State)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next := s.state.clone()
	fn(&next)
	s.state = next
	observers := make([]subscription, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.fn(next.clone())
	}
}

// Subscribe registers fn and immediately delivers the current state to it.
// The returned function removes the subscription and is safe to call more than once.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, subscription{id: id, fn: fn})
	current := s.state.clone()
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}
