package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/RobotChat/internal/models"
)

// TransactFunc receives a private copy of the stored session, or nil when none exists.
// Returning a session stores it, returning nil deletes the entry. On error nothing changes.
type TransactFunc func(sess *models.WizardSession) (*models.WizardSession, error)

// SessionStore holds wizard sessions and serializes transitions per session id.
type SessionStore interface {
	Transact(ctx context.Context, id string, fn TransactFunc) error
}

// sessionEntry is the per-id slot. refs counts the holder plus every waiter,
// so an entry with refs > 0 is never removed from the map.
type sessionEntry struct {
	mu      chan struct{} // 1-buffered; holding the token is holding the lock
	refs    int
	session *models.WizardSession
}

// MemorySessionStore keeps sessions in process memory. Only one process may own it,
// see the lockfile package.
type MemorySessionStore struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{entries: make(map[string]*sessionEntry)}
}

// acquire registers interest in id and waits for its lock.
func (s *MemorySessionStore) acquire(ctx context.Context, id string) (*sessionEntry, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		e = &sessionEntry{mu: make(chan struct{}, 1)}
		s.entries[id] = e
	}
	e.refs++
	s.mu.Unlock()

	select {
	case e.mu <- struct{}{}:
		return e, nil
	case <-ctx.Done():
		s.release(id, e, false)
		return nil, ctx.Err()
	}
}

// release drops interest in id, unlocking it when held, and removes the
// entry once nobody references it and it holds no session.
func (s *MemorySessionStore) release(id string, e *sessionEntry, held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held {
		<-e.mu
	}
	e.refs--
	if e.refs == 0 && e.session == nil {
		delete(s.entries, id)
	}
}

// Transact runs fn with exclusive access to the session stored under id.
// Transactions on different ids run concurrently.
func (s *MemorySessionStore) Transact(ctx context.Context, id string, fn TransactFunc) error {
	e, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer s.release(id, e, true)

	next, err := fn(e.session.Clone())
	if err != nil {
		return err
	}
	// e.session is guarded by the per-entry lock; Sweep only reads it with refs == 0.
	s.mu.Lock()
	e.session = next
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the session stored under id.
func (s *MemorySessionStore) Get(id string) (*models.WizardSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.session == nil {
		return nil, false
	}
	return e.session.Clone(), true
}

// Len returns the number of stored sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.session != nil {
			n++
		}
	}
	return n
}

// Sweep deletes sessions idle longer than maxIdle at now. Sessions that are being
// transitioned, or have a transition waiting, are skipped. It returns the number removed.
func (s *MemorySessionStore) Sweep(now time.Time, maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if e.refs > 0 || e.session == nil {
			continue
		}
		if e.session.IdleSince(now) > maxIdle {
			delete(s.entries, id)
			removed++
			slog.Debug("MemorySessionStore.Sweep: expired session", "sessionID", id, "created", e.session.CreatedAt, "updated", e.session.UpdatedAt)
		}
	}
	return removed
}
