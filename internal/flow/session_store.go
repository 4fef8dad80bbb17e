package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/HealthMate/internal/models"
)

// userLock serializes work for one user. refs counts holders and waiters so
// the entry can be dropped once nobody needs it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// SessionStore is the process-wide map from user ID to interview session.
// Reads return copies; per-user work is serialized with WithUser.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	locks    map[string]*userLock
	now      func() time.Time
}

// SessionStoreOption configures a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithClock overrides the time source used for timestamps and idle sweeps.
func WithClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) { s.now = now }
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore(opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		sessions: make(map[string]models.Session),
		locks:    make(map[string]*userLock),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	slog.Debug("SessionStore created")
	return s
}

// WithUser runs fn while holding userID's lock. Different users never block each other.
func (s *SessionStore) WithUser(userID string, fn func() error) error {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}()
	return fn()
}

// Start replaces any existing session for userID with a fresh one.
func (s *SessionStore) Start(userID string) models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.sessions[userID]
	sess := models.NewSession(userID, s.now())
	s.sessions[userID] = sess
	slog.Debug("SessionStore.Start", "userID", userID, "replaced", existed)
	return sess.Clone()
}

// Get returns a copy of the stored session.
func (s *SessionStore) Get(userID string) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return models.Session{}, false
	}
	return sess.Clone(), true
}

// Put stores a copy of sess and stamps its update time.
func (s *SessionStore) Put(sess models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.UpdatedAt = s.now()
	s.sessions[sess.UserID] = sess.Clone()
}

// Delete removes the session for userID and reports whether one existed.
func (s *SessionStore) Delete(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[userID]
	delete(s.sessions, userID)
	return ok
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SweepIdle removes unfinished sessions not updated within ttl. Completed
// sessions are kept because reminders read them, and users with a transition
// in flight are skipped. It returns the number of sessions removed.
func (s *SessionStore) SweepIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.IsComplete() || sess.UpdatedAt.After(cutoff) {
			continue
		}
		if _, busy := s.locks[id]; busy {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	if removed > 0 {
		slog.Info("SessionStore.SweepIdle: removed idle sessions", "count", removed, "ttl", ttl)
	}
	return removed
}

// Close drops every session.
func (s *SessionStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	slog.Debug("SessionStore closing", "sessions", len(s.sessions))
	s.sessions = make(map[string]models.Session)
}
