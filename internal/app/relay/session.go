/*
Package relay contains the connection, presence, and message-relay core.

This file defines the Session, one live transport connection, and the Registry
that maps logical user identities to their live session sets.
*/
package relay

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
	"chatrelay/internal/pkg/randx"
)

// sessionSendBuffer is the capacity of a session's outbound frame queue.
const sessionSendBuffer = 256

// maxIdentityLength bounds accepted user identity strings.
const maxIdentityLength = 128

// Session represents one live transport connection, independent of user
// identity. Anonymous sessions (no owning user) are permitted; they are
// excluded from presence tracking.
type Session struct {
	// ID uniquely identifies this connection for its lifetime.
	ID string

	// Nickname is the display name attached at connect time.
	Nickname string

	// CreatedAt records when the transport connection was accepted.
	CreatedAt time.Time

	mu     sync.Mutex
	userID string
	closed bool
	send   chan []byte
}

// NewSession creates a session for a freshly accepted connection.
// userID may be empty for anonymous sessions.
func NewSession(userID, nickname string) *Session {
	return &Session{
		ID:        randx.SessionID(),
		Nickname:  nickname,
		CreatedAt: time.Now(),
		userID:    userID,
		send:      make(chan []byte, sessionSendBuffer),
	}
}

// User returns the owning user identity, or "" for anonymous sessions.
func (s *Session) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// setUser is called by the Registry, which owns the session-to-user mapping.
func (s *Session) setUser(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

// Anonymous reports whether the session has no owning user identity.
func (s *Session) Anonymous() bool {
	return s.User() == ""
}

// Deliver enqueues a frame for the session's write pump without blocking.
// It returns false if the session is closed or its queue is full; callers
// treat that as a vanished broadcast target, not an error.
func (s *Session) Deliver(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Outbound exposes the frame queue consumed by the write pump.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// Close marks the session closed and releases its write pump. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.mu.Unlock()
}

// SessionListener receives session lifecycle notifications from the Registry.
type SessionListener interface {
	SessionAdded(userID string)
	SessionRemoved(userID string)
}

// Registry owns the mapping from logical user identities to live session
// sets. Each session belongs to at most one user at a time; the Registry is
// the only component that mutates this mapping.
type Registry struct {
	mu sync.RWMutex

	// users maps a user identity to its live sessions, keyed by session id.
	// The reverse direction lives on the Session itself (setUser/User).
	users map[string]map[string]*Session

	listener SessionListener

	logger zerolog.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[string]map[string]*Session),
		logger: logx.Logger().With().Str("component", "Registry").Logger(),
	}
}

// SetListener wires the presence listener. Must be called before sessions flow.
func (r *Registry) SetListener(l SessionListener) {
	r.listener = l
}

// validIdentity rejects empty or malformed user identities.
func validIdentity(userID string) bool {
	if userID == "" || len(userID) > maxIdentityLength {
		return false
	}
	for _, c := range userID {
		if c <= ' ' || c == 0x7f {
			return false
		}
	}
	return true
}

// Register adds the session to the user's session set and notifies the
// presence listener. Re-registering a session under a different identity
// first implicitly unregisters it from the prior one.
func (r *Registry) Register(userID string, s *Session) *errs.CustomError {
	if !validIdentity(userID) {
		return errs.NewError(errs.ErrInvalidIdentity)
	}

	var displaced string

	r.mu.Lock()
	if prev := s.User(); prev != "" && prev != userID {
		if r.removeLocked(prev, s) {
			displaced = prev
		}
	}

	if r.users[userID] == nil {
		r.users[userID] = make(map[string]*Session)
	}
	r.users[userID][s.ID] = s
	s.setUser(userID)
	r.mu.Unlock()

	r.logger.Debug().Str("user_id", userID).Str("session_id", s.ID).Msg("Session registered")

	// Listener calls happen outside the registry lock; the debouncer
	// re-validates session counts at decision time.
	if r.listener != nil {
		if displaced != "" {
			r.listener.SessionRemoved(displaced)
		}
		r.listener.SessionAdded(userID)
	}

	return nil
}

// Unregister removes the session from whatever user set contains it.
// Unknown or already-removed sessions are a no-op: disconnect ordering is
// not guaranteed.
func (r *Registry) Unregister(s *Session) {
	userID := s.User()
	if userID == "" {
		return
	}

	r.mu.Lock()
	removed := r.removeLocked(userID, s)
	r.mu.Unlock()

	if !removed {
		return
	}

	r.logger.Debug().Str("user_id", userID).Str("session_id", s.ID).Msg("Session unregistered")

	if r.listener != nil {
		r.listener.SessionRemoved(userID)
	}
}

// removeLocked deletes the session from the given user's set.
// Caller holds r.mu.
func (r *Registry) removeLocked(userID string, s *Session) bool {
	sessions, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := sessions[s.ID]; !ok {
		return false
	}

	delete(sessions, s.ID)
	if len(sessions) == 0 {
		delete(r.users, userID)
	}
	return true
}

// SessionsOf returns a snapshot of the user's current session set. Callers
// must not assume freshness beyond the call.
func (r *Registry) SessionsOf(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.users[userID]
	if len(sessions) == 0 {
		return nil
	}

	snapshot := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// Count returns the user's live session count. The presence debouncer calls
// this at timer-fire time to re-validate pending offline transitions.
func (r *Registry) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}
