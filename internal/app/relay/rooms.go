/*
Package relay contains the connection, presence, and message-relay core.

This file defines the Router, which owns dynamic room membership and performs
targeted broadcast, independent of message content.
*/
package relay

import (
	"sync"

	"github.com/rs/zerolog"

	"chatrelay/internal/pkg/logx"
)

// Router maps room ids to member session sets, with a reverse index from
// session to rooms. Rooms exist implicitly: an entry appears on first join
// and disappears when its member set empties.
type Router struct {
	mu sync.RWMutex

	// rooms: room id → member sessions.
	rooms map[string]map[*Session]struct{}

	// sessions: session → joined room ids. Makes disconnect cleanup
	// proportional to the session's rooms.
	sessions map[*Session]map[string]struct{}

	logger zerolog.Logger
}

// NewRouter constructs an empty Router.
func NewRouter() *Router {
	return &Router{
		rooms:    make(map[string]map[*Session]struct{}),
		sessions: make(map[*Session]map[string]struct{}),
		logger:   logx.Logger().With().Str("component", "Router").Logger(),
	}
}

// Join adds the session to the room's member set. Idempotent.
func (rt *Router) Join(s *Session, room string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.rooms[room] == nil {
		rt.rooms[room] = make(map[*Session]struct{})
	}
	rt.rooms[room][s] = struct{}{}

	if rt.sessions[s] == nil {
		rt.sessions[s] = make(map[string]struct{})
	}
	rt.sessions[s][room] = struct{}{}
}

// Leave removes the session from the room's member set. Idempotent; leaving
// a room the session never joined is a no-op.
func (rt *Router) Leave(s *Session, room string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.leaveLocked(s, room)
}

// leaveLocked removes one membership. Caller holds rt.mu.
func (rt *Router) leaveLocked(s *Session, room string) {
	if members, ok := rt.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(rt.rooms, room)
		}
	}

	if rooms, ok := rt.sessions[s]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(rt.sessions, s)
		}
	}
}

// LeaveAll removes the session from every room it joined, returning the
// affected room ids. Called on disconnect.
func (rt *Router) LeaveAll(s *Session) []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rooms, ok := rt.sessions[s]
	if !ok {
		return nil
	}

	affected := make([]string, 0, len(rooms))
	for room := range rooms {
		affected = append(affected, room)
		if members, ok := rt.rooms[room]; ok {
			delete(members, s)
			if len(members) == 0 {
				delete(rt.rooms, room)
			}
		}
	}
	delete(rt.sessions, s)

	return affected
}

// Members returns a snapshot of the room's current member sessions.
func (rt *Router) Members(room string) []*Session {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	members := rt.rooms[room]
	if len(members) == 0 {
		return nil
	}

	snapshot := make([]*Session, 0, len(members))
	for s := range members {
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// Rooms returns a snapshot of the room ids the session has joined.
func (rt *Router) Rooms(s *Session) []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	rooms := rt.sessions[s]
	if len(rooms) == 0 {
		return nil
	}

	snapshot := make([]string, 0, len(rooms))
	for room := range rooms {
		snapshot = append(snapshot, room)
	}
	return snapshot
}

// Broadcast marshals the event once and delivers it to every current member
// of the room except exclude (if non-nil), exactly once per member. Delivery
// order across members is unspecified. A member whose send queue is full or
// whose session closed mid-call is skipped, not an error. Returns the number
// of sessions the frame was enqueued for.
func (rt *Router) Broadcast(room string, eventType EventType, payload any, exclude *Session) int {
	frame, err := EncodeEvent(eventType, payload)
	if err != nil {
		rt.logger.Error().Err(err).
			Str("room", room).
			Str("event", string(eventType)).
			Msg("Error marshaling event for broadcast.")
		return 0
	}

	members := rt.Members(room)

	delivered := 0
	for _, s := range members {
		if s == exclude {
			continue
		}
		if s.Deliver(frame) {
			delivered++
			continue
		}
		rt.logger.Warn().
			Str("room", room).
			Str("session_id", s.ID).
			Str("event", string(eventType)).
			Msg("Session send queue full or closed, skipping broadcast target.")
	}

	return delivered
}
