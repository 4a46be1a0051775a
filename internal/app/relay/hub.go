/*
Package relay contains the connection, presence, and message-relay core.

This file defines the Hub, the central coordinator: it owns the full
connection set, wires the registry, presence debouncer, router, and pipeline
together, and handles connect/disconnect bookkeeping and presence fan-out.
*/
package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrelay/internal/app/ai"
	"chatrelay/internal/app/store"
	"chatrelay/internal/configs"
	"chatrelay/internal/pkg/logx"
)

// generateTimeout bounds one reply-generation call, independent of the
// responder's own transport timeout.
const generateTimeout = 45 * time.Second

// Hub coordinates all live connections of the relay process.
type Hub struct {
	mu sync.RWMutex

	// sessions holds every live session, identified or anonymous, with its
	// transport client. Presence fan-out iterates this set.
	sessions map[*Session]*Client

	registry *Registry
	presence *Debouncer
	router   *Router
	pipeline *Pipeline

	responder ai.Responder

	config *configs.AppConfig

	// wg tracks in-flight reply generation.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewHub constructs and wires a Hub over the given collaborators.
// responder may be nil to disable assistant replies.
func NewHub(cfg *configs.AppConfig, st store.Store, responder ai.Responder) *Hub {
	h := &Hub{
		sessions:  make(map[*Session]*Client),
		responder: responder,
		config:    cfg,
		logger:    logx.Logger().With().Str("component", "Hub").Logger(),
	}

	h.registry = NewRegistry()
	h.router = NewRouter()
	h.pipeline = NewPipeline(h.router, st)
	h.presence = NewDebouncer(cfg.PresenceGrace, h.registry.Count, st, h.fanoutPresence)
	h.registry.SetListener(h.presence)

	return h
}

// Registry exposes the session registry for handlers and tests.
func (h *Hub) Registry() *Registry { return h.registry }

// Presence exposes the debouncer for handlers and tests.
func (h *Hub) Presence() *Debouncer { return h.presence }

// Router exposes the room router.
func (h *Hub) Router() *Router { return h.router }

// Pipeline exposes the message relay pipeline.
func (h *Hub) Pipeline() *Pipeline { return h.pipeline }

// Connect accepts an upgraded websocket connection under the given identity
// (userID may be empty for anonymous sessions) and returns the client whose
// pumps the caller must start.
func (h *Hub) Connect(conn *websocket.Conn, userID, nickname string) *Client {
	session := NewSession(userID, nickname)
	client := newClient(h, conn, session)

	h.attach(session, client)

	if userID != "" {
		if customErr := h.registry.Register(userID, session); customErr != nil {
			h.logger.Warn().
				Str("session_id", session.ID).
				Str("user_id", userID).
				Msg("Identity rejected at connect, continuing as anonymous.")
			session.setUser("")
		}
	}

	h.logger.Info().
		Str("session_id", session.ID).
		Str("user_id", session.User()).
		Msg("Session connected.")

	return client
}

// attach adds a session to the connection set.
func (h *Hub) attach(s *Session, c *Client) {
	h.mu.Lock()
	h.sessions[s] = c
	h.mu.Unlock()
}

// detach removes a session from the connection set.
func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

// disconnect tears down a session in reverse order of construction: room
// memberships first, then the registry (which may start a presence grace
// window), then the transport queue.
func (h *Hub) disconnect(s *Session) {
	h.detach(s)

	left := h.router.LeaveAll(s)
	for _, room := range left {
		h.router.Broadcast(room, EventUserLeft, UserEventPayload{
			Room:     room,
			UserID:   s.User(),
			Nickname: s.Nickname,
		}, s)
	}

	h.registry.Unregister(s)
	s.Close()

	h.logger.Info().
		Str("session_id", s.ID).
		Str("user_id", s.User()).
		Int("rooms_left", len(left)).
		Msg("Session disconnected.")
}

// joinRoom adds the session to a room, greets the joiner with the current
// roster, and announces the join to the other members.
func (h *Hub) joinRoom(s *Session, room string) {
	h.router.Join(s, room)

	members := h.router.Members(room)
	online := h.presence.Snapshot()
	roster := make([]MemberInfo, 0, len(members))
	for _, m := range members {
		roster = append(roster, MemberInfo{
			UserID:   m.User(),
			Nickname: m.Nickname,
			Online:   online[m.User()],
		})
	}

	welcome, err := EncodeEvent(EventWelcome, WelcomePayload{
		Room:    room,
		Text:    fmt.Sprintf("Welcome to %s, %s!", room, s.Nickname),
		Members: roster,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("room", room).Msg("Failed to build welcome event.")
	} else {
		s.Deliver(welcome)
	}

	h.router.Broadcast(room, EventUserJoined, UserEventPayload{
		Room:     room,
		UserID:   s.User(),
		Nickname: s.Nickname,
	}, s)
}

// leaveRoom removes the session from a room and announces the departure.
func (h *Hub) leaveRoom(s *Session, room string) {
	h.router.Leave(s, room)

	h.router.Broadcast(room, EventUserLeft, UserEventPayload{
		Room:     room,
		UserID:   s.User(),
		Nickname: s.Nickname,
	}, s)
}

// heartbeat refreshes the owning user's presence. Anonymous sessions are
// excluded from presence tracking.
func (h *Hub) heartbeat(s *Session) {
	if userID := s.User(); userID != "" {
		h.presence.Heartbeat(userID)
	}
}

// relayTyping broadcasts a typing indicator to the room, sender excluded.
// Typing signals are never persisted.
func (h *Hub) relayTyping(s *Session, started bool, payload TypingPayload) {
	eventType := EventTypingStopped
	if started {
		eventType = EventTypingStarted
	}

	h.router.Broadcast(payload.Room, eventType, payload, s)
}

// fanoutPresence delivers a presence-changed event to every connection
// except the subject user's own sessions. Runs synchronously from the
// debouncer so per-user transition order is preserved on every queue.
func (h *Hub) fanoutPresence(userID string, online bool) {
	frame, err := EncodeEvent(EventPresenceChanged, PresencePayload{
		UserID:   userID,
		IsOnline: online,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to build presence event.")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.sessions {
		if s.User() == userID {
			continue
		}
		s.Deliver(frame)
	}
}

// maybeBotReply invokes the reply collaborator when a user message mentions
// the configured bot. Generation starts only after the user's own message
// has completed its relay; the reply re-enters the same pipeline as an
// independent message under the synthetic bot identity. Generation failure
// degrades to the fixed fallback text.
func (h *Hub) maybeBotReply(msg InboundMessage) {
	if h.responder == nil {
		return
	}
	if msg.SenderID == h.config.BotName {
		return
	}
	if !strings.Contains(strings.ToLower(msg.Content), strings.ToLower(h.config.BotMention)) {
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
		defer cancel()

		reply, err := h.responder.GenerateReply(ctx, msg.Content)
		if err != nil {
			h.logger.Warn().Err(err).
				Str("room", msg.Room).
				Msg("Reply generation failed, using fallback text.")
			reply = ai.FallbackReply
		}

		if _, customErr := h.pipeline.Relay(InboundMessage{
			Room:       msg.Room,
			SenderID:   h.config.BotName,
			SenderName: h.config.BotName,
			Content:    reply,
			Kind:       MessageKindText,
		}); customErr != nil {
			h.logger.Error().
				Str("room", msg.Room).
				Int("code", customErr.Code).
				Msg("Failed to relay generated reply.")
		}
	}()
}

// Shutdown closes every live session and drains asynchronous work.
func (h *Hub) Shutdown() {
	h.logger.Info().Msg("Shutting down Hub...")

	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[*Session]*Client)
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}

	h.wg.Wait()
	h.pipeline.Wait()
	h.presence.Shutdown()

	h.logger.Info().Msg("Hub shutdown complete.")
}
