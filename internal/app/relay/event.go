/*
Package relay contains the connection, presence, and message-relay core.

This file defines the wire protocol: the envelope frame exchanged over a
session's websocket and the payload structures for every event type.
*/
package relay

import (
	"encoding/json"
	"time"
)

// EventType names a protocol event. Inbound and outbound frames share the
// same envelope shape.
type EventType string

const (
	// Inbound control events.
	EventJoin   EventType = "join"
	EventLeave  EventType = "leave"
	EventOnline EventType = "online"

	// Ephemeral room events, relayed but never persisted.
	EventTypingStarted EventType = "typing-started"
	EventTypingStopped EventType = "typing-stopped"

	// Message flow.
	EventMessage      EventType = "message"
	EventAck          EventType = "ack"
	EventMessageSaved EventType = "message-saved"

	// Edits and reactions, relayed with best-effort persistence.
	EventMessageEdited   EventType = "message-edited"
	EventMessageDeleted  EventType = "message-deleted"
	EventReactionAdded   EventType = "reaction-added"
	EventReactionRemoved EventType = "reaction-removed"

	// Server-originated events.
	EventPresenceChanged EventType = "presence-changed"
	EventUserJoined      EventType = "user-joined"
	EventUserLeft        EventType = "user-left"
	EventWelcome         EventType = "welcome"
	EventError           EventType = "error"
)

// Message kind tags carried in the payload "type" field.
const (
	MessageKindText   = "text"
	MessageKindSystem = "system"
)

// Envelope is the frame exchanged over a session's transport connection.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeEvent marshals an outbound event frame.
func EncodeEvent(eventType EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}

// RoomPayload carries a bare room reference (join, leave).
type RoomPayload struct {
	Room string `json:"roomId"`
}

// TypingPayload carries a typing indicator.
type TypingPayload struct {
	Room        string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

// MessagePayload is the message event body, inbound and outbound alike.
// CorrelationID is caller-supplied, used only for reconciliation, never stored.
type MessagePayload struct {
	CorrelationID string `json:"correlationId,omitempty"`
	Room          string `json:"roomId"`
	SenderID      string `json:"senderId"`
	SenderName    string `json:"senderName,omitempty"`
	Content       string `json:"content"`
	Kind          string `json:"type"`
	ReplyTo       *int64 `json:"replyTo,omitempty"`
}

// AckPayload confirms to the sender that its message was broadcast.
type AckPayload struct {
	CorrelationID string `json:"correlationId"`
	Delivered     int    `json:"delivered"`
}

// MessageSavedPayload reconciles a broadcast message with its server-assigned
// identity once persistence completes.
type MessageSavedPayload struct {
	CorrelationID string    `json:"correlationId,omitempty"`
	ID            int64     `json:"id"`
	Room          string    `json:"roomId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// MessageEditedPayload carries an in-place content edit.
type MessageEditedPayload struct {
	MessageID int64  `json:"messageId"`
	Room      string `json:"roomId"`
	Content   string `json:"content"`
}

// MessageDeletedPayload carries a message removal.
type MessageDeletedPayload struct {
	MessageID int64  `json:"messageId"`
	Room      string `json:"roomId"`
}

// ReactionPayload carries a reaction add or remove.
type ReactionPayload struct {
	MessageID int64  `json:"messageId"`
	Room      string `json:"roomId"`
	UserID    string `json:"userId"`
	Emoji     string `json:"emoji"`
}

// PresencePayload announces a debounced online/offline transition.
type PresencePayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// MemberInfo describes one room member in a welcome payload.
type MemberInfo struct {
	UserID   string `json:"userId,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Online   bool   `json:"online"`
}

// WelcomePayload greets a joining session with the current room roster.
type WelcomePayload struct {
	Room    string       `json:"roomId"`
	Text    string       `json:"text"`
	Members []MemberInfo `json:"members"`
}

// UserEventPayload announces a session joining or leaving a room.
type UserEventPayload struct {
	Room     string `json:"roomId"`
	UserID   string `json:"userId,omitempty"`
	Nickname string `json:"nickname,omitempty"`
}

// ErrorPayload carries a coded error frame to the offending session only.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
