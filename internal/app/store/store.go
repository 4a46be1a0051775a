/*
Package store provides durable persistence for messages, room pointers,
reactions, and presence rows.

The relay core consumes this package through the Store interface and treats
every operation as asynchronous and fallible: a store error never blocks or
rolls back an in-memory relay operation.
*/
package store

import (
	"context"
	"time"
)

// NewMessage carries the fields of a message about to be persisted.
// Server identity (id, created_at) is assigned by the database on insert.
type NewMessage struct {
	Room       string
	SenderID   string
	SenderName string
	Content    string
	Kind       string
	ReplyTo    *int64
}

// Message is a persisted message as read back from the store.
type Message struct {
	ID         int64     `json:"id"`
	Room       string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Content    string    `json:"content"`
	Kind       string    `json:"type"`
	ReplyTo    *int64    `json:"replyTo,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store is the narrow persistence interface the relay core depends on.
// Implementations assign message ids that are unique and creation-ordered
// within a room.
type Store interface {
	// InsertMessage persists a message and returns its server-assigned
	// identity: id and creation timestamp.
	InsertMessage(ctx context.Context, m NewMessage) (int64, time.Time, error)

	// UpdateRoomLastMessage moves the room's last-message pointer.
	UpdateRoomLastMessage(ctx context.Context, room string, messageID int64) error

	// UpsertPresence records a user's debounced online/offline state.
	UpsertPresence(ctx context.Context, userID string, online bool) error

	// EditMessage replaces the content of an existing message.
	EditMessage(ctx context.Context, messageID int64, content string) error

	// DeleteMessage soft-deletes a message, removing it from history reads.
	DeleteMessage(ctx context.Context, messageID int64) error

	// AddReaction records a reaction; repeated adds are not an error.
	AddReaction(ctx context.Context, messageID int64, userID, emoji string) error

	// RemoveReaction removes a reaction; removing a missing one is not an error.
	RemoveReaction(ctx context.Context, messageID int64, userID, emoji string) error

	// RecentMessages returns up to limit non-deleted messages of a room,
	// newest first.
	RecentMessages(ctx context.Context, room string, limit int) ([]Message, error)
}
