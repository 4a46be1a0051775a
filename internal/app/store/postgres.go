package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store on top of a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an initialized pool (see NewPool) in a Store implementation.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) InsertMessage(ctx context.Context, m NewMessage) (int64, time.Time, error) {
	query := `
		INSERT INTO messages (room_id, sender_id, sender_name, content, kind, reply_to)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	var id int64
	var createdAt time.Time
	err := p.pool.QueryRow(ctx, query, m.Room, m.SenderID, m.SenderName, m.Content, m.Kind, m.ReplyTo).
		Scan(&id, &createdAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to insert message: %w", err)
	}

	return id, createdAt, nil
}

func (p *Postgres) UpdateRoomLastMessage(ctx context.Context, room string, messageID int64) error {
	query := `
		INSERT INTO rooms (id, last_message_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET last_message_id = EXCLUDED.last_message_id, updated_at = now()`

	if _, err := p.pool.Exec(ctx, query, room, messageID); err != nil {
		return fmt.Errorf("failed to update room last message: %w", err)
	}

	return nil
}

func (p *Postgres) UpsertPresence(ctx context.Context, userID string, online bool) error {
	query := `
		INSERT INTO presence (user_id, online, last_seen)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET online = EXCLUDED.online, last_seen = now()`

	if _, err := p.pool.Exec(ctx, query, userID, online); err != nil {
		return fmt.Errorf("failed to upsert presence: %w", err)
	}

	return nil
}

func (p *Postgres) EditMessage(ctx context.Context, messageID int64, content string) error {
	query := `UPDATE messages SET content = $2 WHERE id = $1 AND NOT deleted`

	if _, err := p.pool.Exec(ctx, query, messageID, content); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}

	return nil
}

func (p *Postgres) DeleteMessage(ctx context.Context, messageID int64) error {
	query := `UPDATE messages SET deleted = TRUE, content = '' WHERE id = $1`

	if _, err := p.pool.Exec(ctx, query, messageID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}

func (p *Postgres) AddReaction(ctx context.Context, messageID int64, userID, emoji string) error {
	query := `
		INSERT INTO reactions (message_id, user_id, emoji)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING`

	if _, err := p.pool.Exec(ctx, query, messageID, userID, emoji); err != nil {
		return fmt.Errorf("failed to add reaction: %w", err)
	}

	return nil
}

func (p *Postgres) RemoveReaction(ctx context.Context, messageID int64, userID, emoji string) error {
	query := `DELETE FROM reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`

	if _, err := p.pool.Exec(ctx, query, messageID, userID, emoji); err != nil {
		return fmt.Errorf("failed to remove reaction: %w", err)
	}

	return nil
}

func (p *Postgres) RecentMessages(ctx context.Context, room string, limit int) ([]Message, error) {
	query := `
		SELECT id, room_id, sender_id, sender_name, content, kind, reply_to, created_at
		FROM messages
		WHERE room_id = $1 AND NOT deleted
		ORDER BY id DESC
		LIMIT $2`

	rows, err := p.pool.Query(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Room, &m.SenderID, &m.SenderName, &m.Content, &m.Kind, &m.ReplyTo, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return messages, nil
}
