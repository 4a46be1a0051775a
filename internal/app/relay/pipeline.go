/*
Package relay contains the connection, presence, and message-relay core.

This file defines the Pipeline, which turns one inbound message or event into
an immediate room broadcast plus a durable record, and reconciles the two
through the caller-supplied correlation id.
*/
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/app/store"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
)

// persistTimeout bounds each asynchronous durable-store call.
const persistTimeout = 10 * time.Second

// InboundMessage is a validated-or-rejected message entering the pipeline.
// CorrelationID is caller-supplied and used only so the sending client can
// match its optimistic bubble against the authoritative copy.
type InboundMessage struct {
	CorrelationID string
	Room          string
	SenderID      string
	SenderName    string
	Content       string
	Kind          string
	ReplyTo       *int64
}

// Ack confirms to the caller that the broadcast has been issued. It resolves
// before any persistence outcome is known.
type Ack struct {
	CorrelationID string
	Delivered     int
}

// Pipeline relays messages and message-referencing events: broadcast first
// for latency, persist asynchronously, reconcile via a message-saved event.
// Persistence failure never retracts an already-issued broadcast.
type Pipeline struct {
	router *Router
	store  store.Store

	// wg tracks in-flight persistence work so shutdown can drain it.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewPipeline constructs a Pipeline over the given router and store.
func NewPipeline(router *Router, st store.Store) *Pipeline {
	return &Pipeline{
		router: router,
		store:  st,
		logger: logx.Logger().With().Str("component", "Pipeline").Logger(),
	}
}

// Relay validates the message, broadcasts it to the room (sender included),
// and schedules persistence. The returned Ack resolves once the broadcast
// has been issued; the server-assigned identity follows later in a
// message-saved event keyed by the correlation id.
//
// An invalid message produces zero side effects.
func (p *Pipeline) Relay(msg InboundMessage) (Ack, *errs.CustomError) {
	if msg.Room == "" || msg.SenderID == "" || msg.Content == "" {
		return Ack{}, errs.NewError(errs.ErrInvalidMessage)
	}
	if msg.Kind == "" {
		msg.Kind = MessageKindText
	}

	payload := MessagePayload{
		CorrelationID: msg.CorrelationID,
		Room:          msg.Room,
		SenderID:      msg.SenderID,
		SenderName:    msg.SenderName,
		Content:       msg.Content,
		Kind:          msg.Kind,
		ReplyTo:       msg.ReplyTo,
	}

	delivered := p.router.Broadcast(msg.Room, EventMessage, payload, nil)

	p.wg.Add(1)
	go p.persist(msg)

	return Ack{CorrelationID: msg.CorrelationID, Delivered: delivered}, nil
}

// persist writes the message through the durable store and, on success,
// moves the room pointer and emits the reconciliation event. On failure the
// already-broadcast message stands for connected members; it will be absent
// from history reads.
func (p *Pipeline) persist(msg InboundMessage) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	id, createdAt, err := p.store.InsertMessage(ctx, store.NewMessage{
		Room:       msg.Room,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		Kind:       msg.Kind,
		ReplyTo:    msg.ReplyTo,
	})
	if err != nil {
		p.logger.Error().Err(err).
			Str("room", msg.Room).
			Str("sender_id", msg.SenderID).
			Str("correlation_id", msg.CorrelationID).
			Msg("Message persistence failed. Broadcast stands, message absent from history.")
		return
	}

	if err := p.store.UpdateRoomLastMessage(ctx, msg.Room, id); err != nil {
		p.logger.Warn().Err(err).
			Str("room", msg.Room).
			Int64("message_id", id).
			Msg("Failed to update room last-message pointer.")
	}

	p.router.Broadcast(msg.Room, EventMessageSaved, MessageSavedPayload{
		CorrelationID: msg.CorrelationID,
		ID:            id,
		Room:          msg.Room,
		CreatedAt:     createdAt,
	}, nil)
}

// RelayEdit broadcasts an in-place edit and forwards it to the store
// best-effort. Referential validity of the message id is the store's concern.
func (p *Pipeline) RelayEdit(edit MessageEditedPayload) *errs.CustomError {
	if edit.Room == "" || edit.MessageID == 0 {
		return errs.NewError(errs.ErrInvalidMessage)
	}

	p.router.Broadcast(edit.Room, EventMessageEdited, edit, nil)

	p.forget("edit_message", func(ctx context.Context) error {
		return p.store.EditMessage(ctx, edit.MessageID, edit.Content)
	})

	return nil
}

// RelayDelete broadcasts a message removal and forwards it to the store
// best-effort.
func (p *Pipeline) RelayDelete(del MessageDeletedPayload) *errs.CustomError {
	if del.Room == "" || del.MessageID == 0 {
		return errs.NewError(errs.ErrInvalidMessage)
	}

	p.router.Broadcast(del.Room, EventMessageDeleted, del, nil)

	p.forget("delete_message", func(ctx context.Context) error {
		return p.store.DeleteMessage(ctx, del.MessageID)
	})

	return nil
}

// RelayReaction broadcasts a reaction add or remove and forwards it to the
// store best-effort.
func (p *Pipeline) RelayReaction(reaction ReactionPayload, added bool) *errs.CustomError {
	if reaction.Room == "" || reaction.MessageID == 0 {
		return errs.NewError(errs.ErrInvalidMessage)
	}

	eventType := EventReactionAdded
	if !added {
		eventType = EventReactionRemoved
	}

	p.router.Broadcast(reaction.Room, eventType, reaction, nil)

	p.forget("reaction", func(ctx context.Context) error {
		if added {
			return p.store.AddReaction(ctx, reaction.MessageID, reaction.UserID, reaction.Emoji)
		}
		return p.store.RemoveReaction(ctx, reaction.MessageID, reaction.UserID, reaction.Emoji)
	})

	return nil
}

// forget runs a fire-and-forget store call. Failures are logged only; the
// primary value of these events is live-session synchronization.
func (p *Pipeline) forget(op string, fn func(ctx context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			p.logger.Warn().Err(err).Str("op", op).Msg("Best-effort persistence failed.")
		}
	}()
}

// Wait blocks until all in-flight persistence work has drained.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
