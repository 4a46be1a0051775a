/*
Package relay contains the connection, presence, and message-relay core.

This file defines the Client, the transport adapter around one websocket
connection. It manages the connection lifecycle, the read and write pumps,
and dispatch of inbound protocol events into the Hub's components.
*/
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// MaxContentBytes is the maximum allowed size (in bytes) of message content.
	MaxContentBytes = 5000
)

// Client couples one websocket connection to its Session and the Hub.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *Session
	logger  zerolog.Logger
}

// newClient constructs a Client for an accepted connection.
func newClient(hub *Hub, conn *websocket.Conn, session *Session) *Client {
	clientLogger := logx.Logger().With().
		Str("session_id", session.ID).
		Str("user_id", session.User()).
		Logger()

	return &Client{
		hub:     hub,
		conn:    conn,
		session: session,
		logger:  clientLogger,
	}
}

// Session returns the client's transport session.
func (c *Client) Session() *Session {
	return c.session
}

// ReadPump reads frames from the websocket until the connection drops,
// dispatching each into the Hub. Cleanup on exit unwinds room memberships
// and registry state in the Hub.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		c.dispatch(frame)
	}
}

// cleanupOnDisconnect runs when the read pump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.hub.disconnect(c.session)

	if err := c.conn.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Client connection close error")
	}
}

// dispatch routes one inbound frame to its handler.
func (c *Client) dispatch(frame []byte) {
	var envelope Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		c.logger.Warn().Err(err).
			Bytes("frame", frame).
			Msg("Client sent invalid JSON")
		return
	}

	switch envelope.Type {
	case EventJoin:
		var p RoomPayload
		if !c.bindPayload(envelope, &p) || p.Room == "" {
			return
		}
		c.hub.joinRoom(c.session, p.Room)

	case EventLeave:
		var p RoomPayload
		if !c.bindPayload(envelope, &p) || p.Room == "" {
			return
		}
		c.hub.leaveRoom(c.session, p.Room)

	case EventOnline:
		c.hub.heartbeat(c.session)

	case EventTypingStarted, EventTypingStopped:
		var p TypingPayload
		if !c.bindPayload(envelope, &p) || p.Room == "" {
			return
		}
		c.hub.relayTyping(c.session, envelope.Type == EventTypingStarted, p)

	case EventMessage:
		c.handleMessage(envelope)

	case EventMessageEdited:
		var p MessageEditedPayload
		if !c.bindPayload(envelope, &p) {
			return
		}
		if customErr := c.hub.pipeline.RelayEdit(p); customErr != nil {
			c.SendError(customErr)
		}

	case EventMessageDeleted:
		var p MessageDeletedPayload
		if !c.bindPayload(envelope, &p) {
			return
		}
		if customErr := c.hub.pipeline.RelayDelete(p); customErr != nil {
			c.SendError(customErr)
		}

	case EventReactionAdded, EventReactionRemoved:
		var p ReactionPayload
		if !c.bindPayload(envelope, &p) {
			return
		}
		if p.UserID == "" {
			p.UserID = c.session.User()
		}
		if customErr := c.hub.pipeline.RelayReaction(p, envelope.Type == EventReactionAdded); customErr != nil {
			c.SendError(customErr)
		}

	default:
		c.logger.Warn().Str("event_type", string(envelope.Type)).Msg("Client sent unsupported event type")
	}
}

// bindPayload unmarshals the envelope payload, logging malformed input.
func (c *Client) bindPayload(envelope Envelope, dst any) bool {
	if err := json.Unmarshal(envelope.Payload, dst); err != nil {
		c.logger.Warn().Err(err).
			Str("event_type", string(envelope.Type)).
			Msg("Client sent invalid payload")
		return false
	}
	return true
}

// handleMessage feeds an inbound message through the relay pipeline. The
// session identity is authoritative for the sender when present; anonymous
// sessions fall back to the payload's senderId.
func (c *Client) handleMessage(envelope Envelope) {
	var p MessagePayload
	if !c.bindPayload(envelope, &p) {
		return
	}

	if len(p.Content) > MaxContentBytes {
		c.SendError(errs.NewError(errs.ErrMessageContentTooLong))
		return
	}

	senderID := c.session.User()
	if senderID == "" {
		senderID = p.SenderID
	}
	senderName := c.session.Nickname
	if senderName == "" {
		senderName = p.SenderName
	}

	msg := InboundMessage{
		CorrelationID: p.CorrelationID,
		Room:          p.Room,
		SenderID:      senderID,
		SenderName:    senderName,
		Content:       p.Content,
		Kind:          p.Kind,
		ReplyTo:       p.ReplyTo,
	}

	ack, customErr := c.hub.pipeline.Relay(msg)
	if customErr != nil {
		c.SendError(customErr)
		return
	}

	c.sendAck(ack)
	c.hub.maybeBotReply(msg)
}

// sendAck confirms the broadcast to the sender, keyed by its correlation id.
// Callers that supplied no correlation id get no ack.
func (c *Client) sendAck(ack Ack) {
	if ack.CorrelationID == "" {
		return
	}

	frame, err := EncodeEvent(EventAck, AckPayload{
		CorrelationID: ack.CorrelationID,
		Delivered:     ack.Delivered,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to build ack event")
		return
	}

	if !c.session.Deliver(frame) {
		c.logger.Warn().Msg("Failed to queue ack event")
	}
}

// SendError delivers a coded error frame to this session only.
func (c *Client) SendError(err error) {
	var code int
	var message string

	var customErr *errs.CustomError
	if errors.As(err, &customErr) {
		code = customErr.Code
		message = customErr.Message
	} else {
		code = errs.ErrUnknown
		message = fmt.Sprintf("Internal server error: %v", err)
	}

	frame, buildErr := EncodeEvent(EventError, ErrorPayload{
		Code:    code,
		Message: message,
	})
	if buildErr != nil {
		c.logger.Error().Err(buildErr).Msg("Failed to build error event")
		return
	}

	if !c.session.Deliver(frame) {
		c.logger.Warn().Msg("Failed to queue error event")
	}
}

// WritePump writes queued frames to the websocket and keeps the connection
// alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.session.Outbound():
			if !c.writeQueuedFrame(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedFrame writes one frame pulled from the session queue.
// Returns false if the WritePump loop should terminate.
func (c *Client) writeQueuedFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Error().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

// writePingMessage sends a periodic websocket Ping to maintain the heartbeat.
// Returns false if the WritePump loop should terminate.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
