package relay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/pkg/errs"
)

// pipelineHarness joins two member sessions to one room over a fake store.
type pipelineHarness struct {
	router   *Router
	store    *fakeStore
	pipeline *Pipeline

	alice, bob *Session
}

func newPipelineHarness(t *testing.T) *pipelineHarness {
	t.Helper()

	h := &pipelineHarness{
		router: NewRouter(),
		store:  newFakeStore(),
	}
	h.pipeline = NewPipeline(h.router, h.store)

	h.alice = NewSession("alice", "Alice")
	h.bob = NewSession("bob", "Bob")
	h.router.Join(h.alice, "lobby")
	h.router.Join(h.bob, "lobby")

	t.Cleanup(h.pipeline.Wait)
	return h
}

func TestPipelineRelayBroadcastsBeforePersistence(t *testing.T) {
	h := newPipelineHarness(t)

	ack, cerr := h.pipeline.Relay(InboundMessage{
		CorrelationID: "c-1",
		Room:          "lobby",
		SenderID:      "alice",
		SenderName:    "Alice",
		Content:       "hello",
	})
	require.Nil(t, cerr)
	assert.Equal(t, "c-1", ack.CorrelationID)
	assert.Equal(t, 2, ack.Delivered)

	// Sender and peer both receive the message frame.
	for _, s := range []*Session{h.alice, h.bob} {
		env := recvFrame(t, s)
		require.Equal(t, EventMessage, env.Type)

		var p MessagePayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, "c-1", p.CorrelationID)
		assert.Equal(t, "hello", p.Content)
		assert.Equal(t, MessageKindText, p.Kind)
	}

	// Reconciliation follows once persistence completes.
	for _, s := range []*Session{h.alice, h.bob} {
		env := drainUntil(t, s, EventMessageSaved)

		var p MessageSavedPayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		assert.Equal(t, "c-1", p.CorrelationID)
		assert.Greater(t, p.ID, int64(0))
		assert.False(t, p.CreatedAt.IsZero())
	}

	h.pipeline.Wait()
	assert.Equal(t, 1, h.store.insertCount())
	assert.Equal(t, h.store.rooms["lobby"], h.store.nextID)
}

func TestPipelineInvalidMessageHasNoSideEffects(t *testing.T) {
	h := newPipelineHarness(t)

	for _, msg := range []InboundMessage{
		{Room: "", SenderID: "alice", Content: "x"},
		{Room: "lobby", SenderID: "", Content: "x"},
		{Room: "lobby", SenderID: "alice", Content: ""},
	} {
		_, cerr := h.pipeline.Relay(msg)
		require.NotNil(t, cerr)
		assert.Equal(t, errs.ErrInvalidMessage, cerr.Code)
	}

	h.pipeline.Wait()
	noFrame(t, h.alice)
	noFrame(t, h.bob)
	assert.Equal(t, 0, h.store.insertCount())
}

func TestPipelineStoreFailureDoesNotRetractBroadcast(t *testing.T) {
	h := newPipelineHarness(t)
	h.store.failInsert = true

	ack, cerr := h.pipeline.Relay(InboundMessage{
		CorrelationID: "c-2",
		Room:          "lobby",
		SenderID:      "alice",
		Content:       "doomed",
	})
	require.Nil(t, cerr)
	assert.Equal(t, 2, ack.Delivered)

	// The broadcast already happened.
	env := recvFrame(t, h.bob)
	assert.Equal(t, EventMessage, env.Type)

	// No message-saved frame ever arrives, and nothing persists.
	<-h.store.inserts
	h.pipeline.Wait()
	noFrame(t, h.bob)
	assert.Equal(t, 0, h.store.insertCount())
}

func TestPipelineRelayPreservesReplyTo(t *testing.T) {
	h := newPipelineHarness(t)

	parent := int64(42)
	_, cerr := h.pipeline.Relay(InboundMessage{
		Room:     "lobby",
		SenderID: "alice",
		Content:  "threaded",
		ReplyTo:  &parent,
	})
	require.Nil(t, cerr)

	env := recvFrame(t, h.bob)
	var p MessagePayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	require.NotNil(t, p.ReplyTo)
	assert.Equal(t, parent, *p.ReplyTo)
}

func TestPipelineRelayEdit(t *testing.T) {
	h := newPipelineHarness(t)

	require.Nil(t, h.pipeline.RelayEdit(MessageEditedPayload{
		MessageID: 7, Room: "lobby", Content: "revised",
	}))

	env := recvFrame(t, h.bob)
	require.Equal(t, EventMessageEdited, env.Type)

	h.pipeline.Wait()
	assert.Equal(t, []int64{7}, h.store.edited)

	cerr := h.pipeline.RelayEdit(MessageEditedPayload{Room: "lobby"})
	require.NotNil(t, cerr)
	assert.Equal(t, errs.ErrInvalidMessage, cerr.Code)
}

func TestPipelineRelayDelete(t *testing.T) {
	h := newPipelineHarness(t)

	require.Nil(t, h.pipeline.RelayDelete(MessageDeletedPayload{MessageID: 9, Room: "lobby"}))

	env := recvFrame(t, h.alice)
	require.Equal(t, EventMessageDeleted, env.Type)

	h.pipeline.Wait()
	assert.Equal(t, []int64{9}, h.store.deleted)
}

func TestPipelineRelayReaction(t *testing.T) {
	h := newPipelineHarness(t)

	reaction := ReactionPayload{MessageID: 3, Room: "lobby", UserID: "bob", Emoji: "+1"}

	require.Nil(t, h.pipeline.RelayReaction(reaction, true))
	env := recvFrame(t, h.alice)
	assert.Equal(t, EventReactionAdded, env.Type)

	require.Nil(t, h.pipeline.RelayReaction(reaction, false))
	env = drainUntil(t, h.alice, EventReactionRemoved)

	var p ReactionPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "+1", p.Emoji)

	h.pipeline.Wait()
	assert.Equal(t, 0, h.store.reactions["bob/+1"])
}
