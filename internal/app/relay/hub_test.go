package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/app/ai"
	"chatrelay/internal/configs"
)

// scriptedResponder returns a fixed reply or error.
type scriptedResponder struct {
	reply string
	err   error
	calls chan string
}

func (r *scriptedResponder) GenerateReply(_ context.Context, content string) (string, error) {
	if r.calls != nil {
		r.calls <- content
	}
	return r.reply, r.err
}

func testConfig() *configs.AppConfig {
	return &configs.AppConfig{
		Environment:   "development",
		PresenceGrace: 30 * time.Millisecond,
		BotName:       "assistant",
		BotMention:    "@assistant",
	}
}

// addSession registers a session on the hub the way Connect does, minus the
// websocket transport.
func addSession(t *testing.T, h *Hub, userID, nickname string) *Session {
	t.Helper()

	s := NewSession("", nickname)
	h.attach(s, nil)
	if userID != "" {
		require.Nil(t, h.registry.Register(userID, s))
	}
	return s
}

func TestHubJoinRoomWelcomeAndAnnounce(t *testing.T) {
	h := NewHub(testConfig(), newFakeStore(), nil)
	defer h.Shutdown()

	alice := addSession(t, h, "alice", "Alice")
	bob := addSession(t, h, "bob", "Bob")

	h.joinRoom(alice, "lobby")
	drainUntil(t, alice, EventWelcome)

	h.joinRoom(bob, "lobby")

	// The joiner gets a welcome carrying the roster, with presence flags.
	env := drainUntil(t, bob, EventWelcome)
	var welcome WelcomePayload
	require.NoError(t, json.Unmarshal(env.Payload, &welcome))
	assert.Equal(t, "lobby", welcome.Room)
	assert.Len(t, welcome.Members, 2)

	// Existing members get the join announcement; the joiner does not.
	env = drainUntil(t, alice, EventUserJoined)
	var joined UserEventPayload
	require.NoError(t, json.Unmarshal(env.Payload, &joined))
	assert.Equal(t, "bob", joined.UserID)
	noFrame(t, bob)
}

func TestHubDisconnectAnnouncesAndUnregisters(t *testing.T) {
	h := NewHub(testConfig(), newFakeStore(), nil)
	defer h.Shutdown()

	alice := addSession(t, h, "alice", "Alice")
	bob := addSession(t, h, "bob", "Bob")
	h.joinRoom(alice, "lobby")
	h.joinRoom(bob, "lobby")

	h.disconnect(bob)

	env := drainUntil(t, alice, EventUserLeft)
	var left UserEventPayload
	require.NoError(t, json.Unmarshal(env.Payload, &left))
	assert.Equal(t, "bob", left.UserID)

	assert.Equal(t, 0, h.registry.Count("bob"))
	assert.Nil(t, h.router.Rooms(bob))
	assert.False(t, bob.Deliver([]byte("x")))
}

func TestHubAnonymousSessionSkipsPresence(t *testing.T) {
	h := NewHub(testConfig(), newFakeStore(), nil)
	defer h.Shutdown()

	anon := addSession(t, h, "", "Guest")
	require.True(t, anon.Anonymous())

	h.heartbeat(anon)
	assert.False(t, h.presence.IsOnline(""))
}

func TestHubPresenceFanoutExcludesSubject(t *testing.T) {
	h := NewHub(testConfig(), newFakeStore(), nil)
	defer h.Shutdown()

	observer := addSession(t, h, "bob", "Bob")
	alice := addSession(t, h, "alice", "Alice")
	drainUntil(t, observer, EventPresenceChanged) // alice coming online

	h.fanoutPresence("alice", false)

	env := drainUntil(t, observer, EventPresenceChanged)
	var p PresencePayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "alice", p.UserID)
	assert.False(t, p.IsOnline)

	// The subject's own sessions are skipped.
	for {
		select {
		case frame := <-alice.Outbound():
			var got Envelope
			require.NoError(t, json.Unmarshal(frame, &got))
			if got.Type == EventPresenceChanged {
				var pp PresencePayload
				require.NoError(t, json.Unmarshal(got.Payload, &pp))
				assert.NotEqual(t, "alice", pp.UserID)
			}
		default:
			return
		}
	}
}

func TestHubTypingExcludesSenderAndSkipsStore(t *testing.T) {
	st := newFakeStore()
	h := NewHub(testConfig(), st, nil)
	defer h.Shutdown()

	alice := addSession(t, h, "alice", "Alice")
	bob := addSession(t, h, "bob", "Bob")
	h.router.Join(alice, "lobby")
	h.router.Join(bob, "lobby")

	h.relayTyping(alice, true, TypingPayload{Room: "lobby", DisplayName: "Alice"})

	env := drainUntil(t, bob, EventTypingStarted)
	var p TypingPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "Alice", p.DisplayName)

	assert.Equal(t, 0, st.insertCount())
}

func TestHubBotReplyOnMention(t *testing.T) {
	responder := &scriptedResponder{reply: "certainly", calls: make(chan string, 1)}
	h := NewHub(testConfig(), newFakeStore(), responder)
	defer h.Shutdown()

	bob := addSession(t, h, "bob", "Bob")
	h.router.Join(bob, "lobby")

	h.maybeBotReply(InboundMessage{Room: "lobby", SenderID: "alice", Content: "hey @Assistant, help"})

	select {
	case prompt := <-responder.calls:
		assert.Contains(t, prompt, "help")
	case <-time.After(2 * time.Second):
		t.Fatal("responder never invoked")
	}

	env := drainUntil(t, bob, EventMessage)
	var p MessagePayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "assistant", p.SenderID)
	assert.Equal(t, "certainly", p.Content)
}

func TestHubBotReplyFallbackOnFailure(t *testing.T) {
	responder := &scriptedResponder{err: errors.New("model unavailable")}
	h := NewHub(testConfig(), newFakeStore(), responder)

	bob := addSession(t, h, "bob", "Bob")
	h.router.Join(bob, "lobby")

	h.maybeBotReply(InboundMessage{Room: "lobby", SenderID: "alice", Content: "@assistant ping"})
	h.wg.Wait()

	env := drainUntil(t, bob, EventMessage)
	var p MessagePayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, ai.FallbackReply, p.Content)

	h.Shutdown()
}

func TestHubBotIgnoresOwnAndUnmentionedMessages(t *testing.T) {
	responder := &scriptedResponder{reply: "nope", calls: make(chan string, 4)}
	h := NewHub(testConfig(), newFakeStore(), responder)
	defer h.Shutdown()

	h.maybeBotReply(InboundMessage{Room: "lobby", SenderID: "assistant", Content: "@assistant loop"})
	h.maybeBotReply(InboundMessage{Room: "lobby", SenderID: "alice", Content: "plain message"})
	h.wg.Wait()

	select {
	case prompt := <-responder.calls:
		t.Fatalf("responder should not run, got prompt %q", prompt)
	default:
	}
}
