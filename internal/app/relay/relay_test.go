package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"chatrelay/internal/app/store"
)

// fakeStore is an in-memory Store that records calls and can be made to fail.
type fakeStore struct {
	mu sync.Mutex

	nextID   int64
	inserted []store.NewMessage
	rooms    map[string]int64
	presence map[string]bool

	edited    []int64
	deleted   []int64
	reactions map[string]int

	failInsert   bool
	failPresence bool

	inserts chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:    100,
		rooms:     make(map[string]int64),
		presence:  make(map[string]bool),
		reactions: make(map[string]int),
		inserts:   make(chan struct{}, 16),
	}
}

func (f *fakeStore) InsertMessage(_ context.Context, m store.NewMessage) (int64, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	defer func() {
		select {
		case f.inserts <- struct{}{}:
		default:
		}
	}()

	if f.failInsert {
		return 0, time.Time{}, errors.New("insert failed")
	}

	f.nextID++
	f.inserted = append(f.inserted, m)
	return f.nextID, time.Now(), nil
}

func (f *fakeStore) UpdateRoomLastMessage(_ context.Context, room string, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[room] = messageID
	return nil
}

func (f *fakeStore) UpsertPresence(_ context.Context, userID string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPresence {
		return errors.New("presence upsert failed")
	}
	f.presence[userID] = online
	return nil
}

func (f *fakeStore) EditMessage(_ context.Context, messageID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, messageID)
	return nil
}

func (f *fakeStore) DeleteMessage(_ context.Context, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeStore) AddReaction(_ context.Context, _ int64, userID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[userID+"/"+emoji]++
	return nil
}

func (f *fakeStore) RemoveReaction(_ context.Context, _ int64, userID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[userID+"/"+emoji]--
	return nil
}

func (f *fakeStore) RecentMessages(_ context.Context, room string, limit int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []store.Message
	for i := len(f.inserted) - 1; i >= 0 && len(out) < limit; i-- {
		if f.inserted[i].Room != room {
			continue
		}
		out = append(out, store.Message{
			Room:     f.inserted[i].Room,
			SenderID: f.inserted[i].SenderID,
			Content:  f.inserted[i].Content,
			Kind:     f.inserted[i].Kind,
		})
	}
	return out, nil
}

func (f *fakeStore) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

// recvFrame pops the next queued frame of a session, failing the test when
// none arrives in time.
func recvFrame(t *testing.T, s *Session) Envelope {
	t.Helper()

	select {
	case frame, ok := <-s.Outbound():
		if !ok {
			t.Fatal("session outbound channel closed")
		}
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("malformed frame: %v", err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Envelope{}
	}
}

// drainUntil discards queued frames until one of the wanted type arrives.
func drainUntil(t *testing.T, s *Session, want EventType) Envelope {
	t.Helper()

	for i := 0; i < 32; i++ {
		env := recvFrame(t, s)
		if env.Type == want {
			return env
		}
	}
	t.Fatalf("no %q frame within 32 frames", want)
	return Envelope{}
}

// noFrame asserts the session's queue stays empty for a short window.
func noFrame(t *testing.T, s *Session) {
	t.Helper()

	select {
	case frame := <-s.Outbound():
		t.Fatalf("unexpected frame: %s", frame)
	case <-time.After(50 * time.Millisecond):
	}
}
