/*
Package relay contains the connection, presence, and message-relay core.

This file defines the Debouncer, which turns possibly-flickering session
lifecycle events and heartbeats into debounced online/offline transitions.
*/
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatrelay/internal/pkg/logx"
)

// presenceUpsertTimeout bounds each best-effort durable presence write.
const presenceUpsertTimeout = 5 * time.Second

// PresenceStore is the durable collaborator the debouncer writes through.
// Failures are logged and never block or roll back the in-memory transition.
type PresenceStore interface {
	UpsertPresence(ctx context.Context, userID string, online bool) error
}

// PresenceNotifier receives presence transitions in emission order.
// Implementations must not block.
type PresenceNotifier func(userID string, online bool)

// presenceEntry is the per-user debounce state.
type presenceEntry struct {
	online   bool
	lastSeen time.Time

	// gen invalidates scheduled offline checks: every arm or cancel bumps
	// it, so a timer that fires late sees a stale generation and returns.
	gen   uint64
	timer *time.Timer
}

// Debouncer tracks per-user presence with a grace window. A user is online
// iff it has at least one live session or a pending-offline grace window has
// not yet elapsed since its last session closed.
type Debouncer struct {
	mu      sync.Mutex
	entries map[string]*presenceEntry

	grace time.Duration

	// count reports the user's live session count; consulted again at timer
	// fire time rather than trusted from schedule time.
	count func(userID string) int

	store  PresenceStore
	notify PresenceNotifier

	// wg tracks in-flight durable upserts so shutdown can drain them.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewDebouncer constructs a Debouncer with the given grace window.
func NewDebouncer(grace time.Duration, count func(string) int, store PresenceStore, notify PresenceNotifier) *Debouncer {
	return &Debouncer{
		entries: make(map[string]*presenceEntry),
		grace:   grace,
		count:   count,
		store:   store,
		notify:  notify,
		logger:  logx.Logger().With().Str("component", "Presence").Logger(),
	}
}

// SessionAdded implements SessionListener: a new live session makes the user
// online and cancels any pending offline check.
func (d *Debouncer) SessionAdded(userID string) {
	d.markOnline(userID, false)
}

// Heartbeat refreshes a user's online status without adding a session.
// It is idempotent and always re-arms the grace window: a user kept alive by
// heartbeats alone goes offline one grace period after the last one.
func (d *Debouncer) Heartbeat(userID string) {
	d.markOnline(userID, true)
}

// SessionRemoved implements SessionListener: when the last session is gone
// the user enters the pending-offline grace window.
func (d *Debouncer) SessionRemoved(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[userID]
	if !ok || !e.online {
		return
	}

	if d.count(userID) > 0 {
		return
	}

	d.armLocked(userID, e)
}

// markOnline promotes the user to online, cancelling any pending offline
// check. With rearmIfIdle set and no live sessions, a fresh grace window is
// started immediately.
func (d *Debouncer) markOnline(userID string, rearmIfIdle bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[userID]
	if !ok {
		e = &presenceEntry{}
		d.entries[userID] = e
	}

	d.cancelLocked(e)
	e.lastSeen = time.Now()

	if !e.online {
		e.online = true
		d.logger.Debug().Str("user_id", userID).Msg("Presence transition to online")
		d.emitLocked(userID, true)
	}

	if rearmIfIdle && d.count(userID) == 0 {
		d.armLocked(userID, e)
	}
}

// cancelLocked invalidates any scheduled offline check. Caller holds d.mu.
func (d *Debouncer) cancelLocked(e *presenceEntry) {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// armLocked starts exactly one pending-offline timer. Caller holds d.mu.
func (d *Debouncer) armLocked(userID string, e *presenceEntry) {
	d.cancelLocked(e)
	gen := e.gen
	e.timer = time.AfterFunc(d.grace, func() {
		d.fire(userID, gen)
	})
}

// fire is the scheduled offline check. It re-validates both the generation
// (was this check cancelled or superseded?) and the live session count at
// fire time, so a session added the same instant the timer fires never
// produces an out-of-order offline event.
func (d *Debouncer) fire(userID string, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[userID]
	if !ok || e.gen != gen {
		return
	}
	e.timer = nil

	if d.count(userID) > 0 {
		return
	}

	if !e.online {
		return
	}

	e.online = false
	e.lastSeen = time.Now()
	d.logger.Debug().Str("user_id", userID).Msg("Presence transition to offline")
	d.emitLocked(userID, false)
}

// emitLocked publishes a transition. The notifier runs under d.mu so online
// and offline events for one user can never be observed out of order; the
// durable upsert is asynchronous and best-effort.
func (d *Debouncer) emitLocked(userID string, online bool) {
	if d.notify != nil {
		d.notify(userID, online)
	}

	if d.store == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), presenceUpsertTimeout)
		defer cancel()

		if err := d.store.UpsertPresence(ctx, userID, online); err != nil {
			d.logger.Error().Err(err).
				Str("user_id", userID).
				Bool("online", online).
				Msg("Durable presence upsert failed. In-memory state stands.")
		}
	}()
}

// IsOnline reports the debounced presence of a user. A user inside its grace
// window still counts as online.
func (d *Debouncer) IsOnline(userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[userID]
	return ok && e.online
}

// Snapshot returns the current online flag of every tracked user. Used to
// stamp presence onto room rosters without taking the lock per member.
func (d *Debouncer) Snapshot() map[string]bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := make(map[string]bool, len(d.entries))
	for userID, e := range d.entries {
		snapshot[userID] = e.online
	}
	return snapshot
}

// LastSeen returns the user's last activity timestamp, if the user has ever
// been seen.
func (d *Debouncer) LastSeen(userID string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[userID]
	if !ok {
		return time.Time{}, false
	}
	return e.lastSeen, true
}

// Shutdown cancels all pending timers and drains in-flight durable upserts.
func (d *Debouncer) Shutdown() {
	d.mu.Lock()
	for _, e := range d.entries {
		d.cancelLocked(e)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
