// Package registry tracks connected players in memory: the
// playerId → session and transportHandle → playerId maps kept in lockstep,
// position updates, and wrap-aware region queries used to scope broadcasts.
// It is the only shared mutable in-memory state in the system.
package registry

import (
	"errors"
	"sync"

	"toromines/server/internal/region"
	"toromines/server/logging"
)

var (
	// ErrOverflow is returned by Session.Send when the outbound buffer is
	// full; the session is closed as a side effect.
	ErrOverflow = errors.New("registry: outbound buffer overflow")
	// ErrSessionClosed is returned by Session.Send on an already-closed
	// session.
	ErrSessionClosed = errors.New("registry: session closed")
)

// IDMinter produces fresh opaque player identities.
type IDMinter interface {
	New() string
}

// Registry is the explicit, passed-by-reference handle for live sessions.
// There are no ambient singletons; every component that needs it receives
// one.
type Registry struct {
	w, h int

	mu          sync.RWMutex
	byPlayer    map[string]*Session
	byTransport map[Transport]string

	minter IDMinter
	events logging.Publisher
}

// New constructs an empty registry for a W x H grid. events may be nil, in
// which case sessions it creates publish no termination events; pass the
// router used by the rest of the wiring to have forced closes show up in
// the same event stream as gameplay and lifecycle events.
func New(w, h int, minter IDMinter, events logging.Publisher) *Registry {
	return &Registry{
		w:           w,
		h:           h,
		byPlayer:    make(map[string]*Session),
		byTransport: make(map[Transport]string),
		minter:      minter,
		events:      events,
	}
}

// Add mints a playerId, starts the session at the grid centre, and places it
// in both maps, seeding the cached score with initialScore. Add does not
// touch the player store; since the id is minted here, callers call
// FindOrCreatePlayer with sess.PlayerID afterwards and refresh the cached
// score through UpdateCachedScore.
func (r *Registry) Add(transport Transport, initialScore int) *Session {
	id := r.minter.New()
	sess := newSession(id, transport, r.w/2, r.h/2, r.events)
	sess.setCachedScore(initialScore)

	r.mu.Lock()
	r.byPlayer[id] = sess
	r.byTransport[transport] = id
	r.mu.Unlock()

	return sess
}

// Remove detaches both mappings for transport and returns the departing
// playerId, or "" if the transport was never registered. The caller is
// responsible for the persistence-side touchPlayer effect; Remove only
// manages in-memory state.
func (r *Registry) Remove(transport Transport) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byTransport[transport]
	if !ok {
		return ""
	}
	delete(r.byTransport, transport)
	delete(r.byPlayer, id)
	return id
}

// UpdateCursor clamps (x, y) into [0,W) x [0,H) and stores it on the named
// session. Reports false if the player is not registered.
func (r *Registry) UpdateCursor(playerID string, x, y int) bool {
	sess := r.Get(playerID)
	if sess == nil {
		return false
	}
	sess.setCursor(region.Wrap(x, r.w), region.Wrap(y, r.h))
	return true
}

// UpdateCachedScore stores the latest known score for the named session.
// Reports false if the player is not registered.
func (r *Registry) UpdateCachedScore(playerID string, score int) bool {
	sess := r.Get(playerID)
	if sess == nil {
		return false
	}
	sess.setCachedScore(score)
	return true
}

// Get returns the session for playerID, or nil if absent.
func (r *Registry) Get(playerID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byPlayer[playerID]
}

// Lookup returns the playerId bound to transport, or "" if absent.
func (r *Registry) Lookup(transport Transport) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byTransport[transport]
}

// SessionsInRegion returns a projection of every session whose cursor lies
// in reg, excluding exclude if non-empty. Iteration is O(N_active), which
// the contract explicitly allows at the expected scale.
func (r *Registry) SessionsInRegion(reg region.Region, exclude string) []Projection {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byPlayer))
	for id, sess := range r.byPlayer {
		if id == exclude {
			continue
		}
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	out := make([]Projection, 0, len(sessions))
	for _, sess := range sessions {
		x, y := sess.Cursor()
		if reg.Contains(x, y) {
			out = append(out, Projection{PlayerID: sess.PlayerID, X: x, Y: y})
		}
	}
	return out
}

// All returns a projection of every live session: the full roster rather
// than a region slice.
func (r *Registry) All() []Projection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Projection, 0, len(r.byPlayer))
	for _, sess := range r.byPlayer {
		out = append(out, sess.projection())
	}
	return out
}

// Count returns the number of live sessions, used by the diagnostics
// endpoint.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPlayer)
}

// CloseAll closes every live session, used during ordered shutdown so no
// transport outlives the registry itself. Each session's writePump drains
// before its transport closes; CloseAll only has to wait for that to
// happen before the caller moves on to tearing down persistence.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byPlayer))
	for _, sess := range r.byPlayer {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	for _, sess := range sessions {
		sess.Close()
	}
}
