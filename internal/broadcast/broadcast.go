// Package broadcast fans a single serialised message out to every session
// whose cursor intersects a region, without letting one saturated recipient
// stall delivery to the rest.
package broadcast

import (
	"toromines/server/internal/region"
	"toromines/server/internal/registry"
)

// Broadcaster wraps a session registry to provide the single broadcast
// operation the dispatcher and lifecycle handlers need.
type Broadcaster struct {
	registry *registry.Registry
}

// New constructs a Broadcaster over reg.
func New(reg *registry.Registry) *Broadcaster {
	return &Broadcaster{registry: reg}
}

// Broadcast resolves sessions in reg via the registry, then delivers data to
// each. A delivery failure on one session (overflow or a closed transport)
// is recorded and the session torn down by Session.Send; it never aborts
// the fan-out to the remaining recipients.
func (b *Broadcaster) Broadcast(reg region.Region, data []byte, exclude string) {
	projections := b.registry.SessionsInRegion(reg, exclude)
	for _, p := range projections {
		sess := b.registry.Get(p.PlayerID)
		if sess == nil {
			continue
		}
		_ = sess.Send(data)
	}
}

// SendTo delivers data to exactly one session, used for responses aimed at
// the originator of an action rather than a broadcast region.
func (b *Broadcaster) SendTo(playerID string, data []byte) error {
	sess := b.registry.Get(playerID)
	if sess == nil {
		return registry.ErrSessionClosed
	}
	return sess.Send(data)
}
