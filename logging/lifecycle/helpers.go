// Package lifecycle publishes connect/disconnect events onto the shared
// event router.
package lifecycle

import (
	"context"

	"toromines/server/logging"
)

const (
	// EventPlayerJoined is emitted when a session is added to the registry.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerLeft is emitted when a session is removed from the registry.
	EventPlayerLeft logging.EventType = "lifecycle.player_left"
)

// PlayerJoinedPayload captures where a newly connected session started.
type PlayerJoinedPayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PlayerLeftPayload captures the last known position of a departing
// session.
type PlayerLeftPayload struct {
	LastX int `json:"lastX"`
	LastY int `json:"lastY"`
}

// PlayerJoined publishes a connect event.
func PlayerJoined(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload PlayerJoinedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerJoined,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	})
}

// PlayerLeft publishes a disconnect event.
func PlayerLeft(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload PlayerLeftPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerLeft,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "lifecycle",
		Payload:  payload,
		Extra:    extra,
	})
}
