// Package network publishes transport and protocol events: malformed
// frames, unrecognised message kinds, and delivery failures that terminate
// a session.
package network

import (
	"context"

	"toromines/server/logging"
)

const (
	// EventMalformedMessage is emitted when an inbound frame fails to decode.
	EventMalformedMessage logging.EventType = "network.malformed_message"
	// EventUnknownKind is emitted when an inbound frame's type tag does not
	// match any known message kind.
	EventUnknownKind logging.EventType = "network.unknown_kind"
	// EventSessionTerminated is emitted when a session is torn down because
	// of a send failure or outbound overflow.
	EventSessionTerminated logging.EventType = "network.session_terminated"
)

// MalformedMessagePayload captures why a frame could not be decoded.
type MalformedMessagePayload struct {
	Reason string `json:"reason"`
}

// UnknownKindPayload captures the unrecognised type tag.
type UnknownKindPayload struct {
	Kind string `json:"kind"`
}

// SessionTerminatedPayload captures why a session was torn down.
type SessionTerminatedPayload struct {
	Reason string `json:"reason"`
}

// MalformedMessage publishes a warning event for an undecodable frame.
func MalformedMessage(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload MalformedMessagePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMalformedMessage,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: "network",
		Payload:  payload,
		Extra:    extra,
	})
}

// UnknownKind publishes a warning event for an unrecognised message kind.
func UnknownKind(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload UnknownKindPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventUnknownKind,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: "network",
		Payload:  payload,
		Extra:    extra,
	})
}

// SessionTerminated publishes a warning event when a session is dropped.
func SessionTerminated(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SessionTerminatedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSessionTerminated,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: "network",
		Payload:  payload,
		Extra:    extra,
	})
}
