// Package dispatch owns the per-session message loop: decode, validate,
// route into the cell engine, update score bookkeeping, and shape the
// outbound messages described by the wire protocol.
package dispatch

import (
	"context"
	"errors"
	"log"

	"toromines/server/internal/broadcast"
	"toromines/server/internal/config"
	"toromines/server/internal/engine"
	"toromines/server/internal/proto"
	"toromines/server/internal/region"
	"toromines/server/internal/registry"
	"toromines/server/internal/store"
	"toromines/server/logging"
	"toromines/server/logging/gameplay"
	"toromines/server/logging/network"
)

// maxTransientRetries bounds how many attempts (the first try included) a
// dispatcher action makes at a single persistence operation that fails with
// store.ErrTransient, per
// the propagation policy: retry bounded, then surface failure to the
// caller rather than retrying forever against contention that won't clear.
const maxTransientRetries = 3

// Reject reasons, surfaced only in logs; the wire protocol's only failure
// reply is a generic error message.
const (
	RejectOutOfBounds  = "out_of_bounds"
	RejectUnknownActor = "unknown_actor"
	RejectMalformed    = "malformed_payload"
	RejectUnknownKind  = "unknown_kind"
)

// Dispatcher routes validated inbound messages into the engine and shapes
// the resulting outbound traffic. It holds no per-connection state; the
// registry and the session identity are passed in on every call.
type Dispatcher struct {
	engine      *engine.Engine
	store       *store.Store
	registry    *registry.Registry
	broadcaster *broadcast.Broadcaster
	logger      *log.Logger
	events      logging.Publisher
}

// New constructs a Dispatcher wired to the engine, registry, and
// broadcaster a running server shares across every session. events may be
// nil, in which case gameplay and network events are simply not published.
func New(e *engine.Engine, s *store.Store, reg *registry.Registry, b *broadcast.Broadcaster, events logging.Publisher, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{engine: e, store: s, registry: reg, broadcaster: b, events: events, logger: logger}
}

func (d *Dispatcher) actor(playerID string) logging.EntityRef {
	return logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer}
}

// Handle decodes and routes one inbound frame for playerID, touching
// lastSeen regardless of outcome. A malformed payload or unknown kind
// triggers a single error reply without dropping the connection.
func (d *Dispatcher) Handle(ctx context.Context, playerID string, raw []byte) {
	if err := d.store.TouchPlayer(ctx, playerID, nowUnixMs()); err != nil {
		d.logger.Printf("dispatch: touch player %s failed: %v", playerID, err)
	}

	msg, err := proto.DecodeClient(raw)
	if err != nil {
		d.logger.Printf("dispatch: reject from %s: %v", playerID, err)
		var unknown *proto.ErrUnknownKind
		if errors.As(err, &unknown) {
			network.UnknownKind(ctx, d.events, d.actor(playerID), network.UnknownKindPayload{Kind: unknown.Kind}, nil)
		} else {
			network.MalformedMessage(ctx, d.events, d.actor(playerID), network.MalformedMessagePayload{Reason: err.Error()}, nil)
		}
		d.replyError(playerID, "could not understand that message")
		return
	}

	switch msg.Kind {
	case proto.KindClickCell:
		d.handleClickCell(ctx, playerID, msg.ClickCell)
	case proto.KindFlagCell:
		d.handleFlagCell(ctx, playerID, msg.FlagCell)
	case proto.KindUpdatePosition:
		d.handleUpdatePosition(playerID, msg.UpdatePosition)
	default:
		d.logger.Printf("dispatch: unknown kind %q from %s", msg.Kind, playerID)
		network.UnknownKind(ctx, d.events, d.actor(playerID), network.UnknownKindPayload{Kind: string(msg.Kind)}, nil)
	}
}

func (d *Dispatcher) handleClickCell(ctx context.Context, playerID string, data *proto.ClickCellData) {
	if data == nil || !inBounds(data.X, data.Y) {
		d.logger.Printf("dispatch: reject clickCell from %s: %s", playerID, RejectOutOfBounds)
		d.replyError(playerID, "coordinates out of range")
		return
	}

	outcome, err := retryTransient(maxTransientRetries, func() (engine.RevealOutcome, error) {
		return d.engine.Reveal(ctx, playerID, data.X, data.Y)
	})
	if err != nil {
		d.logger.Printf("dispatch: reveal failed for %s at (%d,%d): %v", playerID, data.X, data.Y, err)
		if errors.Is(err, store.ErrFatal) {
			d.terminateSession(playerID, err)
			return
		}
		d.replyError(playerID, "action failed, try again")
		return
	}

	switch outcome.Kind {
	case engine.RevealIgnored:
		return
	case engine.RevealMineHit:
		d.registry.UpdateCachedScore(playerID, outcome.NewScore)
		gameplay.MineHit(ctx, d.events, d.actor(playerID), gameplay.MineHitPayload{
			X:        data.X,
			Y:        data.Y,
			Penalty:  -outcome.ScoreDelta,
			NewScore: outcome.NewScore,
			StunMs:   outcome.StunMs,
		}, nil)
		penalty, err := proto.EncodePlayerPenalty(proto.PlayerPenaltyData{
			Score:          outcome.NewScore,
			StunDurationMs: outcome.StunMs,
		})
		if err != nil {
			d.logger.Printf("dispatch: encode playerPenalty: %v", err)
			return
		}
		d.broadcaster.SendTo(playerID, penalty)
		d.broadcastCells(data.X, data.Y, outcome.Cells)
	case engine.RevealSafe:
		d.registry.UpdateCachedScore(playerID, outcome.NewScore)
		for _, c := range outcome.Cells {
			gameplay.CellRevealed(ctx, d.events, d.actor(playerID), gameplay.CellRevealedPayload{
				X:             c.X,
				Y:             c.Y,
				AdjacentMines: c.AdjacentMines,
			}, nil)
		}
		scoreMsg, err := proto.EncodeScoreUpdate(proto.ScoreUpdateData{Score: outcome.NewScore})
		if err != nil {
			d.logger.Printf("dispatch: encode scoreUpdate: %v", err)
			return
		}
		d.broadcaster.SendTo(playerID, scoreMsg)
		d.broadcastCells(data.X, data.Y, outcome.Cells)
	}
}

func (d *Dispatcher) handleFlagCell(ctx context.Context, playerID string, data *proto.FlagCellData) {
	if data == nil || !inBounds(data.X, data.Y) {
		d.logger.Printf("dispatch: reject flagCell from %s: %s", playerID, RejectOutOfBounds)
		d.replyError(playerID, "coordinates out of range")
		return
	}

	outcome, err := retryTransient(maxTransientRetries, func() (engine.FlagOutcome, error) {
		return d.engine.ToggleFlag(ctx, data.X, data.Y)
	})
	if err != nil {
		d.logger.Printf("dispatch: toggleFlag failed for %s at (%d,%d): %v", playerID, data.X, data.Y, err)
		if errors.Is(err, store.ErrFatal) {
			d.terminateSession(playerID, err)
			return
		}
		d.replyError(playerID, "action failed, try again")
		return
	}

	switch outcome.Kind {
	case engine.FlagIgnored:
		return
	case engine.FlagFlagged:
		gameplay.FlagToggled(ctx, d.events, d.actor(playerID), gameplay.FlagToggledPayload{X: outcome.X, Y: outcome.Y, Flagged: true}, nil)
		d.broadcastSingleCell(outcome.X, outcome.Y, false, false, true, 0)
	case engine.FlagUnflagged:
		gameplay.FlagToggled(ctx, d.events, d.actor(playerID), gameplay.FlagToggledPayload{X: outcome.X, Y: outcome.Y, Flagged: false}, nil)
		d.broadcastSingleCell(outcome.X, outcome.Y, false, false, false, 0)
	}
}

func (d *Dispatcher) handleUpdatePosition(playerID string, data *proto.UpdatePositionData) {
	if data == nil {
		return
	}
	x, y := int(data.X), int(data.Y)
	if !d.registry.UpdateCursor(playerID, x, y) {
		d.logger.Printf("dispatch: updatePosition for unknown player %s", playerID)
		return
	}

	sess := d.registry.Get(playerID)
	if sess == nil {
		return
	}
	cx, cy := sess.Cursor()

	msg, err := proto.EncodePlayerPositionUpdate(proto.PlayerPositionUpdateData{
		Players: []proto.PlayerRef{{ID: playerID, X: cx, Y: cy}},
	})
	if err != nil {
		d.logger.Printf("dispatch: encode playerPositionUpdate: %v", err)
		return
	}

	area := region.Viewport(cx, cy, config.ViewportRadiusX, config.ViewportRadiusY, config.GridWidth, config.GridHeight)
	d.broadcaster.Broadcast(area, msg, playerID)
}

// broadcastCells encodes a mapUpdate for the given revealed cells and
// broadcasts it to the region centred on (x, y), matching the "centred on
// (x,y)" framing used for both mine hits and safe reveals.
func (d *Dispatcher) broadcastCells(x, y int, cells []engine.RevealedCell) {
	wireCells := make([]proto.Cell, 0, len(cells))
	for _, c := range cells {
		if c.IsMine {
			wireCells = append(wireCells, proto.CellFromEngine(c.X, c.Y, true, true, false, 0))
			continue
		}
		wireCells = append(wireCells, proto.CellFromEngine(c.X, c.Y, true, false, false, c.AdjacentMines))
	}
	msg, err := proto.EncodeMapUpdate(proto.MapUpdateData{Cells: wireCells})
	if err != nil {
		d.logger.Printf("dispatch: encode mapUpdate: %v", err)
		return
	}
	area := region.Viewport(x, y, config.ViewportRadiusX, config.ViewportRadiusY, config.GridWidth, config.GridHeight)
	d.broadcaster.Broadcast(area, msg, "")
}

func (d *Dispatcher) broadcastSingleCell(x, y int, revealed, isMine, flagged bool, adjacent int) {
	cell := proto.CellFromEngine(x, y, revealed, isMine, flagged, adjacent)
	msg, err := proto.EncodeMapUpdate(proto.MapUpdateData{Cells: []proto.Cell{cell}})
	if err != nil {
		d.logger.Printf("dispatch: encode mapUpdate: %v", err)
		return
	}
	area := region.Viewport(x, y, config.ViewportRadiusX, config.ViewportRadiusY, config.GridWidth, config.GridHeight)
	d.broadcaster.Broadcast(area, msg, "")
}

// terminateSession closes playerID's session in response to a fatal
// persistence error, per the propagation policy's highest tier: a fatal
// error means the store itself can no longer be trusted for this
// session, so the offending connection is torn down rather than kept
// alive on a best-effort reply.
func (d *Dispatcher) terminateSession(playerID string, cause error) {
	sess := d.registry.Get(playerID)
	if sess == nil {
		return
	}
	d.logger.Printf("dispatch: terminating session %s after fatal store error: %v", playerID, cause)
	if err := sess.Close(); err != nil {
		d.logger.Printf("dispatch: close session %s: %v", playerID, err)
	}
}

func (d *Dispatcher) replyError(playerID, message string) {
	msg, err := proto.EncodeError(message)
	if err != nil {
		d.logger.Printf("dispatch: encode error reply: %v", err)
		return
	}
	if err := d.broadcaster.SendTo(playerID, msg); err != nil {
		d.logger.Printf("dispatch: send error reply to %s failed: %v", playerID, err)
	}
}

func inBounds(x, y int) bool {
	return x >= 0 && x < config.GridWidth && y >= 0 && y < config.GridHeight
}

// retryTransient retries fn while it fails with store.ErrTransient, up to
// attempts times total, returning the last error once exhausted. A
// conflict or fatal error returns immediately without retrying.
func retryTransient[T any](attempts int, fn func() (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	for i := 0; i < attempts; i++ {
		result, err = fn()
		if err == nil || !errors.Is(err, store.ErrTransient) {
			return result, err
		}
	}
	return result, err
}
