// Package lifecycle handles connection bookkeeping: assembling the initial
// snapshot for a newly connected session and announcing arrivals and
// departures to nearby sessions. It depends on the registry and the store
// but imports neither the dispatcher nor the broadcaster; callers inject
// broadcast and send callbacks instead.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"toromines/server/internal/config"
	"toromines/server/internal/proto"
	"toromines/server/internal/region"
	"toromines/server/internal/registry"
	"toromines/server/internal/store"
	"toromines/server/logging"
	lifecyclelog "toromines/server/logging/lifecycle"
)

// BroadcastFunc delivers data to every session in reg except exclude. It is
// satisfied by (*broadcast.Broadcaster).Broadcast; lifecycle does not import
// the broadcast package, the wiring layer passes the method value in.
type BroadcastFunc func(reg region.Region, data []byte, exclude string)

// SendFunc delivers data to exactly one session by playerId.
type SendFunc func(playerID string, data []byte) error

// Handlers wires the store and registry together to implement connect and
// disconnect bookkeeping.
type Handlers struct {
	store     *store.Store
	registry  *registry.Registry
	broadcast BroadcastFunc
	sendTo    SendFunc
	events    logging.Publisher
	logger    *log.Logger
}

// New constructs Handlers bound to the store, registry, and the broadcast
// primitives the caller's wiring layer already owns. events may be nil, in
// which case connect/disconnect events are simply not published.
func New(s *store.Store, reg *registry.Registry, broadcast BroadcastFunc, sendTo SendFunc, events logging.Publisher, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.Default()
	}
	return &Handlers{store: s, registry: reg, broadcast: broadcast, sendTo: sendTo, events: events, logger: logger}
}

func (h *Handlers) actor(playerID string) logging.EntityRef {
	return logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer}
}

// Connect implements the on-transport-accepted sequence: mint a player
// identity and persisted row, add a session to the registry, assemble an
// initial snapshot of the new session's viewport, and announce the arrival
// to every other session already inside that viewport.
func (h *Handlers) Connect(ctx context.Context, transport registry.Transport) (playerID string, err error) {
	sess := h.registry.Add(transport, 0)

	player, err := h.store.FindOrCreatePlayer(ctx, sess.PlayerID, nowUnixMs())
	if err != nil {
		h.registry.Remove(transport)
		sess.Close()
		return "", fmt.Errorf("lifecycle: connect: %w", err)
	}
	h.registry.UpdateCachedScore(sess.PlayerID, player.Score)

	cx, cy := sess.Cursor()
	area := region.Viewport(cx, cy, config.ViewportRadiusX, config.ViewportRadiusY, config.GridWidth, config.GridHeight)

	cells, err := h.store.GetCellsInRegion(ctx, area)
	if err != nil {
		h.logger.Printf("lifecycle: connect %s: load initial cells: %v", sess.PlayerID, err)
	}
	wireCells := make([]proto.Cell, 0, len(cells))
	for _, c := range cells {
		wireCells = append(wireCells, proto.CellFromEngine(c.X, c.Y, c.Revealed, c.IsMine, c.Flagged, c.AdjacentMines))
	}

	neighbors := h.registry.SessionsInRegion(area, sess.PlayerID)
	players := make([]proto.PlayerRef, 0, len(neighbors))
	for _, p := range neighbors {
		players = append(players, proto.PlayerRef{ID: p.PlayerID, X: p.X, Y: p.Y})
	}

	initial, err := proto.EncodeInitialState(proto.InitialStateData{
		PlayerID: sess.PlayerID,
		Score:    player.Score,
		MapChunk: proto.MapChunk{Cells: wireCells},
		Players:  players,
		Self:     proto.SelfPos{X: cx, Y: cy},
	})
	if err != nil {
		return "", fmt.Errorf("lifecycle: connect: encode initialState: %w", err)
	}
	if err := h.sendTo(sess.PlayerID, initial); err != nil {
		h.logger.Printf("lifecycle: connect %s: send initialState: %v", sess.PlayerID, err)
	}

	joined, err := proto.EncodePlayerJoined(proto.PlayerJoinedData{ID: sess.PlayerID, X: cx, Y: cy})
	if err != nil {
		h.logger.Printf("lifecycle: connect %s: encode playerJoined: %v", sess.PlayerID, err)
	} else {
		h.broadcast(area, joined, sess.PlayerID)
	}

	lifecyclelog.PlayerJoined(ctx, h.events, h.actor(sess.PlayerID), lifecyclelog.PlayerJoinedPayload{X: cx, Y: cy}, nil)

	return sess.PlayerID, nil
}

// Disconnect implements the on-transport-closed sequence: capture the last
// cursor, remove the session from the registry, persist lastSeen, and
// announce the departure centred on that last known position.
func (h *Handlers) Disconnect(ctx context.Context, transport registry.Transport) {
	playerID := h.registry.Lookup(transport)
	if playerID == "" {
		return
	}
	sess := h.registry.Get(playerID)
	var cx, cy int
	if sess != nil {
		cx, cy = sess.Cursor()
	}

	h.registry.Remove(transport)

	if err := h.store.TouchPlayer(ctx, playerID, nowUnixMs()); err != nil {
		h.logger.Printf("lifecycle: disconnect %s: touch player: %v", playerID, err)
	}

	left, err := proto.EncodePlayerLeft(proto.PlayerLeftData{ID: playerID})
	if err != nil {
		h.logger.Printf("lifecycle: disconnect %s: encode playerLeft: %v", playerID, err)
		return
	}
	area := region.Viewport(cx, cy, config.ViewportRadiusX, config.ViewportRadiusY, config.GridWidth, config.GridHeight)
	h.broadcast(area, left, playerID)

	lifecyclelog.PlayerLeft(ctx, h.events, h.actor(playerID), lifecyclelog.PlayerLeftPayload{LastX: cx, LastY: cy}, nil)
}

func nowUnixMs() int64 {
	return time.Now().UnixMilli()
}
