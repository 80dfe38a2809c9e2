package dispatch

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"testing"
	"time"

	"toromines/server/internal/broadcast"
	"toromines/server/internal/config"
	"toromines/server/internal/engine"
	"toromines/server/internal/proto"
	"toromines/server/internal/registry"
	"toromines/server/internal/store"
	"toromines/server/logging"
)

type fakeTransport struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

type sequentialMinter struct {
	mu   sync.Mutex
	next int
}

func (m *sequentialMinter) New() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	return "player-" + string(rune('a'+m.next-1))
}

// fixedOracle reports mines only at the coordinates given to it, letting
// tests assert exact flood-fill and mine-hit behaviour without fighting the
// cryptographic oracle's distribution.
type fixedOracle struct {
	mines map[[2]int]bool
}

func newFixedOracle(mines ...[2]int) *fixedOracle {
	m := make(map[[2]int]bool, len(mines))
	for _, c := range mines {
		m[c] = true
	}
	return &fixedOracle{mines: m}
}

// ringMines returns a square ring of mine coordinates at the given distance
// from (cx, cy), bounding a flood-fill started inside the ring so a test
// never has to walk the whole grid.
func ringMines(cx, cy, distance int) [][2]int {
	var out [][2]int
	for dy := -distance; dy <= distance; dy++ {
		for dx := -distance; dx <= distance; dx++ {
			if dx != -distance && dx != distance && dy != -distance && dy != distance {
				continue
			}
			out = append(out, [2]int{cx + dx, cy + dy})
		}
	}
	return out
}

func (o *fixedOracle) IsMine(x, y int) bool { return o.mines[[2]int{x, y}] }

func (o *fixedOracle) AdjacentMines(x, y int) int {
	count := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if o.IsMine(x+dx, y+dy) {
				count++
			}
		}
	}
	return count
}

func newTestDispatcher(t *testing.T, o engine.MineOracle) (*Dispatcher, *registry.Registry, *store.Store) {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := registry.New(config.GridWidth, config.GridHeight, &sequentialMinter{}, nil)
	e := engine.New(o, s, config.GridWidth, config.GridHeight)
	b := broadcast.New(reg)
	d := New(e, s, reg, b, logging.NopPublisher(), log.Default())
	return d, reg, s
}

func waitFor(t *testing.T, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if done() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func decodeEnvelopeType(t *testing.T, raw []byte) string {
	t.Helper()
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env.Type
}

func TestHandleClickCellMineHitPenalizesOriginator(t *testing.T) {
	o := newFixedOracle([2]int{5, 5})
	d, reg, _ := newTestDispatcher(t, o)
	ctx := context.Background()

	tr := &fakeTransport{}
	sess := reg.Add(tr, 0)
	reg.UpdateCursor(sess.PlayerID, 5, 5)

	raw, _ := json.Marshal(map[string]any{
		"type": proto.KindClickCell,
		"data": proto.ClickCellData{X: 5, Y: 5},
	})
	d.Handle(ctx, sess.PlayerID, raw)

	waitFor(t, func() bool { return len(tr.messages()) >= 2 })
	msgs := tr.messages()
	if decodeEnvelopeType(t, msgs[0]) != proto.KindPlayerPenalty {
		t.Fatalf("first message type = %q, want playerPenalty", decodeEnvelopeType(t, msgs[0]))
	}
	if decodeEnvelopeType(t, msgs[1]) != proto.KindMapUpdate {
		t.Fatalf("second message type = %q, want mapUpdate", decodeEnvelopeType(t, msgs[1]))
	}
	if got := sess.CachedScore(); got != -engine.MinePenalty {
		t.Fatalf("cached score = %d, want %d", got, -engine.MinePenalty)
	}
}

func TestHandleClickCellSafeRevealSendsScoreUpdate(t *testing.T) {
	o := newFixedOracle(ringMines(300, 300, 5)...)
	d, reg, _ := newTestDispatcher(t, o)
	ctx := context.Background()

	tr := &fakeTransport{}
	sess := reg.Add(tr, 0)
	reg.UpdateCursor(sess.PlayerID, 300, 300)

	raw, _ := json.Marshal(map[string]any{
		"type": proto.KindClickCell,
		"data": proto.ClickCellData{X: 300, Y: 300},
	})
	d.Handle(ctx, sess.PlayerID, raw)

	waitFor(t, func() bool { return len(tr.messages()) >= 2 })
	msgs := tr.messages()
	if decodeEnvelopeType(t, msgs[0]) != proto.KindScoreUpdate {
		t.Fatalf("first message type = %q, want scoreUpdate", decodeEnvelopeType(t, msgs[0]))
	}
	if sess.CachedScore() <= 0 {
		t.Fatalf("cached score = %d, want positive", sess.CachedScore())
	}
}

func TestHandleClickCellOutOfBoundsRepliesError(t *testing.T) {
	o := newFixedOracle()
	d, reg, _ := newTestDispatcher(t, o)
	ctx := context.Background()

	tr := &fakeTransport{}
	sess := reg.Add(tr, 0)

	raw, _ := json.Marshal(map[string]any{
		"type": proto.KindClickCell,
		"data": proto.ClickCellData{X: -1, Y: 0},
	})
	d.Handle(ctx, sess.PlayerID, raw)

	waitFor(t, func() bool { return len(tr.messages()) >= 1 })
	if decodeEnvelopeType(t, tr.messages()[0]) != proto.KindError {
		t.Fatalf("message type = %q, want error", decodeEnvelopeType(t, tr.messages()[0]))
	}
}

func TestHandleClickCellFatalStoreErrorTerminatesSession(t *testing.T) {
	o := newFixedOracle()
	d, reg, s := newTestDispatcher(t, o)
	ctx := context.Background()

	tr := &fakeTransport{}
	sess := reg.Add(tr, 0)

	s.Close()

	raw, _ := json.Marshal(map[string]any{
		"type": proto.KindClickCell,
		"data": proto.ClickCellData{X: 5, Y: 5},
	})
	d.Handle(ctx, sess.PlayerID, raw)

	waitFor(t, tr.isClosed)
	if len(tr.messages()) != 0 {
		t.Fatalf("expected no reply once the session is torn down, got %d messages", len(tr.messages()))
	}
}

func TestHandleFlagCellFatalStoreErrorTerminatesSession(t *testing.T) {
	o := newFixedOracle()
	d, reg, s := newTestDispatcher(t, o)
	ctx := context.Background()

	tr := &fakeTransport{}
	sess := reg.Add(tr, 0)

	s.Close()

	raw, _ := json.Marshal(map[string]any{
		"type": proto.KindFlagCell,
		"data": proto.FlagCellData{X: 5, Y: 5},
	})
	d.Handle(ctx, sess.PlayerID, raw)

	waitFor(t, tr.isClosed)
	if len(tr.messages()) != 0 {
		t.Fatalf("expected no reply once the session is torn down, got %d messages", len(tr.messages()))
	}
}

func TestHandleFlagCellTogglesAndBroadcasts(t *testing.T) {
	o := newFixedOracle()
	d, reg, _ := newTestDispatcher(t, o)
	ctx := context.Background()

	tr := &fakeTransport{}
	sess := reg.Add(tr, 0)
	reg.UpdateCursor(sess.PlayerID, 10, 10)

	raw, _ := json.Marshal(map[string]any{
		"type": proto.KindFlagCell,
		"data": proto.FlagCellData{X: 10, Y: 10},
	})
	d.Handle(ctx, sess.PlayerID, raw)

	waitFor(t, func() bool { return len(tr.messages()) >= 1 })
	if decodeEnvelopeType(t, tr.messages()[0]) != proto.KindMapUpdate {
		t.Fatalf("message type = %q, want mapUpdate", decodeEnvelopeType(t, tr.messages()[0]))
	}
}

func TestHandleUpdatePositionBroadcastsToNeighborsExcludingSelf(t *testing.T) {
	o := newFixedOracle()
	d, reg, _ := newTestDispatcher(t, o)
	ctx := context.Background()

	self := &fakeTransport{}
	near := &fakeTransport{}
	selfSess := reg.Add(self, 0)
	nearSess := reg.Add(near, 0)
	reg.UpdateCursor(nearSess.PlayerID, config.GridWidth/2, config.GridHeight/2)

	raw, _ := json.Marshal(map[string]any{
		"type": proto.KindUpdatePosition,
		"data": proto.UpdatePositionData{X: float64(config.GridWidth / 2), Y: float64(config.GridHeight / 2)},
	})
	d.Handle(ctx, selfSess.PlayerID, raw)

	waitFor(t, func() bool { return len(near.messages()) >= 1 })
	if len(self.messages()) != 0 {
		t.Fatalf("self received %d messages, want 0", len(self.messages()))
	}
}

func TestHandleMalformedPayloadRepliesErrorWithoutDroppingSession(t *testing.T) {
	o := newFixedOracle()
	d, reg, _ := newTestDispatcher(t, o)
	ctx := context.Background()

	tr := &fakeTransport{}
	sess := reg.Add(tr, 0)

	d.Handle(ctx, sess.PlayerID, []byte("not json"))

	waitFor(t, func() bool { return len(tr.messages()) >= 1 })
	if decodeEnvelopeType(t, tr.messages()[0]) != proto.KindError {
		t.Fatalf("message type = %q, want error", decodeEnvelopeType(t, tr.messages()[0]))
	}
	if reg.Get(sess.PlayerID) == nil {
		t.Fatal("session was removed after a malformed payload, want it to stay connected")
	}
}

func TestHandleTouchesLastSeenOnEveryMessage(t *testing.T) {
	o := newFixedOracle()
	d, reg, s := newTestDispatcher(t, o)
	ctx := context.Background()

	tr := &fakeTransport{}
	sess := reg.Add(tr, 0)
	if _, err := s.FindOrCreatePlayer(ctx, sess.PlayerID, 1); err != nil {
		t.Fatalf("FindOrCreatePlayer: %v", err)
	}

	raw, _ := json.Marshal(map[string]any{
		"type": proto.KindFlagCell,
		"data": proto.FlagCellData{X: 1, Y: 1},
	})
	d.Handle(ctx, sess.PlayerID, raw)

	p, err := s.FindOrCreatePlayer(ctx, sess.PlayerID, 1)
	if err != nil {
		t.Fatalf("FindOrCreatePlayer: %v", err)
	}
	if p.LastSeenUnixMs <= 1 {
		t.Fatalf("lastSeen = %d, want it touched past the seed value", p.LastSeenUnixMs)
	}
}
