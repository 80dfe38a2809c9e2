package engine

import (
	"context"
	"path/filepath"
	"testing"

	"toromines/server/internal/store"
)

const (
	testW = 640
	testH = 640
)

// fixedOracle lets tests pin exact mine locations instead of depending on
// the cryptographic oracle's hash output.
type fixedOracle struct {
	mines map[[2]int]bool
}

func newFixedOracle(mines ...[2]int) *fixedOracle {
	f := &fixedOracle{mines: make(map[[2]int]bool)}
	for _, m := range mines {
		f.mines[m] = true
	}
	return f
}

func (f *fixedOracle) IsMine(x, y int) bool {
	return f.mines[[2]int{x, y}]
}

func (f *fixedOracle) AdjacentMines(x, y int) int {
	count := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx := wrap(x+dx, testW)
			ny := wrap(y+dy, testH)
			if f.IsMine(nx, ny) {
				count++
			}
		}
	}
	return count
}

func newTestEngine(t *testing.T, o MineOracle) (*Engine, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(o, s, testW, testH), s
}

// S1: trivial reveal of a mine.
func TestRevealMineHit(t *testing.T) {
	o := newFixedOracle([2]int{100, 100})
	e, s := newTestEngine(t, o)
	ctx := context.Background()

	outcome, err := e.Reveal(ctx, "player-1", 100, 100)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if outcome.Kind != RevealMineHit {
		t.Fatalf("kind = %v, want RevealMineHit", outcome.Kind)
	}
	if outcome.ScoreDelta != -MinePenalty {
		t.Fatalf("scoreDelta = %d, want %d", outcome.ScoreDelta, -MinePenalty)
	}
	if outcome.StunMs != 3000 {
		t.Fatalf("stunMs = %d, want 3000", outcome.StunMs)
	}
	if len(outcome.Cells) != 1 || !outcome.Cells[0].IsMine {
		t.Fatalf("unexpected cells: %+v", outcome.Cells)
	}

	cell, ok, err := s.GetCell(ctx, 100, 100)
	if err != nil || !ok {
		t.Fatalf("expected persisted mine cell, err=%v ok=%v", err, ok)
	}
	if !cell.Revealed || !cell.IsMine || cell.Flagged {
		t.Fatalf("unexpected persisted cell: %+v", cell)
	}
}

// S2: safe reveal with zero adjacency opens a disk.
func TestRevealSafeZeroAdjacencyFloods(t *testing.T) {
	o := newFixedOracle([2]int{300, 300}) // far away; (10,10) and neighbours are safe
	e, _ := newTestEngine(t, o)
	ctx := context.Background()

	outcome, err := e.Reveal(ctx, "player-1", 10, 10)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if outcome.Kind != RevealSafe {
		t.Fatalf("kind = %v, want RevealSafe", outcome.Kind)
	}
	if len(outcome.Cells) < 9 {
		t.Fatalf("expected at least 9 cells opened, got %d", len(outcome.Cells))
	}
	if outcome.ScoreDelta != len(outcome.Cells) {
		t.Fatalf("scoreDelta = %d, want %d", outcome.ScoreDelta, len(outcome.Cells))
	}
	for _, c := range outcome.Cells {
		want := o.AdjacentMines(c.X, c.Y)
		if c.AdjacentMines != want {
			t.Fatalf("cell (%d,%d) adjacency = %d, want %d", c.X, c.Y, c.AdjacentMines, want)
		}
	}
}

// Reveal of an already-revealed cell is a no-op.
func TestRevealAlreadyRevealedIsIgnored(t *testing.T) {
	o := newFixedOracle()
	e, _ := newTestEngine(t, o)
	ctx := context.Background()

	if _, err := e.Reveal(ctx, "player-1", 50, 50); err != nil {
		t.Fatalf("first reveal: %v", err)
	}
	outcome, err := e.Reveal(ctx, "player-1", 50, 50)
	if err != nil {
		t.Fatalf("second reveal: %v", err)
	}
	if outcome.Kind != RevealIgnored {
		t.Fatalf("kind = %v, want RevealIgnored", outcome.Kind)
	}
}

// S3: a flag on a flood neighbour blocks the flood at that boundary.
func TestRevealFloodStopsAtFlag(t *testing.T) {
	o := newFixedOracle([2]int{300, 300})
	e, s := newTestEngine(t, o)
	ctx := context.Background()

	flagX, flagY := wrap(10+1, testW), wrap(10+1, testH)
	outcome, err := e.ToggleFlag(ctx, flagX, flagY)
	if err != nil || outcome.Kind != FlagFlagged {
		t.Fatalf("flag setup failed: outcome=%+v err=%v", outcome, err)
	}

	if _, err := e.Reveal(ctx, "player-1", 10, 10); err != nil {
		t.Fatalf("reveal: %v", err)
	}

	cell, ok, err := s.GetCell(ctx, flagX, flagY)
	if err != nil || !ok {
		t.Fatalf("expected flagged cell to remain persisted, err=%v ok=%v", err, ok)
	}
	if !cell.Flagged || cell.Revealed {
		t.Fatalf("flag was overwritten by flood: %+v", cell)
	}
}

// S4: toggling a flag twice returns the cell to absent.
func TestToggleFlagTwiceRemovesRecord(t *testing.T) {
	o := newFixedOracle()
	e, s := newTestEngine(t, o)
	ctx := context.Background()

	outcome, err := e.ToggleFlag(ctx, 50, 50)
	if err != nil || outcome.Kind != FlagFlagged {
		t.Fatalf("first toggle: outcome=%+v err=%v", outcome, err)
	}
	cell, ok, err := s.GetCell(ctx, 50, 50)
	if err != nil || !ok || !cell.Flagged || cell.Revealed {
		t.Fatalf("unexpected state after first toggle: %+v ok=%v err=%v", cell, ok, err)
	}

	outcome, err = e.ToggleFlag(ctx, 50, 50)
	if err != nil || outcome.Kind != FlagUnflagged {
		t.Fatalf("second toggle: outcome=%+v err=%v", outcome, err)
	}
	_, ok, err = s.GetCell(ctx, 50, 50)
	if err != nil {
		t.Fatalf("get cell after unflag: %v", err)
	}
	if ok {
		t.Fatal("expected cell record to be absent after unflag")
	}
}

// A revealed cell cannot be flagged.
func TestToggleFlagOnRevealedIsIgnored(t *testing.T) {
	o := newFixedOracle([2]int{300, 300})
	e, _ := newTestEngine(t, o)
	ctx := context.Background()

	if _, err := e.Reveal(ctx, "player-1", 20, 20); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	outcome, err := e.ToggleFlag(ctx, 20, 20)
	if err != nil {
		t.Fatalf("toggle flag: %v", err)
	}
	if outcome.Kind != FlagIgnored {
		t.Fatalf("kind = %v, want FlagIgnored", outcome.Kind)
	}
}

// Boundary behaviour: a reveal at (0,0) with zero adjacency opens
// neighbours including (W-1, H-1).
func TestRevealAtOriginWrapsToFarCorner(t *testing.T) {
	o := newFixedOracle([2]int{300, 300})
	e, _ := newTestEngine(t, o)
	ctx := context.Background()

	outcome, err := e.Reveal(ctx, "player-1", 0, 0)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	found := false
	for _, c := range outcome.Cells {
		if c.X == testW-1 && c.Y == testH-1 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected flood to reach the wrapped corner neighbour (W-1,H-1)")
	}
}

func TestNewScoreReflectsPersistedTotal(t *testing.T) {
	// One mine beside each reveal target keeps each reveal to a single cell,
	// so the second reveal lands on a still-hidden cell.
	o := newFixedOracle([2]int{11, 11}, [2]int{201, 201})
	e, _ := newTestEngine(t, o)
	ctx := context.Background()

	first, err := e.Reveal(ctx, "player-1", 10, 10)
	if err != nil {
		t.Fatalf("first reveal: %v", err)
	}
	second, err := e.Reveal(ctx, "player-1", 200, 200)
	if err != nil {
		t.Fatalf("second reveal: %v", err)
	}
	if second.NewScore != first.NewScore+second.ScoreDelta {
		t.Fatalf("newScore = %d, want %d", second.NewScore, first.NewScore+second.ScoreDelta)
	}
}
