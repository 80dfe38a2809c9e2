// Package engine implements reveal (including flood-fill), flag toggling,
// and scoring: the rules that must hold across concurrent players mutating
// the same grid.
package engine

import (
	"context"

	"toromines/server/internal/store"
)

// MinePenalty is subtracted from a player's score on a mine hit.
const MinePenalty = 50

// MineOracle is the pure mine predicate the engine consults. *oracle.Oracle
// satisfies this; tests substitute a fixed map.
type MineOracle interface {
	IsMine(x, y int) bool
	AdjacentMines(x, y int) int
}

// RevealedCell is one cell the reveal produced, carrying the facts a caller
// needs to both persist and broadcast it.
type RevealedCell struct {
	X, Y          int
	IsMine        bool
	AdjacentMines int
}

// RevealKind discriminates the three reveal outcomes.
type RevealKind int

const (
	RevealIgnored RevealKind = iota
	RevealMineHit
	RevealSafe
)

// RevealOutcome is the result of a reveal call. NewScore is the player's
// score as returned by the persistence increment, not the caller's
// pre-action cached value plus ScoreDelta — callers refresh any cached
// score from this field so a concurrent second action's update is never
// silently overwritten by a stale add.
type RevealOutcome struct {
	Kind       RevealKind
	ScoreDelta int
	NewScore   int
	StunMs     int
	Cells      []RevealedCell
}

// FlagKind discriminates the three toggleFlag outcomes.
type FlagKind int

const (
	FlagIgnored FlagKind = iota
	FlagFlagged
	FlagUnflagged
)

// FlagOutcome is the result of a toggleFlag call.
type FlagOutcome struct {
	Kind FlagKind
	X, Y int
}

// Engine orchestrates the oracle and the persistence repository to
// implement reveal and toggleFlag. It holds no per-cell state of its own;
// all durable facts live in the store.
type Engine struct {
	oracle MineOracle
	store  *store.Store
	w, h   int
}

// New constructs an Engine bound to a mine oracle and a persistence
// repository for a W x H grid.
func New(o MineOracle, s *store.Store, w, h int) *Engine {
	return &Engine{oracle: o, store: s, w: w, h: h}
}

// Reveal implements 4.D.1: fetch, branch on mine vs. safe, and for the safe
// branch run a bounded flood-fill whose peek-then-write pattern is
// intentionally racy, tolerated by concurrent writers landing on disjoint or
// overlapping frontiers.
func (e *Engine) Reveal(ctx context.Context, playerID string, x, y int) (RevealOutcome, error) {
	x, y = wrap(x, e.w), wrap(y, e.h)

	cell, ok, err := e.store.GetCell(ctx, x, y)
	if err != nil {
		return RevealOutcome{}, err
	}
	if ok && (cell.Revealed || cell.Flagged) {
		return RevealOutcome{Kind: RevealIgnored}, nil
	}

	if e.oracle.IsMine(x, y) {
		if err := e.store.UpsertRevealed(ctx, x, y, true, 0); err != nil {
			return RevealOutcome{}, err
		}
		newScore, err := e.store.AddToPlayerScore(ctx, playerID, -MinePenalty, nowUnixMs())
		if err != nil {
			return RevealOutcome{}, err
		}
		return RevealOutcome{
			Kind:       RevealMineHit,
			ScoreDelta: -MinePenalty,
			NewScore:   newScore,
			StunMs:     3000,
			Cells:      []RevealedCell{{X: x, Y: y, IsMine: true}},
		}, nil
	}

	result, err := e.floodFill(ctx, x, y)
	if err != nil {
		return RevealOutcome{}, err
	}
	if len(result) == 0 {
		return RevealOutcome{Kind: RevealIgnored}, nil
	}

	for _, c := range result {
		if err := e.store.UpsertRevealed(ctx, c.X, c.Y, false, c.AdjacentMines); err != nil {
			return RevealOutcome{}, err
		}
	}
	newScore, err := e.store.AddToPlayerScore(ctx, playerID, len(result), nowUnixMs())
	if err != nil {
		return RevealOutcome{}, err
	}

	return RevealOutcome{
		Kind:       RevealSafe,
		ScoreDelta: len(result),
		NewScore:   newScore,
		Cells:      result,
	}, nil
}

// floodFill runs the bounded breadth-first propagation described in 4.D.1.
// It re-checks persistence for each popped cell (another actor may have
// touched it since it was enqueued) and only enqueues a neighbour after a
// peek shows it is neither revealed nor flagged, marking it visited
// unconditionally right after that peek either way.
func (e *Engine) floodFill(ctx context.Context, startX, startY int) ([]RevealedCell, error) {
	type coord struct{ x, y int }

	visited := map[coord]bool{{startX, startY}: true}
	queue := []coord{{startX, startY}}
	var result []RevealedCell

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		cell, ok, err := e.store.GetCell(ctx, cur.x, cur.y)
		if err != nil {
			return nil, err
		}
		if ok && (cell.Revealed || cell.Flagged) {
			continue
		}

		adjacent := e.oracle.AdjacentMines(cur.x, cur.y)
		result = append(result, RevealedCell{X: cur.x, Y: cur.y, AdjacentMines: adjacent})

		if adjacent != 0 {
			continue
		}

		for _, n := range neighbors(cur.x, cur.y, e.w, e.h) {
			nc := coord{n[0], n[1]}
			if visited[nc] {
				continue
			}
			neighborCell, ok, err := e.store.GetCell(ctx, nc.x, nc.y)
			if err != nil {
				return nil, err
			}
			visited[nc] = true
			if ok && (neighborCell.Revealed || neighborCell.Flagged) {
				continue
			}
			queue = append(queue, nc)
		}
	}

	return result, nil
}

// ToggleFlag implements 4.D.2: a flag can only exist on a non-revealed cell,
// and flagging never changes score.
func (e *Engine) ToggleFlag(ctx context.Context, x, y int) (FlagOutcome, error) {
	x, y = wrap(x, e.w), wrap(y, e.h)

	cell, ok, err := e.store.GetCell(ctx, x, y)
	if err != nil {
		return FlagOutcome{}, err
	}
	if ok && cell.Revealed {
		return FlagOutcome{Kind: FlagIgnored}, nil
	}

	if ok && cell.Flagged {
		if err := e.store.SetFlag(ctx, x, y, false); err != nil {
			return FlagOutcome{}, err
		}
		return FlagOutcome{Kind: FlagUnflagged, X: x, Y: y}, nil
	}

	if err := e.store.SetFlag(ctx, x, y, true); err != nil {
		return FlagOutcome{}, err
	}
	return FlagOutcome{Kind: FlagFlagged, X: x, Y: y}, nil
}

func neighbors(x, y, w, h int) [8][2]int {
	var out [8][2]int
	i := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			out[i] = [2]int{wrap(x+dx, w), wrap(y+dy, h)}
			i++
		}
	}
	return out
}

func wrap(v, m int) int {
	if m <= 0 {
		return 0
	}
	v %= m
	if v < 0 {
		v += m
	}
	return v
}
