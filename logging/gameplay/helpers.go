// Package gameplay publishes cell-reveal, mine-hit, and flag-toggle events
// onto the shared event router.
package gameplay

import (
	"context"

	"toromines/server/logging"
)

const (
	// EventCellRevealed is emitted for every cell a reveal (including its
	// flood-fill) uncovers.
	EventCellRevealed logging.EventType = "gameplay.cell_revealed"
	// EventMineHit is emitted when a reveal lands on a mine.
	EventMineHit logging.EventType = "gameplay.mine_hit"
	// EventFlagToggled is emitted when a flag is placed or cleared.
	EventFlagToggled logging.EventType = "gameplay.flag_toggled"
)

// CellRevealedPayload describes one uncovered cell.
type CellRevealedPayload struct {
	X             int `json:"x"`
	Y             int `json:"y"`
	AdjacentMines int `json:"adjacentMines"`
}

// MineHitPayload captures the coordinate and score impact of a mine hit.
type MineHitPayload struct {
	X         int `json:"x"`
	Y         int `json:"y"`
	Penalty   int `json:"penalty"`
	NewScore  int `json:"newScore"`
	StunMs    int `json:"stunMs"`
}

// FlagToggledPayload captures a flag placement or removal.
type FlagToggledPayload struct {
	X       int  `json:"x"`
	Y       int  `json:"y"`
	Flagged bool `json:"flagged"`
}

// CellRevealed publishes a debug event for one revealed cell.
func CellRevealed(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload CellRevealedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCellRevealed,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: "gameplay",
		Payload:  payload,
		Extra:    extra,
	})
}

// MineHit publishes an info event for a mine hit.
func MineHit(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload MineHitPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMineHit,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: "gameplay",
		Payload:  payload,
		Extra:    extra,
	})
}

// FlagToggled publishes a debug event for a flag placement or removal.
func FlagToggled(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload FlagToggledPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFlagToggled,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: "gameplay",
		Payload:  payload,
		Extra:    extra,
	})
}
