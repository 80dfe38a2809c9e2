package store

import (
	"context"
	"database/sql"
	"fmt"

	"toromines/server/internal/region"
)

// GetCell returns the persisted state of (x, y), or ok=false if the cell has
// never been revealed or flagged.
func (s *Store) GetCell(ctx context.Context, x, y int) (Cell, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT x, y, revealed, is_mine, adjacent_mines, flagged FROM cells WHERE x = ? AND y = ?`,
		x, y)
	c, err := scanCell(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Cell{}, false, nil
		}
		return Cell{}, false, classify(fmt.Errorf("store: get cell (%d,%d): %w", x, y, err))
	}
	return c, true, nil
}

// GetCellsInRegion returns every persisted cell whose coordinates fall
// inside r, built from the wrap-aware interval predicate on each axis.
func (s *Store) GetCellsInRegion(ctx context.Context, r region.Region) ([]Cell, error) {
	xClause, xArgs := intervalSQL("x", r.XMin, r.XMax)
	yClause, yArgs := intervalSQL("y", r.YMin, r.YMax)

	query := fmt.Sprintf(
		`SELECT x, y, revealed, is_mine, adjacent_mines, flagged FROM cells WHERE (%s) AND (%s)`,
		xClause, yClause,
	)
	args := append(xArgs, yArgs...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("store: get cells in region: %w", err))
	}
	defer rows.Close()

	var cells []Cell
	for rows.Next() {
		c, err := scanCell(rows)
		if err != nil {
			return nil, classify(fmt.Errorf("store: scan cell in region: %w", err))
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("store: iterate cells in region: %w", err))
	}
	return cells, nil
}

// intervalSQL builds the SQL predicate for a wrap-aware interval on column
// col: a contiguous BETWEEN when lo <= hi, or the OR'd wraparound form
// otherwise.
func intervalSQL(col string, lo, hi int) (string, []any) {
	if lo <= hi {
		return fmt.Sprintf("%s BETWEEN ? AND ?", col), []any{lo, hi}
	}
	return fmt.Sprintf("%s >= ? OR %s <= ?", col, col), []any{lo, hi}
}

// UpsertRevealed records (x, y) as revealed with the given mine status and
// adjacency count. adjacentMines is ignored (stored as NULL) when isMine is
// true, since a revealed mine has no meaningful neighbour count.
func (s *Store) UpsertRevealed(ctx context.Context, x, y int, isMine bool, adjacentMines int) error {
	var adjacent sql.NullInt64
	if !isMine {
		adjacent = sql.NullInt64{Int64: int64(adjacentMines), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cells (x, y, revealed, is_mine, adjacent_mines, flagged)
		 VALUES (?, ?, 1, ?, ?, 0)
		 ON CONFLICT (x, y) DO UPDATE SET
		   revealed = 1,
		   is_mine = excluded.is_mine,
		   adjacent_mines = excluded.adjacent_mines`,
		x, y, boolToInt(isMine), adjacent,
	)
	if err != nil {
		return classify(fmt.Errorf("store: upsert revealed (%d,%d): %w", x, y, err))
	}
	return nil
}

// SetFlag sets or clears the flag on (x, y). Flagging a revealed cell is a
// no-op at this layer; callers (the cell engine) are responsible for
// rejecting that case before calling down.
func (s *Store) SetFlag(ctx context.Context, x, y int, flagged bool) error {
	if flagged {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO cells (x, y, revealed, is_mine, adjacent_mines, flagged)
			 VALUES (?, ?, 0, 0, NULL, 1)
			 ON CONFLICT (x, y) DO UPDATE SET flagged = 1
			 WHERE revealed = 0`,
			x, y,
		)
		if err != nil {
			return classify(fmt.Errorf("store: set flag (%d,%d): %w", x, y, err))
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cells WHERE x = ? AND y = ? AND revealed = 0`,
		x, y,
	)
	if err != nil {
		return classify(fmt.Errorf("store: clear flag (%d,%d): %w", x, y, err))
	}
	return nil
}

func scanCell(row interface{ Scan(...any) error }) (Cell, error) {
	var c Cell
	var revealed, isMine, flagged int
	var adjacent sql.NullInt64
	if err := row.Scan(&c.X, &c.Y, &revealed, &isMine, &adjacent, &flagged); err != nil {
		return Cell{}, err
	}
	c.Revealed = revealed != 0
	c.IsMine = isMine != 0
	c.Flagged = flagged != 0
	if adjacent.Valid {
		c.AdjacentMines = int(adjacent.Int64)
	}
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
