package store

import (
	"context"
	"database/sql"
	"fmt"
)

// FindOrCreatePlayer loads the persisted player row for id, creating it with
// a zero score if it does not exist, and refreshes last_seen_unix_ms either
// way.
func (s *Store) FindOrCreatePlayer(ctx context.Context, id string, nowUnixMs int64) (Player, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO players (player_id, score, last_seen_unix_ms)
		 VALUES (?, 0, ?)
		 ON CONFLICT (player_id) DO UPDATE SET last_seen_unix_ms = excluded.last_seen_unix_ms`,
		id, nowUnixMs,
	)
	if err != nil {
		return Player{}, classify(fmt.Errorf("store: find or create player %s: %w", id, err))
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT player_id, score, last_seen_unix_ms FROM players WHERE player_id = ?`, id)
	var p Player
	if err := row.Scan(&p.ID, &p.Score, &p.LastSeenUnixMs); err != nil {
		return Player{}, classify(fmt.Errorf("store: load player %s: %w", id, err))
	}
	return p, nil
}

// TouchPlayer refreshes last_seen_unix_ms for an existing player without
// touching score.
func (s *Store) TouchPlayer(ctx context.Context, id string, nowUnixMs int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE players SET last_seen_unix_ms = ? WHERE player_id = ?`, nowUnixMs, id)
	if err != nil {
		return classify(fmt.Errorf("store: touch player %s: %w", id, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return classify(fmt.Errorf("store: touch player %s: %w", id, sql.ErrNoRows))
	}
	return nil
}

// AddToPlayerScore atomically adds delta to the player's score and returns
// the resulting total. Callers refresh any cached score from this return
// value rather than adding delta to a value they held locally, so a second
// writer's concurrent update is never silently lost.
func (s *Store) AddToPlayerScore(ctx context.Context, id string, delta int, nowUnixMs int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(fmt.Errorf("store: add to score %s: begin: %w", id, err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO players (player_id, score, last_seen_unix_ms) VALUES (?, 0, ?)
		 ON CONFLICT (player_id) DO NOTHING`,
		id, nowUnixMs,
	); err != nil {
		return 0, classify(fmt.Errorf("store: add to score %s: ensure row: %w", id, err))
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE players SET score = score + ?, last_seen_unix_ms = ? WHERE player_id = ?`,
		delta, nowUnixMs, id,
	); err != nil {
		return 0, classify(fmt.Errorf("store: add to score %s: update: %w", id, err))
	}

	var newScore int
	row := tx.QueryRowContext(ctx, `SELECT score FROM players WHERE player_id = ?`, id)
	if err := row.Scan(&newScore); err != nil {
		return 0, classify(fmt.Errorf("store: add to score %s: reload: %w", id, err))
	}

	if err := tx.Commit(); err != nil {
		return 0, classify(fmt.Errorf("store: add to score %s: commit: %w", id, err))
	}
	return newScore, nil
}
