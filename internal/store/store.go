// Package store persists revealed cells, flags, and player scores so a
// restarted server can resume the game in progress instead of starting from
// an empty board. The mine field itself is never stored; it is recomputed on
// demand from the oracle.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite-backed connection pool. Zero value is not usable;
// construct with Open.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path, enables WAL
// journaling, and ensures the schema exists. The pool is limited to a single
// connection, so every query made through the Store runs one at a time.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool. Safe to call once after all
// in-flight queries have returned.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS cells (
	x INTEGER NOT NULL,
	y INTEGER NOT NULL,
	revealed INTEGER NOT NULL DEFAULT 0,
	is_mine INTEGER NOT NULL DEFAULT 0,
	adjacent_mines INTEGER,
	flagged INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (x, y)
);

CREATE TABLE IF NOT EXISTS players (
	player_id TEXT PRIMARY KEY,
	score INTEGER NOT NULL DEFAULT 0,
	last_seen_unix_ms INTEGER NOT NULL
);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return classify(fmt.Errorf("store: migrate: %w", err))
	}
	return nil
}
