package store

import (
	"errors"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrTransient, ErrConflict, and ErrFatal are the three provenances a
// repository call can fail with: retry-worthy contention, a write that lost
// a race to another writer, and everything else.
var (
	ErrTransient = errors.New("store: transient failure, retry may help")
	ErrConflict  = errors.New("store: write lost to a concurrent writer")
	ErrFatal     = errors.New("store: unrecoverable storage failure")
)

// classify maps a raw database/sql or driver error onto the repository's
// error taxonomy, following the SQLite error-code inspection the pack's
// sqlite-backed stores use.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return wrap(ErrTransient, err)
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return wrap(ErrConflict, err)
		default:
			return wrap(ErrFatal, err)
		}
	}
	return wrap(ErrFatal, err)
}

func wrap(sentinel, cause error) error {
	return &classified{sentinel: sentinel, cause: cause}
}

type classified struct {
	sentinel error
	cause    error
}

func (c *classified) Error() string {
	return c.sentinel.Error() + ": " + c.cause.Error()
}

func (c *classified) Unwrap() error {
	return c.cause
}

func (c *classified) Is(target error) bool {
	return target == c.sentinel
}
