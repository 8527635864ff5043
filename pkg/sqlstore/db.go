// Package sqlstore holds the pieces every SQLite-backed component in this
// module shares: connection setup and an embedded-migration runner.
// Grounded on the teacher's pkg/sqlite/eventstore.go (connection pool
// setup, WAL pragmas) and pkg/store/sqlite/migrate/migrate.go (the
// migrator itself, generalized here so the event store, audit log, and
// message log can each embed their own migration set against it).
package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Options configures how Open connects to a SQLite database.
type Options struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	WALMode      bool
}

// DefaultOptions mirrors the teacher's defaultEventStoreConfig, minus the
// auto-migrate flag: migrations are the caller's explicit responsibility
// here (via Migrator), not an implicit side effect of opening a handle.
func DefaultOptions(dsn string) Options {
	return Options{DSN: dsn, MaxOpenConns: 25, MaxIdleConns: 5, WALMode: true}
}

// Open opens a pure-Go (no CGo) SQLite handle and applies the connection
// pool and journal-mode settings from opts.
func Open(opts Options) (*sql.DB, error) {
	db, err := sql.Open("sqlite", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("eventcore: open sqlite database: %w", err)
	}

	if opts.DSN == ":memory:" {
		// Each connection to ":memory:" is an isolated database; pin the
		// pool to one connection so every query sees the same data.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	if opts.WALMode && opts.DSN != ":memory:" {
		if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL; PRAGMA foreign_keys = ON;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("eventcore: set WAL mode: %w", err)
		}
	} else {
		if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("eventcore: set pragmas: %w", err)
		}
	}

	return db, nil
}
