// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store provides SQLite persistence for the recording ledger, the
// tuner inventory and library media.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// Store wraps the dvrd database.
type Store struct {
	db *sql.DB
}

// New initializes the SQLite store and runs migrations.
// WAL + busy_timeout for mixed reader/writer workload; _txlock=immediate so
// explicit transactions take the write lock up front (admission check relies
// on this to serialize read-count-decide-write sequences).
// modernc.org/sqlite expects pragmas as _pragma=name(value) DSN parameters.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity, for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tuners (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		addr TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		tuner_count INTEGER NOT NULL CHECK(tuner_count > 0),
		created INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		tuner_id TEXT NOT NULL REFERENCES tuners(id) ON DELETE CASCADE,
		number TEXT NOT NULL,
		name TEXT NOT NULL,
		stream TEXT NOT NULL,
		hd INTEGER NOT NULL DEFAULT 0,
		UNIQUE (tuner_id, number)
	);

	CREATE TABLE IF NOT EXISTS programs (
		id TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		subtitle TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		start INTEGER NOT NULL,
		stop INTEGER NOT NULL,
		duration INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS media (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL CHECK(type IN ('show', 'movie', 'music')),
		path TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		subtitle TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		program_id TEXT UNIQUE REFERENCES programs(id) ON DELETE SET NULL,
		season INTEGER,
		episode TEXT,
		year INTEGER,
		artist TEXT,
		album TEXT,
		created INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		program_id TEXT NOT NULL UNIQUE REFERENCES programs(id) ON DELETE CASCADE,
		show_id TEXT REFERENCES media(id) ON DELETE SET NULL,
		start INTEGER NOT NULL,
		stop INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'none'
			CHECK(status IN ('none', 'recording', 'error', 'done')),
		pid INTEGER,
		created INTEGER NOT NULL,
		modified INTEGER NOT NULL,
		CHECK(stop > start)
	);

	CREATE INDEX IF NOT EXISTS idx_recordings_status ON recordings(status);
	CREATE INDEX IF NOT EXISTS idx_recordings_window ON recordings(start, stop);
	CREATE INDEX IF NOT EXISTS idx_programs_channel ON programs(channel_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// InTx runs fn inside a single transaction. With _txlock=immediate the write
// lock is held for the whole read-decide-write sequence.
func (s *Store) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Times are stored as unix nanoseconds so purge cutoffs compare exactly.
func toNanos(t time.Time) int64   { return t.UnixNano() }
func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }
