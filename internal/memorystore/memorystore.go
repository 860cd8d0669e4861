// Package memorystore implements ports.MemoryStore on SQLite: a single
// long-term memory document plus a day-keyed append-only log of recent
// notes, generalizing the teacher's workspace-scoped persistence pattern to
// this domain's long-term/recent memory split (spec §4.3, "Memory").
package memorystore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const longTermKey = "long_term"

// Store is a SQLite-backed ports.MemoryStore.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the memory database at path and ensures
// its schema exists. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("memorystore: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS long_term_memory (
	key   TEXT PRIMARY KEY,
	text  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS recent_notes (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	day     TEXT NOT NULL,
	note    TEXT NOT NULL,
	ts_ms   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS recent_notes_day_idx ON recent_notes(day);
`)
	if err != nil {
		return fmt.Errorf("memorystore: init schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// ReadLongTerm returns the long-term memory document, or "" if never set.
func (s *Store) ReadLongTerm(ctx context.Context) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT text FROM long_term_memory WHERE key = ?`, longTermKey).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memorystore: read long-term: %w", err)
	}
	return text, nil
}

// WriteLongTerm overwrites the long-term memory document.
func (s *Store) WriteLongTerm(ctx context.Context, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO long_term_memory (key, text) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET text = excluded.text`,
		longTermKey, text)
	if err != nil {
		return fmt.Errorf("memorystore: write long-term: %w", err)
	}
	return nil
}

// ReadRecent concatenates notes from the last `days` calendar days, oldest
// first, one per line.
func (s *Store) ReadRecent(ctx context.Context, days int) (string, error) {
	if days <= 0 {
		return "", nil
	}
	cutoff := time.Now().AddDate(0, 0, -(days - 1)).Format("2006-01-02")
	rows, err := s.db.QueryContext(ctx,
		`SELECT note FROM recent_notes WHERE day >= ? ORDER BY ts_ms ASC`, cutoff)
	if err != nil {
		return "", fmt.Errorf("memorystore: read recent: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var note string
		if err := rows.Scan(&note); err != nil {
			return "", err
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(note)
	}
	return b.String(), rows.Err()
}

// AppendToday appends note under today's date key.
func (s *Store) AppendToday(ctx context.Context, note string) error {
	today := time.Now().Format("2006-01-02")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recent_notes (day, note, ts_ms) VALUES (?, ?, ?)`,
		today, note, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("memorystore: append today: %w", err)
	}
	return nil
}
