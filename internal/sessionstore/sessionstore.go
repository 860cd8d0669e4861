// Package sessionstore implements ports.SessionStore on SQLite, the
// per-chat conversation log referenced by assistant.go's sessionStore field
// and generalized here to spec's multi-channel chat_id keying.
package sessionstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jholhewres/mimiclaw/internal/ports"
)

func nowMs() int64 { return time.Now().UnixMilli() }

// Store is a SQLite-backed ports.SessionStore.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the session database at path and ensures
// its schema exists. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS session_turns (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id   TEXT NOT NULL,
	role      TEXT NOT NULL,
	text      TEXT NOT NULL,
	ts_ms     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS session_turns_chat_ts_idx ON session_turns(chat_id, ts_ms);
`)
	if err != nil {
		return fmt.Errorf("sessionstore: init schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Append records one (role, text) turn for chatID, stamped with the current
// time. No SESSION_MAX_MSGS trimming happens here; History(..., maxTurns)
// performs the cap at read time, matching the teacher's pattern of capping
// on the read path rather than pruning eagerly on every write.
func (s *Store) Append(ctx context.Context, chatID, role, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_turns (chat_id, role, text, ts_ms) VALUES (?, ?, ?, ?)`,
		chatID, role, text, nowMs())
	if err != nil {
		return fmt.Errorf("sessionstore: append: %w", err)
	}
	return nil
}

// History returns the most recent maxTurns entries for chatID, oldest first.
func (s *Store) History(ctx context.Context, chatID string, maxTurns int) ([]ports.SessionTurn, error) {
	if maxTurns <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, ts_ms FROM session_turns WHERE chat_id = ? ORDER BY ts_ms DESC, id DESC LIMIT ?`,
		chatID, maxTurns)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: history query: %w", err)
	}
	defer rows.Close()

	var reversed []ports.SessionTurn
	for rows.Next() {
		var t ports.SessionTurn
		if err := rows.Scan(&t.Role, &t.Text, &t.TsMs); err != nil {
			return nil, fmt.Errorf("sessionstore: history scan: %w", err)
		}
		reversed = append(reversed, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ports.SessionTurn, len(reversed))
	for i, t := range reversed {
		out[len(reversed)-1-i] = t
	}
	return out, nil
}

// Clear deletes all recorded turns for chatID.
func (s *Store) Clear(ctx context.Context, chatID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_turns WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("sessionstore: clear: %w", err)
	}
	return nil
}

// ListChats returns the distinct chat_ids with at least one recorded turn.
func (s *Store) ListChats(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT chat_id FROM session_turns`)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: list chats: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var chatID string
		if err := rows.Scan(&chatID); err != nil {
			return nil, err
		}
		out = append(out, chatID)
	}
	return out, rows.Err()
}
