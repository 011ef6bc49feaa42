package story

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/storyva/storyva/internal/markup/diff"
)

// ErrSessionNotFound is returned by [Store.Load] for unknown session ids.
var ErrSessionNotFound = errors.New("story: session not found")

// Store persists sessions in SQLite so a reconnecting client recovers its
// story text and edit history. Safe for concurrent use; SQLite serialises
// writers via WAL.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the session database at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("story: create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("story: open db: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("story: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id           TEXT PRIMARY KEY,
		current_text TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS applied_diffs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		payload    TEXT NOT NULL,
		applied_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_applied_session ON applied_diffs(session_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database is reachable; used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// CreateSession persists a new session with the given initial text and
// returns its in-memory [State].
func (s *Store) CreateSession(ctx context.Context, text string) (*State, error) {
	id := ulid.Make().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, current_text, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, text, now, now)
	if err != nil {
		return nil, fmt.Errorf("story: create session: %w", err)
	}
	return NewState(id, text), nil
}

// SaveText records the session's current text.
func (s *Store) SaveText(ctx context.Context, sessionID, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET current_text = ?, updated_at = ? WHERE id = ?`,
		text, time.Now().UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("story: save text: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AppendDiff records an applied diff in the session's history.
func (s *Store) AppendDiff(ctx context.Context, sessionID string, applied AppliedDiff) error {
	payload, err := json.Marshal(applied.Diff)
	if err != nil {
		return fmt.Errorf("story: encode diff: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO applied_diffs (session_id, payload, applied_at) VALUES (?, ?, ?)`,
		sessionID, string(payload), applied.AppliedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("story: append diff: %w", err)
	}
	return nil
}

// Load restores a persisted session, including its applied-diff history.
func (s *Store) Load(ctx context.Context, sessionID string) (*State, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT current_text FROM sessions WHERE id = ?`, sessionID).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("story: load session: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload, applied_at FROM applied_diffs WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("story: load history: %w", err)
	}
	defer rows.Close()

	var history []AppliedDiff
	for rows.Next() {
		var (
			payload   string
			appliedAt string
		)
		if err := rows.Scan(&payload, &appliedAt); err != nil {
			return nil, fmt.Errorf("story: scan history: %w", err)
		}
		var d diff.EmotionDiff
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			return nil, fmt.Errorf("story: decode diff: %w", err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, appliedAt)
		history = append(history, AppliedDiff{Diff: d, AppliedAt: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("story: iterate history: %w", err)
	}

	st := NewState(sessionID, text)
	st.restoreHistory(history)
	return st, nil
}
