// Package sqlitestore implements registry.Registry on an embedded SQLite
// database via the pure Go modernc.org/sqlite driver, so single-node
// deployments need no external services at all.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scrypster/aibuddy/internal/registry"
	"github.com/scrypster/aibuddy/pkg/types"
)

// Store is a SQLite-backed registry.
type Store struct {
	db *sql.DB
}

var _ registry.Registry = (*Store)(nil)

// Open opens (creating if needed) the database at path and prepares the
// schema. Use ":memory:" for an ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent turn handling.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT '',
			user_id    TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			user_input TEXT NOT NULL,
			ai_output  TEXT NOT NULL,
			user_id    TEXT NOT NULL DEFAULT '',
			timestamp  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session
			ON chat_messages(session_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS session_summaries (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id      TEXT NOT NULL,
			teacher_summary TEXT NOT NULL,
			student_summary TEXT NOT NULL,
			user_id         TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_summaries_user
			ON session_summaries(user_id, created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitestore: init schema: %w", err)
		}
	}
	return nil
}

// InsertTurn appends one exchange to the transcript.
func (s *Store) InsertTurn(ctx context.Context, turn types.ChatTurn) error {
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, user_input, ai_output, user_id, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		turn.SessionID, turn.UserInput, turn.AIOutput, turn.UserID, formatTime(ts))
	if err != nil {
		return fmt.Errorf("sqlitestore: insert turn: %w", err)
	}
	return nil
}

// FetchHistory returns up to limit turns in chronological order.
func (s *Store) FetchHistory(ctx context.Context, sessionID string, limit int) ([]types.ChatTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, user_input, ai_output, user_id, timestamp
		 FROM chat_messages WHERE session_id = ?
		 ORDER BY timestamp ASC, id ASC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: fetch history: %w", err)
	}
	defer rows.Close()

	var turns []types.ChatTurn
	for rows.Next() {
		var (
			turn types.ChatTurn
			ts   string
		)
		if err := rows.Scan(&turn.SessionID, &turn.UserInput, &turn.AIOutput, &turn.UserID, &ts); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan turn: %w", err)
		}
		turn.Timestamp = parseTime(ts)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// TouchSession upserts the session row, bumping updated_at.
func (s *Store) TouchSession(ctx context.Context, sessionID, userID string) error {
	now := formatTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			user_id = CASE WHEN excluded.user_id != '' THEN excluded.user_id ELSE sessions.user_id END`,
		sessionID, userID, now, now)
	if err != nil {
		return fmt.Errorf("sqlitestore: touch session: %w", err)
	}
	return nil
}

// RenameSession sets the title, creating the row if needed.
func (s *Store) RenameSession(ctx context.Context, sessionID, title string) error {
	now := formatTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at`,
		sessionID, title, now, now)
	if err != nil {
		return fmt.Errorf("sqlitestore: rename session: %w", err)
	}
	return nil
}

// ListSessions returns all sessions, most recently active first. Activity is
// the later of the session's updated_at and its newest transcript message.
func (s *Store) ListSessions(ctx context.Context) ([]types.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.session_id, s.title, s.user_id, s.created_at, s.updated_at
		 FROM sessions s
		 LEFT JOIN (
			SELECT session_id, MAX(timestamp) AS last_time
			FROM chat_messages GROUP BY session_id
		 ) m ON m.session_id = s.session_id
		 ORDER BY COALESCE(MAX(m.last_time, s.updated_at), s.updated_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		var (
			session            types.Session
			createdAt, updated string
		)
		if err := rows.Scan(&session.SessionID, &session.Title, &session.UserID, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan session: %w", err)
		}
		session.CreatedAt = parseTime(createdAt)
		session.UpdatedAt = parseTime(updated)
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// DeleteSession removes the session row and its whole transcript.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("sqlitestore: delete session: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("sqlitestore: delete session messages: %w", err)
	}
	return nil
}

// InsertSummary appends one immutable summary record.
func (s *Store) InsertSummary(ctx context.Context, summary types.SessionSummary) error {
	createdAt := summary.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_summaries (session_id, teacher_summary, student_summary, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		summary.SessionID, summary.TeacherSummary, summary.StudentSummary, summary.UserID, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("sqlitestore: insert summary: %w", err)
	}
	return nil
}

// FetchRecentSummaries returns the newest summaries, most recent first.
func (s *Store) FetchRecentSummaries(ctx context.Context, userID string, limit int) ([]types.SessionSummary, error) {
	query := `SELECT session_id, teacher_summary, student_summary, user_id, created_at
		 FROM session_summaries`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: fetch summaries: %w", err)
	}
	defer rows.Close()

	var summaries []types.SessionSummary
	for rows.Next() {
		var (
			summary   types.SessionSummary
			createdAt string
		)
		if err := rows.Scan(&summary.SessionID, &summary.TeacherSummary, &summary.StudentSummary,
			&summary.UserID, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan summary: %w", err)
		}
		summary.CreatedAt = parseTime(createdAt)
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
