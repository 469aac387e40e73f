package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/talkwire/talkwire/internal/chatstore"
)

// Store implements chatstore.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite chat store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create chat store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id TEXT PRIMARY KEY,
	owner_id INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chat_messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL CHECK(role IN ('user','assistant')),
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chat_sessions_owner ON chat_sessions(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at, seq);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new conversation owned by ownerID.
func (s *Store) CreateSession(ctx context.Context, ownerID int64, title string) (*chatstore.Session, error) {
	if ownerID == 0 {
		return nil, errors.New("chatstore: session requires owner id")
	}
	sess := chatstore.Session{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     strings.TrimSpace(title),
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO chat_sessions(id, owner_id, title, created_at) VALUES(?, ?, ?, ?)`,
		sess.ID, sess.OwnerID, sess.Title, sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &sess, nil
}

// GetSession resolves a session id, returning chatstore.ErrNotFound when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*chatstore.Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, owner_id, title, created_at FROM chat_sessions WHERE id = ?`, id)
	var sess chatstore.Session
	if err := row.Scan(&sess.ID, &sess.OwnerID, &sess.Title, &sess.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, chatstore.ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns the owner's sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, ownerID int64) ([]chatstore.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, owner_id, title, created_at FROM chat_sessions
WHERE owner_id = ? ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []chatstore.Session
	for rows.Next() {
		var sess chatstore.Session
		if err := rows.Scan(&sess.ID, &sess.OwnerID, &sess.Title, &sess.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// InsertMessage appends one immutable turn to a session.
func (s *Store) InsertMessage(ctx context.Context, msg chatstore.Message) (*chatstore.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO chat_messages(id, session_id, role, content, created_at)
VALUES(?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

// ListMessages returns a session's messages in ascending creation order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]chatstore.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, role, content, created_at FROM chat_messages
WHERE session_id = ? ORDER BY created_at ASC, seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []chatstore.Message
	for rows.Next() {
		var msg chatstore.Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = chatstore.Role(role)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
