package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	// register pgx database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/talkwire/talkwire/internal/chatstore"
)

// Store implements chatstore.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// Config holds connection pool settings.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns sensible defaults for connection pooling.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// New opens a PostgreSQL-backed chat store using the provided DSN.
func New(dsn string, cfg Config) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
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
	id UUID PRIMARY KEY,
	owner_id BIGINT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_messages (
	seq BIGSERIAL PRIMARY KEY,
	id UUID NOT NULL UNIQUE,
	session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL CHECK(role IN ('user','assistant')),
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
INSERT INTO chat_sessions(id, owner_id, title, created_at) VALUES($1, $2, $3, $4)`,
		sess.ID, sess.OwnerID, sess.Title, sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &sess, nil
}

// GetSession resolves a session id, returning chatstore.ErrNotFound when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*chatstore.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, chatstore.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, owner_id, title, created_at FROM chat_sessions WHERE id = $1`, id)
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
WHERE owner_id = $1 ORDER BY created_at DESC, id`, ownerID)
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
VALUES($1, $2, $3, $4, $5)`,
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
WHERE session_id = $1 ORDER BY created_at ASC, seq ASC`, sessionID)
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
