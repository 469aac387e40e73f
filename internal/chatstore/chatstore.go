// Package chatstore persists chat sessions and their messages. It is the
// system of record for conversations: the server owns every write, clients
// only ever read back what was persisted.
package chatstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Role identifies which side of the conversation authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrNotFound is returned when a session id does not resolve. Callers must
// not distinguish "missing" from "owned by someone else"; the HTTP layer maps
// both to the same response.
var ErrNotFound = errors.New("chatstore: session not found")

// Session is one conversation owned by a single user.
type Session struct {
	ID        string    `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one turn in a conversation. Rows are immutable once inserted.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate rejects messages that must never reach storage.
func (m Message) Validate() error {
	if m.SessionID == "" {
		return errors.New("chatstore: message requires session id")
	}
	if m.Role != RoleUser && m.Role != RoleAssistant {
		return errors.New("chatstore: invalid role")
	}
	if strings.TrimSpace(m.Content) == "" {
		return errors.New("chatstore: message content empty")
	}
	return nil
}

// Store defines persistence behaviour across the SQLite/Postgres backends.
// ListMessages is the read accessor the summarization feature consumes:
// ascending creation order, ties broken by insert order.
type Store interface {
	CreateSession(ctx context.Context, ownerID int64, title string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, ownerID int64) ([]Session, error)
	InsertMessage(ctx context.Context, msg Message) (*Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]Message, error)
	Close() error
}
