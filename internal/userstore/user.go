// Package userstore manages the identities that bearer credentials resolve
// to. Row-level ownership checks elsewhere key off the user id stored here.
package userstore

import (
	"context"
	"time"
)

// Status captures whether a user may open streams.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// User represents an identity known to the service.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists users across the SQLite/Postgres backends.
type Store interface {
	// EnsureUser finds or provisions an active user for the email.
	EnsureUser(ctx context.Context, email string) (*User, error)
	// FindByEmail returns the user matching the email, or nil when absent.
	FindByEmail(ctx context.Context, email string) (*User, error)
	Close() error
}
