// Package storage holds the persistence collaborators of the realtime gateway: the
// append-only chat message log and the user directory used to resolve identities.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user not found")

// NewMessage is what the chat service hands to the store. Sender name and role are
// carried along so denormalized backends can answer history without a user join.
type NewMessage struct {
	AppointmentID int64
	SenderID      int64
	SenderName    string
	SenderRole    string
	Body          string
}

// Persisted is the store's receipt: its id and the timestamp it assigned.
type Persisted struct {
	ID        string
	Timestamp time.Time
}

// ChatMessage is one entry of a room's history.
type ChatMessage struct {
	ID            string    `json:"id"`
	AppointmentID int64     `json:"appointment"`
	SenderID      int64     `json:"sender"`
	SenderName    string    `json:"sender_name"`
	SenderRole    string    `json:"sender_role"`
	Body          string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// MessageStore is the append-only message log. History returns the full history of an
// appointment ordered by creation.
type MessageStore interface {
	Persist(ctx context.Context, msg NewMessage) (Persisted, error)
	History(ctx context.Context, appointmentID int64) ([]ChatMessage, error)
}

// User is the subset of the account record the gateway needs.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
}

// DisplayName is the full name, or the username when no name is set.
func (u User) DisplayName() string {
	full := u.FirstName
	if u.LastName != "" {
		if full != "" {
			full += " "
		}
		full += u.LastName
	}
	if full == "" {
		return u.Username
	}
	return full
}

// UserStore resolves user ids. FindUser returns ErrUserNotFound for unknown or
// deactivated accounts.
type UserStore interface {
	FindUser(ctx context.Context, id int64) (User, error)
}
