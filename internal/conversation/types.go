// Package conversation persists the append-only chat history of ordering sessions.
package conversation

import (
	"context"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn stores a single user or assistant message. Turns are never mutated once saved.
type Turn struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	Role        Role      `json:"role"`
	Text        string    `json:"text"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store appends and retrieves conversation turns per session.
type Store interface {
	Append(ctx context.Context, turn Turn) error
	// Recent returns at most limit turns in chronological order. limit <= 0 means all.
	Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	Close() error
}

// Window keeps the last n turns. n <= 0 returns turns unchanged.
func Window(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
