package session

import "time"

// CreateRequest defines payload for creating a new session.
type CreateRequest struct {
	UserID          string `json:"user_id"`
	Role            Role   `json:"role"`
	CustomerName    string `json:"customer_name"`
	CustomerAddress string `json:"customer_address"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	Role            Role      `json:"role"`
	Status          Status    `json:"status"`
	Greeting        string    `json:"greeting"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}
