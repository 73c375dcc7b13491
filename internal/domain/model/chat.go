package model

import "time"

// Role identifies the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// SessionState tracks where a session is in its request cycle.
type SessionState string

const (
	StateAwaitingInput SessionState = "awaiting_input"
	StateRetrieving    SessionState = "retrieving"
	StateResponding    SessionState = "responding"
)

// Session is an ordered conversation. Turns are append-only.
type Session struct {
	ID        string       `json:"id"`
	Turns     []Turn       `json:"turns"`
	State     SessionState `json:"state"`
	UpdatedAt time.Time    `json:"updated_at"`
}
