package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole is the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Valid reports whether r is user or assistant.
func (r MessageRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// SessionState is the conversation state derived from stored messages and in-flight turns.
type SessionState string

const (
	SessionIdle              SessionState = "idle"
	SessionAwaitingAssistant SessionState = "awaiting_assistant"
	SessionContextExhausted  SessionState = "context_exhausted"
)

// Session is a multi-turn conversation scoped to one database.
type Session struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	DBID         string     `json:"db_id"`
	Title        string     `json:"title"`
	ProjectID    *uuid.UUID `json:"project_id"`
	MessageCount int        `json:"message_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SessionDetail is a session with its ordered messages and derived state.
type SessionDetail struct {
	Session
	Messages     []*Message   `json:"messages"`
	State        SessionState `json:"state"`
	ContextLimit int          `json:"context_limit"`
}

// Message is one turn in a session. Position is 1-based and unique per session.
type Message struct {
	ID          uuid.UUID       `json:"id"`
	SessionID   uuid.UUID       `json:"session_id"`
	Position    int             `json:"position"`
	Role        MessageRole     `json:"role"`
	Content     string          `json:"content"`
	Query       *string         `json:"query"`
	Results     *ResultEnvelope `json:"results"`
	ChartConfig *ChartConfig    `json:"chart_config"`
	CreatedAt   time.Time       `json:"created_at"`
}

// HasQuery reports whether the message carries a non-empty query.
func (m *Message) HasQuery() bool {
	return m.Query != nil && *m.Query != ""
}

// MessagePatch holds the fields a message patch may set. Nil fields are left unchanged.
type MessagePatch struct {
	Results     *ResultEnvelope
	ChartConfig *ChartConfig
}

// IsEmpty reports whether the patch changes nothing.
func (p MessagePatch) IsEmpty() bool {
	return p.Results == nil && p.ChartConfig == nil
}
