package domain

import "time"

// ChatRole author of a chat message.
type ChatRole string

const (
	ChatRoleUser   ChatRole = "user"
	ChatRoleBot    ChatRole = "bot"
	ChatRoleSystem ChatRole = "system"
)

// SessionStatus chat session lifecycle state.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionArchived  SessionStatus = "archived"
)

// ChatbotSession groups the messages of one conversation.
type ChatbotSession struct {
	ID             string        `json:"id"`
	UserID         string        `json:"userId"`
	Status         SessionStatus `json:"status"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// ChatbotMessage one chat turn. IsSynced is local bookkeeping.
type ChatbotMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	IsSynced  bool      `json:"isSynced"`
	CreatedAt time.Time `json:"createdAt"`
}
