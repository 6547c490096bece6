// Package domain contains core domain types for the support router.
package domain

import (
	"time"
)

// Session represents one customer-support conversation.
type Session struct {
	SessionID      string            `json:"session_id"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	UserData       map[string]string `json:"user_data,omitempty"`
}

// Duration returns the elapsed time since the session was created.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(s.CreatedAt)
}

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks messages sent by the customer.
	RoleUser Role = "user"
	// RoleAssistant marks messages produced by a specialist.
	RoleAssistant Role = "assistant"
)

// ConversationMessage is one entry in a session's bounded history.
type ConversationMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentState holds per-(session, specialist) working state. It lives in
// the cache layer only while the session is active. Topics records what
// the specialist has already handled (order ids for the order specialist,
// policy topics for the FAQ specialist).
type AgentState struct {
	AgentName string    `json:"agent_name"`
	SessionID string    `json:"session_id"`
	Topics    []string  `json:"topics,omitempty"`
	Queries   int       `json:"queries"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordTopic appends topic if it is not already present.
func (a *AgentState) RecordTopic(topic string) {
	for _, t := range a.Topics {
		if t == topic {
			return
		}
	}
	a.Topics = append(a.Topics, topic)
}
