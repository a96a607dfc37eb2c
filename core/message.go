package core

import (
	"time"

	"github.com/google/uuid"
)

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// Valid reports whether the role belongs to the closed set of transcript roles.
func (r MessageRole) Valid() bool {
	switch r {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleSystem:
		return true
	default:
		return false
	}
}

type MessageStatus string

const (
	MessageStatusNone     MessageStatus = ""         // user and system messages carry no status
	MessageStatusPending  MessageStatus = "pending"  // assistant reply still in flight
	MessageStatusComplete MessageStatus = "complete" // assistant reply received
	MessageStatusFailed   MessageStatus = "failed"   // assistant reply abandoned or errored
)

// Terminal reports whether the status is final for an assistant message.
func (s MessageStatus) Terminal() bool {
	return s == MessageStatusComplete || s == MessageStatusFailed
}

// Message is one conversation turn.
type Message struct {
	ID        string        `json:"id"`
	Role      MessageRole   `json:"role"`
	Content   string        `json:"content"`
	Status    MessageStatus `json:"status,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

func NewUserMessage(text string) Message {
	return Message{ID: uuid.New().String(), Role: MessageRoleUser, Content: text, CreatedAt: time.Now()}
}

func NewSystemMessage(text string) Message {
	return Message{ID: uuid.New().String(), Role: MessageRoleSystem, Content: text, CreatedAt: time.Now()}
}

// NewPendingAssistantMessage creates the placeholder that a chat reply later completes or fails.
func NewPendingAssistantMessage() Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      MessageRoleAssistant,
		Status:    MessageStatusPending,
		CreatedAt: time.Now(),
	}
}

// IsPending reports whether the message is an assistant reply still in flight.
func (m Message) IsPending() bool {
	return m.Role == MessageRoleAssistant && m.Status == MessageStatusPending
}

// ChatTurn is the wire-neutral form of a message sent to a chat endpoint.
type ChatTurn struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// ChatRequest is everything a chat endpoint needs to produce one reply.
type ChatRequest struct {
	RequestID  string     // Identifier recorded as the in-flight request.
	History    []ChatTurn // Prior turns, oldest first, already windowed.
	UserText   string     // The new user turn.
	Credential string     // API credential from the credential gate.
}

// Turns returns the history followed by the new user turn.
func (r ChatRequest) Turns() []ChatTurn {
	turns := make([]ChatTurn, 0, len(r.History)+1)
	turns = append(turns, r.History...)
	return append(turns, ChatTurn{Role: MessageRoleUser, Content: r.UserText})
}
