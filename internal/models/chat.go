package models

import "time"

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one message in the rolling chat history.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the input for a chat message.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatReply is the assistant's reply plus the documents used as context.
type ChatReply struct {
	Reply      string      `json:"reply"`
	Sources    []string    `json:"sources"`
	Timestamps []time.Time `json:"timestamps"`
	Degraded   bool        `json:"degraded,omitempty"`
}
