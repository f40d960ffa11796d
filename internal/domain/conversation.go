package domain

import "time"

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ConversationTurn is one message in a chat history. The engine consumes turn
// sequences as ordered, append-only input and never mutates them.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting attached to a completed chat response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the non-streaming chat result.
type ChatResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// StreamEventType tags a StreamEvent.
type StreamEventType string

// Stream event kinds. The error kind is reserved for the case where even
// fallback generation fails; upstream outages surface as normal content.
const (
	StreamEventStart   StreamEventType = "start"
	StreamEventContent StreamEventType = "content"
	StreamEventEnd     StreamEventType = "end"
	StreamEventError   StreamEventType = "error"
)

// StreamEvent is one frame of a streaming chat completion. MessageID
// correlates all events of a single completion.
type StreamEvent struct {
	Type        StreamEventType `json:"type"`
	MessageID   string          `json:"message_id"`
	Content     string          `json:"content,omitempty"`
	TotalTokens int             `json:"total_tokens,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}
