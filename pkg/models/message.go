package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r may be stored in conversation memory.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ConversationMessage is a single stored turn in a thread.
// Values are copied in and out of the memory store and never mutated in place.
type ConversationMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage creates a user turn stamped with now.
func NewUserMessage(content string, now time.Time) ConversationMessage {
	return ConversationMessage{Role: RoleUser, Content: content, Timestamp: now}
}

// NewAssistantMessage creates an assistant turn stamped with now.
func NewAssistantMessage(content string, now time.Time) ConversationMessage {
	return ConversationMessage{Role: RoleAssistant, Content: content, Timestamp: now}
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}
