package agent

import (
	"context"

	"github.com/haasonsaas/concierge/pkg/models"
)

// LLMProvider defines the interface for Large Language Model backends.
//
// Implementations handle the specifics of one vendor API while presenting a
// unified streaming interface to the classifier and the orchestrator.
// Implementations must be safe for concurrent use.
//
// See Also:
//   - providers.OpenAIProvider
//   - providers.AnthropicProvider
//   - providers.GoogleProvider
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response.
	// The channel is closed after a Done or Error chunk.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []Model

	// SupportsTools returns whether the provider supports tool use.
	SupportsTools() bool
}

// CompletionRequest contains all parameters for one generation.
//
// Example:
//
//	req := &CompletionRequest{
//	    Model:     "gpt-4.1",
//	    System:    "You answer questions about company policy.",
//	    Messages:  []CompletionMessage{{Role: "user", Content: "What is the PTO policy?"}},
//	    MaxTokens: 1024,
//	}
type CompletionRequest struct {
	// Model specifies which model to use. If empty, the provider's default is used.
	Model string `json:"model"`

	// System is the system prompt, sent separately from messages.
	System string `json:"system,omitempty"`

	// Messages contains the conversation in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools lists the lookups the model may request. Empty disables tool calling.
	Tools []ToolSpec `json:"tools,omitempty"`

	// MaxTokens limits the response length. Zero selects the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature overrides the sampling temperature when set.
	// The classifier pins it to zero.
	Temperature *float64 `json:"temperature,omitempty"`
}

// CompletionMessage represents a single message in a conversation.
//
// Role values: "user", "assistant", "tool"
type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolCalls contains tool execution requests from the assistant.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	// ToolResults contains responses from executed tools.
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// CompletionChunk represents a single chunk in a streaming response.
//
// Each chunk carries partial text, one complete tool call, the Done signal,
// or an Error that terminates the stream.
type CompletionChunk struct {
	Text     string           `json:"text,omitempty"`
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`
	Done     bool             `json:"done,omitempty"`
	Error    error            `json:"-"`

	// Token usage, only populated on the final chunk.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Model describes an available LLM model.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`
}

// Float64 returns a pointer to v, for optional request fields.
func Float64(v float64) *float64 {
	return &v
}
