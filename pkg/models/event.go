// Package models provides domain types shared by the concierge pipeline,
// its front ends and its observers.
package models

import (
	"time"
)

// Event is the single event model emitted by the pipeline and the tool-use loop.
// Sinks turn it into logs, metrics and spans; the core never depends on them.
//
// Exactly one payload pointer is set for a given Type, except for
// lifecycle events which carry none.
type Event struct {
	// Type identifies the kind of event.
	Type EventType `json:"type"`

	// Time is when the event occurred.
	Time time.Time `json:"time"`

	// RequestID identifies one HandleQuestion call.
	RequestID string `json:"request_id,omitempty"`

	// ThreadID is the conversation thread the request belongs to.
	ThreadID string `json:"thread_id,omitempty"`

	// Round is the 1-based generation round for loop events.
	Round int `json:"round,omitempty"`

	Classification *ClassificationPayload `json:"classification,omitempty"`
	Model          *ModelPayload          `json:"model,omitempty"`
	Tool           *ToolPayload           `json:"tool,omitempty"`
	Run            *RunPayload            `json:"run,omitempty"`
	Error          *ErrorPayload          `json:"error,omitempty"`
}

// EventType identifies the kind of event.
type EventType string

const (
	// Request lifecycle
	EventRequestStarted  EventType = "request.started"
	EventRequestFinished EventType = "request.finished"
	EventRequestFailed   EventType = "request.failed"

	// Classification
	EventClassified EventType = "classification.completed"

	// Tool-use loop
	EventRoundStarted      EventType = "round.started"
	EventModelCompleted    EventType = "model.completed"
	EventToolStarted       EventType = "tool.started"
	EventToolFinished      EventType = "tool.finished"
	EventRoundLimitReached EventType = "round.limit_reached"
)

// ClassificationPayload describes the outcome of category classification.
type ClassificationPayload struct {
	CategoryID string `json:"category_id"`
	// Source is "id", "alias" or "default".
	Source string `json:"source"`
	// Degraded is non-empty when the classifier fell back to the default.
	Degraded string        `json:"degraded,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
}

// ModelPayload describes one completed generation.
type ModelPayload struct {
	Provider     string        `json:"provider,omitempty"`
	Model        string        `json:"model,omitempty"`
	ToolCalls    int           `json:"tool_calls"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	Elapsed      time.Duration `json:"elapsed,omitempty"`
}

// ToolPayload describes a knowledge-lookup invocation.
// ArgsJSON is kept opaque to avoid coupling to tool schemas.
type ToolPayload struct {
	CallID   string        `json:"call_id,omitempty"`
	Name     string        `json:"name"`
	ArgsJSON []byte        `json:"args_json,omitempty"`
	Success  bool          `json:"success,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
	// ErrorType is the tool error classification for failed calls.
	ErrorType string `json:"error_type,omitempty"`
}

// RunPayload summarizes a finished pipeline request.
type RunPayload struct {
	CategoryID string        `json:"category_id,omitempty"`
	Status     string        `json:"status,omitempty"`
	Rounds     int           `json:"rounds"`
	ToolCalls  int           `json:"tool_calls"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
}

// ErrorPayload standardizes errors carried on events.
type ErrorPayload struct {
	// Message is the error description (required).
	Message string `json:"message"`

	// Stage names the pipeline step that failed.
	Stage string `json:"stage,omitempty"`

	// Err is the original error (runtime only, not serialized).
	Err error `json:"-"`
}
