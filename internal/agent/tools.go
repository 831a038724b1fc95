package agent

import (
	"context"
	"encoding/json"
)

// ToolSpec describes one knowledge-lookup action offered to the model.
type ToolSpec struct {
	// Name must be a valid function name (alphanumeric, underscores).
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Schema is the JSON Schema of the arguments object.
	Schema json.RawMessage `json:"schema,omitempty"`
}

// ToolInvoker is the knowledge-lookup service the orchestrator delegates to.
//
// Invoke returns the textual observation for the model. A non-nil error is
// turned into an error observation; it never aborts the run.
type ToolInvoker interface {
	Tools() []ToolSpec
	Invoke(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// NoTools is a ToolInvoker that offers nothing.
type NoTools struct{}

func (NoTools) Tools() []ToolSpec { return nil }

func (NoTools) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	return "", ErrToolNotFound
}

// ToolFunc adapts a function to a single-tool ToolInvoker.
type ToolFunc struct {
	Spec ToolSpec
	Fn   func(ctx context.Context, args json.RawMessage) (string, error)
}

func (t ToolFunc) Tools() []ToolSpec { return []ToolSpec{t.Spec} }

func (t ToolFunc) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	if name != t.Spec.Name || t.Fn == nil {
		return "", ErrToolNotFound
	}
	return t.Fn(ctx, args)
}

// DefaultToolSchema is used when a tool declares no argument schema.
var DefaultToolSchema = json.RawMessage(`{"type":"object","properties":{}}`)
