package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors for orchestration.
var (
	// ErrRoundLimitExceeded reports that the loop used every round without a
	// final answer. Runs surface it through RunResult.Status, not as an error.
	ErrRoundLimitExceeded = errors.New("round limit exceeded")

	// ErrNoProvider indicates no LLM provider is configured
	ErrNoProvider = errors.New("no provider configured")

	// ErrEmptyPrompt indicates Run was called without a prompt
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrToolNotFound indicates a requested tool doesn't exist
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolTimeout indicates a tool execution timed out
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrToolPanic indicates a tool panicked during execution
	ErrToolPanic = errors.New("tool panicked")

	// ErrToolBusy indicates a timed-out tool call had not returned when the
	// next one was due
	ErrToolBusy = errors.New("previous tool call still running")

	// ErrTooManyToolCalls indicates a generation requested more tool calls
	// than a round runs
	ErrTooManyToolCalls = errors.New("too many tool calls in one round")

	// ErrEmptyGeneration indicates the model produced neither text nor tool calls
	ErrEmptyGeneration = errors.New("model returned an empty response")
)

// ToolErrorType categorizes tool failures.
type ToolErrorType string

const (
	ToolErrorNotFound     ToolErrorType = "not_found"
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorNetwork      ToolErrorType = "network"
	ToolErrorPermission   ToolErrorType = "permission"
	ToolErrorRateLimit    ToolErrorType = "rate_limit"
	ToolErrorExecution    ToolErrorType = "execution"
	ToolErrorPanic        ToolErrorType = "panic"
	ToolErrorUnknown      ToolErrorType = "unknown"
)

// IsRetryable returns true if retrying the operation may succeed.
func (t ToolErrorType) IsRetryable() bool {
	switch t {
	case ToolErrorTimeout, ToolErrorNetwork, ToolErrorRateLimit:
		return true
	default:
		return false
	}
}

// ToolError is a structured tool failure. Its Error text is what the model
// sees as the observation for the failed call.
type ToolError struct {
	Type       ToolErrorType
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
	Retryable  bool
}

// Error renders "[tool:<type>] <name> <message>".
func (e *ToolError) Error() string {
	parts := []string{fmt.Sprintf("[tool:%s]", e.Type)}
	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewToolError creates a ToolError, inferring its type from the cause.
func NewToolError(toolName string, cause error) *ToolError {
	err := &ToolError{
		ToolName: toolName,
		Cause:    cause,
		Type:     ToolErrorUnknown,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Type = classifyToolError(cause)
		err.Retryable = err.Type.IsRetryable()
	}
	return err
}

// WithType sets the error type and updates retryable status accordingly.
func (e *ToolError) WithType(t ToolErrorType) *ToolError {
	e.Type = t
	e.Retryable = t.IsRetryable()
	return e
}

// WithToolCallID sets the tool call ID for correlating errors with calls.
func (e *ToolError) WithToolCallID(id string) *ToolError {
	e.ToolCallID = id
	return e
}

// WithMessage sets a custom human-readable error message.
func (e *ToolError) WithMessage(msg string) *ToolError {
	e.Message = msg
	return e
}

func classifyToolError(err error) ToolErrorType {
	if err == nil {
		return ToolErrorUnknown
	}

	var typed *ToolError
	if errors.As(err, &typed) {
		return typed.Type
	}

	switch {
	case errors.Is(err, ErrToolNotFound):
		return ToolErrorNotFound
	case errors.Is(err, ErrToolTimeout), errors.Is(err, context.DeadlineExceeded):
		return ToolErrorTimeout
	case errors.Is(err, ErrToolPanic):
		return ToolErrorPanic
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "deadline exceeded"):
		return ToolErrorTimeout
	case containsAny(msg, "connection", "network", "dns", "refused", "unreachable", "broken pipe"):
		return ToolErrorNetwork
	case containsAny(msg, "rate limit", "rate_limit", "too many requests", "429"):
		return ToolErrorRateLimit
	case containsAny(msg, "permission", "forbidden", "unauthorized", "access denied"):
		return ToolErrorPermission
	case containsAny(msg, "invalid", "validation", "required", "missing"):
		return ToolErrorInvalidInput
	}
	return ToolErrorExecution
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// GetToolError extracts a ToolError from an error chain.
func GetToolError(err error) (*ToolError, bool) {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// GenerationError is a failed generate call. It aborts the run and carries
// the round it happened in.
type GenerationError struct {
	Round    int
	Provider string
	Cause    error
}

func (e *GenerationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("generation failed in round %d (%s): %v", e.Round, e.Provider, e.Cause)
	}
	return fmt.Sprintf("generation failed in round %d: %v", e.Round, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// IsGenerationError reports whether err is or wraps a GenerationError.
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}

// Phase is a state of the tool-use loop. Phases never overlap.
type Phase string

const (
	PhaseInit          Phase = "init"
	PhaseGenerating    Phase = "generating"
	PhaseToolExecuting Phase = "tool_executing"
	PhaseTerminated    Phase = "terminated"
)
