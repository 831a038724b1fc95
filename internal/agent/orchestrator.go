package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/concierge/pkg/models"
)

// UnableToCompleteMessage is returned when the round budget runs out before
// the model produced any usable text.
const UnableToCompleteMessage = "I wasn't able to finish looking this up within my research limit. Please try a more specific question."

// MaxResponseTextSize bounds the text collected from a single generation.
const MaxResponseTextSize = 1 << 20

// MaxToolCallsPerRound bounds the tool calls executed from a single
// generation. Calls past the limit are answered with an error observation.
const MaxToolCallsPerRound = 16

// OrchestratorConfig configures the bounded tool-use loop.
type OrchestratorConfig struct {
	// MaxRounds limits the number of generate calls per run.
	// Default: 10
	MaxRounds int

	// GenerateTimeout bounds each generate call.
	// Default: 60s
	GenerateTimeout time.Duration

	// ToolTimeout bounds each tool invocation.
	// Default: 30s
	ToolTimeout time.Duration

	// ToolGracePeriod is how long the next tool call waits for a timed-out
	// invocation that ignored its context. If it is still running after
	// that, the remaining calls of the run fail without being started.
	// Default: 5s
	ToolGracePeriod time.Duration

	// Model and System are sent with every generation.
	Model  string
	System string

	// MaxTokens is the response limit per generation.
	// Default: 4096
	MaxTokens int

	// Temperature is passed through when set.
	Temperature *float64

	// Sink receives loop events. Default: NopSink.
	Sink EventSink

	Logger *slog.Logger
}

// DefaultOrchestratorConfig returns the default loop configuration.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		MaxRounds:       10,
		GenerateTimeout: 60 * time.Second,
		ToolTimeout:     30 * time.Second,
		ToolGracePeriod: 5 * time.Second,
		MaxTokens:       4096,
	}
}

func sanitizeOrchestratorConfig(config *OrchestratorConfig) *OrchestratorConfig {
	defaults := DefaultOrchestratorConfig()
	if config == nil {
		config = defaults
	}
	cfg := *config
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = defaults.MaxRounds
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = defaults.GenerateTimeout
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = defaults.ToolTimeout
	}
	if cfg.ToolGracePeriod <= 0 {
		cfg.ToolGracePeriod = defaults.ToolGracePeriod
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &cfg
}

// RunStatus is the terminal state of a successful run.
type RunStatus string

const (
	StatusFinalAnswer        RunStatus = "final_answer"
	StatusRoundLimitExceeded RunStatus = "round_limit_exceeded"
)

// RoundAction is what the model chose to do in a round.
type RoundAction string

const (
	ActionToolCall    RoundAction = "tool_call"
	ActionFinalAnswer RoundAction = "final_answer"
)

// Round is an ephemeral record of one generate cycle. It is reported
// through events and never persisted.
type Round struct {
	Index  int
	Action RoundAction
}

// ToolCallRecord captures one executed tool call.
type ToolCallRecord struct {
	Round   int
	Call    models.ToolCall
	Result  models.ToolResult
	Elapsed time.Duration
}

// RunResult is the outcome of a run that did not fail.
type RunResult struct {
	Text      string
	Status    RunStatus
	Rounds    int
	ToolCalls []ToolCallRecord

	InputTokens  int
	OutputTokens int
}

// Orchestrator drives the reasoning agent through a bounded number of
// generate rounds, executing requested tools strictly in order.
//
//	Init -> { Generating -> ( FinalAnswer | ToolCallRequested -> ToolExecuting -> Generating ) }*
//	     -> Terminated( FinalAnswer | RoundLimitExceeded | GenerationError )
type Orchestrator struct {
	provider LLMProvider
	tools    ToolInvoker
	config   *OrchestratorConfig
}

// NewOrchestrator creates an orchestrator. A nil tools invoker offers no tools.
func NewOrchestrator(provider LLMProvider, tools ToolInvoker, config *OrchestratorConfig) *Orchestrator {
	if tools == nil {
		tools = NoTools{}
	}
	return &Orchestrator{
		provider: provider,
		tools:    tools,
		config:   sanitizeOrchestratorConfig(config),
	}
}

// Config returns a copy of the effective configuration.
func (o *Orchestrator) Config() OrchestratorConfig {
	return *o.config
}

// runState tracks one Run invocation.
type runState struct {
	phase    Phase
	round    int
	messages []CompletionMessage
	partial  string
	result   *RunResult
	tools    []ToolSpec
	known    map[string]bool

	// abandoned is closed when a timed-out invocation finally returns.
	abandoned <-chan struct{}
}

// generation is the collected output of one provider stream.
type generation struct {
	text         string
	toolCalls    []models.ToolCall
	inputTokens  int
	outputTokens int
	elapsed      time.Duration
}

// Run executes the loop for a fully assembled prompt.
//
// A generate failure returns a *GenerationError and no result. Running out
// of rounds is not an error: the result carries StatusRoundLimitExceeded and
// the best partial text seen, or UnableToCompleteMessage.
func (o *Orchestrator) Run(ctx context.Context, prompt string) (*RunResult, error) {
	if o.provider == nil {
		return nil, ErrNoProvider
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	state := &runState{
		phase:    PhaseInit,
		messages: []CompletionMessage{{Role: string(models.RoleUser), Content: prompt}},
		result:   &RunResult{},
	}
	if o.provider.SupportsTools() {
		state.tools = o.tools.Tools()
	}
	state.known = make(map[string]bool, len(state.tools))
	for _, spec := range state.tools {
		state.known[spec.Name] = true
	}

	for state.round = 1; state.round <= o.config.MaxRounds; state.round++ {
		if err := ctx.Err(); err != nil {
			state.phase = PhaseTerminated
			return nil, &GenerationError{Round: state.round, Provider: o.provider.Name(), Cause: err}
		}

		state.phase = PhaseGenerating
		o.emit(ctx, models.Event{Type: models.EventRoundStarted, Round: state.round})

		gen, err := o.generate(ctx, state)
		if err != nil {
			state.phase = PhaseTerminated
			o.config.Logger.Warn("generation failed",
				"provider", o.provider.Name(),
				"round", state.round,
				"error", err)
			return nil, &GenerationError{Round: state.round, Provider: o.provider.Name(), Cause: err}
		}
		state.result.Rounds = state.round
		state.result.InputTokens += gen.inputTokens
		state.result.OutputTokens += gen.outputTokens

		o.emit(ctx, models.Event{
			Type:  models.EventModelCompleted,
			Round: state.round,
			Model: &models.ModelPayload{
				Provider:     o.provider.Name(),
				Model:        o.config.Model,
				ToolCalls:    len(gen.toolCalls),
				InputTokens:  gen.inputTokens,
				OutputTokens: gen.outputTokens,
				Elapsed:      gen.elapsed,
			},
		})

		if len(gen.toolCalls) == 0 {
			state.phase = PhaseTerminated
			if strings.TrimSpace(gen.text) == "" {
				return nil, &GenerationError{Round: state.round, Provider: o.provider.Name(), Cause: ErrEmptyGeneration}
			}
			o.logRound(Round{Index: state.round, Action: ActionFinalAnswer})
			state.result.Text = gen.text
			state.result.Status = StatusFinalAnswer
			return state.result, nil
		}

		o.logRound(Round{Index: state.round, Action: ActionToolCall})
		if strings.TrimSpace(gen.text) != "" {
			state.partial = gen.text
		}

		state.phase = PhaseToolExecuting
		results := o.executeTools(ctx, state, gen.toolCalls)

		state.messages = append(state.messages,
			CompletionMessage{Role: string(models.RoleAssistant), Content: gen.text, ToolCalls: gen.toolCalls},
			CompletionMessage{Role: string(models.RoleTool), ToolResults: results},
		)
	}

	state.phase = PhaseTerminated
	state.result.Rounds = o.config.MaxRounds
	state.result.Status = StatusRoundLimitExceeded
	state.result.Text = state.partial
	if state.result.Text == "" {
		state.result.Text = UnableToCompleteMessage
	}
	o.emit(ctx, models.Event{
		Type:  models.EventRoundLimitReached,
		Round: o.config.MaxRounds,
		Error: &models.ErrorPayload{Message: ErrRoundLimitExceeded.Error(), Err: ErrRoundLimitExceeded},
	})
	o.config.Logger.Warn("tool-use loop hit round limit",
		"max_rounds", o.config.MaxRounds,
		"tool_calls", len(state.result.ToolCalls))
	return state.result, nil
}

// generate performs one provider call under GenerateTimeout and collects
// the stream into text plus tool calls.
func (o *Orchestrator) generate(ctx context.Context, state *runState) (*generation, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.config.GenerateTimeout)
	defer cancel()

	req := &CompletionRequest{
		Model:       o.config.Model,
		System:      o.config.System,
		Messages:    state.messages,
		Tools:       state.tools,
		MaxTokens:   o.config.MaxTokens,
		Temperature: o.config.Temperature,
	}

	start := time.Now()
	completion, err := o.provider.Complete(genCtx, req)
	if err != nil {
		return nil, err
	}

	gen := &generation{}
	var text strings.Builder
	for {
		select {
		case <-genCtx.Done():
			if errors.Is(genCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, fmt.Errorf("generate timed out after %s: %w", o.config.GenerateTimeout, genCtx.Err())
			}
			return nil, genCtx.Err()
		case chunk, ok := <-completion:
			if !ok {
				gen.text = text.String()
				gen.elapsed = time.Since(start)
				return gen, nil
			}
			if chunk == nil {
				continue
			}
			if chunk.Error != nil {
				return nil, chunk.Error
			}
			if chunk.Text != "" {
				if text.Len()+len(chunk.Text) > MaxResponseTextSize {
					return nil, fmt.Errorf("response text exceeds maximum size of %d bytes", MaxResponseTextSize)
				}
				text.WriteString(chunk.Text)
			}
			if chunk.ToolCall != nil {
				call := *chunk.ToolCall
				if call.ID == "" {
					call.ID = fmt.Sprintf("call_%d_%d", state.round, len(gen.toolCalls)+1)
				}
				gen.toolCalls = append(gen.toolCalls, call)
			}
			if chunk.InputTokens > 0 {
				gen.inputTokens = chunk.InputTokens
			}
			if chunk.OutputTokens > 0 {
				gen.outputTokens = chunk.OutputTokens
			}
		}
	}
}

// executeTools runs the round's tool calls one after another. Every call
// yields a result; failures become error observations.
func (o *Orchestrator) executeTools(ctx context.Context, state *runState, calls []models.ToolCall) []models.ToolResult {
	if len(calls) > MaxToolCallsPerRound {
		o.config.Logger.Warn("too many tool calls in one round",
			"round", state.round,
			"requested", len(calls),
			"max", MaxToolCallsPerRound)
	}

	results := make([]models.ToolResult, 0, len(calls))
	for i, call := range calls {
		o.emit(ctx, models.Event{
			Type:  models.EventToolStarted,
			Round: state.round,
			Tool:  &models.ToolPayload{CallID: call.ID, Name: call.Name, ArgsJSON: call.Input},
		})

		start := time.Now()
		var content string
		var err error
		if i < MaxToolCallsPerRound {
			content, err = o.invokeTool(ctx, state, call)
		} else {
			err = NewToolError(call.Name, ErrTooManyToolCalls).
				WithType(ToolErrorInvalidInput).
				WithMessage(fmt.Sprintf("skipped: at most %d tool calls run per round", MaxToolCallsPerRound))
		}
		elapsed := time.Since(start)

		result := models.ToolResult{ToolCallID: call.ID, Content: content}
		payload := &models.ToolPayload{CallID: call.ID, Name: call.Name, Success: err == nil, Elapsed: elapsed}
		if err != nil {
			toolErr, ok := GetToolError(err)
			if !ok {
				toolErr = NewToolError(call.Name, err)
			}
			toolErr.WithToolCallID(call.ID)
			result.Content = toolErr.Error()
			result.IsError = true
			payload.ErrorType = string(toolErr.Type)
			o.config.Logger.Info("tool call failed",
				"tool", call.Name,
				"round", state.round,
				"type", toolErr.Type,
				"error", toolErr.Message)
		}

		o.emit(ctx, models.Event{Type: models.EventToolFinished, Round: state.round, Tool: payload})
		state.result.ToolCalls = append(state.result.ToolCalls, ToolCallRecord{
			Round:   state.round,
			Call:    call,
			Result:  result,
			Elapsed: elapsed,
		})
		results = append(results, result)
	}
	return results
}

type toolOutcome struct {
	content string
	err     error
}

// invokeTool calls the invoker under ToolTimeout, recovering panics. The
// timeout holds even if the invoker ignores its context; such an invocation
// is tracked so that no two invocations ever overlap.
func (o *Orchestrator) invokeTool(ctx context.Context, state *runState, call models.ToolCall) (string, error) {
	if err := o.awaitAbandoned(ctx, state, call.Name); err != nil {
		return "", err
	}
	if !state.known[call.Name] {
		return "", NewToolError(call.Name, ErrToolNotFound).
			WithType(ToolErrorNotFound).
			WithMessage(fmt.Sprintf("unknown tool %q", call.Name))
	}

	args := call.Input
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	toolCtx, cancel := context.WithTimeout(ctx, o.config.ToolTimeout)
	defer cancel()

	done := make(chan toolOutcome, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				done <- toolOutcome{err: NewToolError(call.Name, fmt.Errorf("%w: %v", ErrToolPanic, r)).WithType(ToolErrorPanic)}
			}
		}()
		content, err := o.tools.Invoke(toolCtx, call.Name, args)
		done <- toolOutcome{content: content, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
			return "", o.toolTimeout(call.Name)
		}
		return out.content, out.err
	case <-toolCtx.Done():
		state.abandoned = finished
		if errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
			return "", o.toolTimeout(call.Name)
		}
		return "", NewToolError(call.Name, toolCtx.Err())
	}
}

// awaitAbandoned blocks until a previously timed-out invocation returns,
// for at most ToolGracePeriod.
func (o *Orchestrator) awaitAbandoned(ctx context.Context, state *runState, name string) error {
	if state.abandoned == nil {
		return nil
	}
	timer := time.NewTimer(o.config.ToolGracePeriod)
	defer timer.Stop()

	select {
	case <-state.abandoned:
		state.abandoned = nil
		return nil
	case <-timer.C:
		return NewToolError(name, ErrToolBusy).
			WithType(ToolErrorTimeout).
			WithMessage("not started: a previous tool call is still running")
	case <-ctx.Done():
		return NewToolError(name, ctx.Err())
	}
}

func (o *Orchestrator) toolTimeout(name string) *ToolError {
	return NewToolError(name, ErrToolTimeout).
		WithType(ToolErrorTimeout).
		WithMessage(fmt.Sprintf("timed out after %s", o.config.ToolTimeout))
}

func (o *Orchestrator) emit(ctx context.Context, e models.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if info, ok := RequestInfoFromContext(ctx); ok {
		if e.RequestID == "" {
			e.RequestID = info.RequestID
		}
		if e.ThreadID == "" {
			e.ThreadID = info.ThreadID
		}
	}
	o.config.Sink.Emit(ctx, e)
}

func (o *Orchestrator) logRound(r Round) {
	o.config.Logger.Debug("round completed", "round", r.Index, "action", r.Action)
}
