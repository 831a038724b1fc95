// Package providers implements agent.LLMProvider for the hosted model APIs
// concierge can talk to: OpenAI, Anthropic and Google Gemini.
//
// Every provider streams its response as agent.CompletionChunk values,
// retries transient failures when opening the stream, and reports failures
// as *ProviderError so callers can tell rate limits from bad credentials.
//
// Example Usage:
//
//	provider, err := providers.New("anthropic", providers.Config{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	chunks, err := provider.Complete(ctx, &agent.CompletionRequest{
//	    System:   "You answer questions about company policy.",
//	    Messages: []agent.CompletionMessage{{Role: "user", Content: "What is the PTO policy?"}},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for chunk := range chunks {
//	    if chunk.Error != nil {
//	        log.Printf("Error: %v", chunk.Error)
//	        break
//	    }
//	    fmt.Print(chunk.Text)
//	}
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/agent/toolconv"
	"github.com/haasonsaas/concierge/pkg/models"
)

// maxEmptyStreamEvents bounds how many consecutive no-op events are tolerated
// before a stream is treated as malformed.
const maxEmptyStreamEvents = 300

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	// APIKey is required.
	APIKey string

	// BaseURL overrides the API endpoint. Used by tests and proxies.
	BaseURL string

	// DefaultModel is used when a request leaves Model empty.
	// Default: "claude-sonnet-4-20250514"
	DefaultModel string

	MaxRetries int
	RetryDelay time.Duration
}

// AnthropicProvider implements agent.LLMProvider for Anthropic's Claude API.
//
// The system prompt travels in params.System rather than in the messages,
// tool calls arrive as tool_use content blocks whose JSON input is streamed
// in fragments, and tool results are sent back as tool_result blocks inside
// a user message.
type AnthropicProvider struct {
	BaseProvider
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicProvider creates an Anthropic provider. It fails when no API key
// is configured.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	// retries are owned by BaseProvider
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		BaseProvider: NewBaseProvider("anthropic", cfg.MaxRetries, cfg.RetryDelay),
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextSize: 200000},
	}
}

func (p *AnthropicProvider) SupportsTools() bool {
	return true
}

// Complete opens a streaming message request.
//
// The SDK only surfaces HTTP failures once the stream is read, so the first
// event is pulled inside the retry loop.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := p.getModel(req.Model)

	params, err := p.buildParams(req, model)
	if err != nil {
		return nil, err
	}

	var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	err = p.Retry(ctx, IsRetryable, func() error {
		s := p.client.Messages.NewStreaming(ctx, params)
		if !s.Next() {
			err := s.Err()
			_ = s.Close()
			if err == nil {
				err = errors.New("stream closed before first event")
			}
			return p.wrapError(err, model)
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, chunks, model)
	return chunks, nil
}

func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest, model string) (anthropic.MessageNewParams, error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(getMaxTokens(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := toolconv.ToAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}
	return params, nil
}

// processStream converts SSE events into chunks. The stream has already been
// advanced to its first event.
func (p *AnthropicProvider) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *agent.CompletionChunk, model string) {
	defer close(chunks)
	defer stream.Close()

	send := func(c *agent.CompletionChunk) bool {
		select {
		case chunks <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var (
		currentToolCall  *models.ToolCall
		currentToolInput strings.Builder
		inputTokens      int
		outputTokens     int
		emptyEvents      int
	)

	for ok := true; ok; ok = stream.Next() {
		event := stream.Current()
		processed := true

		switch event.Type {
		case "message_start":
			inputTokens = int(event.AsMessageStart().Message.Usage.InputTokens)

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentToolCall = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentToolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" && !send(&agent.CompletionChunk{Text: delta.Text}) {
					return
				}
			case "input_json_delta":
				currentToolInput.WriteString(delta.PartialJSON)
			default:
				processed = false
			}

		case "content_block_stop":
			if currentToolCall != nil {
				input := currentToolInput.String()
				if strings.TrimSpace(input) == "" {
					input = "{}"
				}
				currentToolCall.Input = json.RawMessage(input)
				if !send(&agent.CompletionChunk{ToolCall: currentToolCall}) {
					return
				}
				currentToolCall = nil
			}

		case "message_delta":
			if n := event.AsMessageDelta().Usage.OutputTokens; n > 0 {
				outputTokens = int(n)
			}

		case "message_stop":
			send(&agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
			return

		case "error":
			send(&agent.CompletionChunk{Error: p.wrapError(errors.New("anthropic stream error"), model)})
			return

		default:
			processed = false
		}

		if processed {
			emptyEvents = 0
			continue
		}
		emptyEvents++
		if emptyEvents >= maxEmptyStreamEvents {
			send(&agent.CompletionChunk{Error: p.wrapError(
				fmt.Errorf("stream appears malformed: received %d consecutive empty events", emptyEvents), model)})
			return
		}
	}

	if err := stream.Err(); err != nil {
		send(&agent.CompletionChunk{Error: p.wrapError(err, model)})
		return
	}
	send(&agent.CompletionChunk{Error: p.wrapError(errors.New("stream ended without message_stop"), model)})
}

// convertAnthropicMessages maps completion messages to Anthropic content
// blocks. Tool results ride in user messages; messages with no content are
// dropped since the API rejects them.
func convertAnthropicMessages(messages []agent.CompletionMessage) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			input := map[string]any{}
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					return nil, fmt.Errorf("invalid tool call input for %s: %w", tc.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == "assistant" {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func (p *AnthropicProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func getMaxTokens(maxTokens int) int {
	if maxTokens <= 0 {
		return 4096
	}
	return maxTokens
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

// wrapError converts SDK errors into a ProviderError, pulling the error type
// and request id out of the response body when present.
func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return NewProviderError(p.Name(), model, err)
	}

	perr := NewProviderError(p.Name(), model, err).WithStatus(apiErr.StatusCode)
	perr.Message = "anthropic request failed"
	if apiErr.RequestID != "" {
		perr = perr.WithRequestID(apiErr.RequestID)
	}

	var payload anthropicErrorPayload
	if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &payload) == nil {
		if payload.Error.Message != "" {
			perr = perr.WithMessage(payload.Error.Message)
		}
		if payload.Error.Type != "" {
			perr = perr.WithCode(payload.Error.Type)
		}
		if payload.RequestID != "" {
			perr = perr.WithRequestID(payload.RequestID)
		}
	}
	return perr
}
