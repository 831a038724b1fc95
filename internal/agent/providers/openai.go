package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/agent/toolconv"
	"github.com/haasonsaas/concierge/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey string

	// BaseURL points the client at an OpenAI-compatible endpoint.
	// Empty uses api.openai.com.
	BaseURL string

	// DefaultModel is used when a request leaves Model empty.
	DefaultModel string

	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIProvider implements agent.LLMProvider for OpenAI chat models.
//
// Key differences from the Anthropic provider:
//   - The system prompt is the first entry of the messages array
//   - Tool calls stream incrementally and are accumulated by index
//   - Each tool result is sent as its own "tool" role message
//
// OpenAIProvider is safe for concurrent use. Each Complete call owns an
// independent stream and goroutine.
//
// Example:
//
//	provider := NewOpenAIProvider(OpenAIConfig{APIKey: os.Getenv("OPENAI_API_KEY")})
//	chunks, err := provider.Complete(ctx, &agent.CompletionRequest{
//	    Messages: []agent.CompletionMessage{{Role: "user", Content: "When is the ERTC deadline?"}},
//	})
type OpenAIProvider struct {
	BaseProvider
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider creates an OpenAI provider.
//
// An empty API key yields a provider whose Complete always fails, so a
// missing key surfaces on first use rather than at startup.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	p := &OpenAIProvider{
		BaseProvider: NewBaseProvider("openai", cfg.MaxRetries, cfg.RetryDelay),
		defaultModel: cfg.DefaultModel,
	}
	if p.defaultModel == "" {
		p.defaultModel = "gpt-4.1"
	}
	if cfg.APIKey == "" {
		return p
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	p.client = openai.NewClientWithConfig(clientCfg)
	return p
}

// Models returns the chat models this deployment is expected to use.
func (p *OpenAIProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gpt-4.1", Name: "GPT-4.1", ContextSize: 1047576},
		{ID: "gpt-4.1-mini", Name: "GPT-4.1 mini", ContextSize: 1047576},
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000},
	}
}

// SupportsTools reports that OpenAI chat models support function calling.
func (p *OpenAIProvider) SupportsTools() bool {
	return true
}

// Complete opens a streaming chat completion.
//
// Opening the stream is retried for transient failures. Errors after the
// stream is open are delivered as a final chunk with Error set.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.client == nil {
		return nil, errors.New("openai: API key not configured")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:         model,
		Messages:      convertToOpenAIMessages(req.System, req.Messages),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
		MaxTokens:     req.MaxTokens,
		Tools:         toolconv.ToOpenAITools(req.Tools),
	}
	if req.Temperature != nil {
		// temperature is omitempty in the client, so zero would be dropped
		chatReq.Temperature = float32(*req.Temperature)
		if chatReq.Temperature == 0 {
			chatReq.Temperature = math.SmallestNonzeroFloat32
		}
	}

	var stream *openai.ChatCompletionStream
	err := p.Retry(ctx, IsRetryable, func() error {
		s, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return p.wrapError(err, model)
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, model, chunks)
	return chunks, nil
}

// processStream turns stream deltas into chunks. Tool call fragments are
// accumulated by index and emitted once the model finishes them.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, model string, chunks chan<- *agent.CompletionChunk) {
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

	pending := make(map[int]*models.ToolCall)
	flushToolCalls := func() bool {
		indexes := make([]int, 0, len(pending))
		for i := range pending {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			if pending[i].Name == "" {
				continue
			}
			if !send(&agent.CompletionChunk{ToolCall: pending[i]}) {
				return false
			}
		}
		clear(pending)
		return true
	}

	var inputTokens, outputTokens int
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if !flushToolCalls() {
				return
			}
			send(&agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
			return
		}
		if err != nil {
			send(&agent.CompletionChunk{Error: p.wrapError(err, model)})
			return
		}

		if response.Usage != nil {
			inputTokens = response.Usage.PromptTokens
			outputTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.Delta.Content != "" {
			if !send(&agent.CompletionChunk{Text: choice.Delta.Content}) {
				return
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			call, ok := pending[index]
			if !ok {
				call = &models.ToolCall{}
				pending[index] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			call.Input = append(call.Input, tc.Function.Arguments...)
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			if !flushToolCalls() {
				return
			}
		}
	}
}

// convertToOpenAIMessages builds the OpenAI message list. The system prompt
// goes first and every tool result becomes a separate tool message.
func convertToOpenAIMessages(system string, messages []agent.CompletionMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case "tool":
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		case "assistant":
			out := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				args := string(tc.Input)
				if args == "" {
					args = "{}"
				}
				out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			result = append(result, out)
		case "system":
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}
	return result
}

// wrapError converts client errors into a ProviderError with status and code.
func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}

	perr := NewProviderError(p.Name(), model, err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr = perr.WithStatus(apiErr.HTTPStatusCode).WithMessage(apiErr.Message)
		if code, ok := apiErr.Code.(string); ok && code != "" {
			perr = perr.WithCode(code)
		} else if apiErr.Type != "" {
			perr = perr.WithCode(apiErr.Type)
		}
		return perr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		perr = perr.WithStatus(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			perr = perr.WithMessage(fmt.Sprintf("request failed: %v", reqErr.Err))
		}
	}
	return perr
}
