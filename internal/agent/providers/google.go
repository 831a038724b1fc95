package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/agent/toolconv"
	"github.com/haasonsaas/concierge/pkg/models"
	"google.golang.org/genai"
)

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	APIKey string

	// BaseURL overrides the Gemini API endpoint.
	BaseURL string

	// Default: "gemini-2.0-flash"
	DefaultModel string

	MaxRetries int
	RetryDelay time.Duration
}

// GoogleProvider implements agent.LLMProvider for the Gemini API.
//
// Gemini has no tool call ids, so ids are generated locally and mapped
// back to function names when results are sent.
type GoogleProvider struct {
	BaseProvider
	client       *genai.Client
	defaultModel string
}

// NewGoogleProvider creates a Gemini provider. It fails when no API key is
// configured.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}

	return &GoogleProvider{
		BaseProvider: NewBaseProvider("google", cfg.MaxRetries, cfg.RetryDelay),
		client:       client,
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *GoogleProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextSize: 1048576},
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", ContextSize: 1048576},
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", ContextSize: 1048576},
	}
}

func (p *GoogleProvider) SupportsTools() bool {
	return true
}

// Complete opens a streaming generation. The first response is pulled inside
// the retry loop so nothing reaches the caller from a failed attempt.
func (p *GoogleProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := p.getModel(req.Model)
	contents := convertGeminiMessages(req.Messages)
	config := p.buildConfig(req)

	var (
		next  func() (*genai.GenerateContentResponse, error, bool)
		stop  func()
		first *genai.GenerateContentResponse
	)
	err := p.Retry(ctx, IsRetryable, func() error {
		n, s := iter.Pull2(p.client.Models.GenerateContentStream(ctx, model, contents, config))
		resp, err, ok := n()
		if err != nil {
			s()
			return p.wrapError(err, model)
		}
		if !ok {
			s()
			return p.wrapError(errors.New("stream closed before first response"), model)
		}
		next, stop, first = n, s, resp
		return nil
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, first, next, stop, chunks, model)
	return chunks, nil
}

func (p *GoogleProvider) processStream(
	ctx context.Context,
	resp *genai.GenerateContentResponse,
	next func() (*genai.GenerateContentResponse, error, bool),
	stop func(),
	chunks chan<- *agent.CompletionChunk,
	model string,
) {
	defer close(chunks)
	defer stop()

	send := func(c *agent.CompletionChunk) bool {
		select {
		case chunks <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var inputTokens, outputTokens int
	callIndex := 0
	for {
		if resp != nil {
			if resp.UsageMetadata != nil {
				inputTokens = int(resp.UsageMetadata.PromptTokenCount)
				outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part == nil {
						continue
					}
					if part.Text != "" && !part.Thought {
						if !send(&agent.CompletionChunk{Text: part.Text}) {
							return
						}
					}
					if part.FunctionCall != nil {
						if !send(&agent.CompletionChunk{ToolCall: toToolCall(part.FunctionCall, callIndex)}) {
							return
						}
						callIndex++
					}
				}
			}
		}

		var err error
		var ok bool
		resp, err, ok = next()
		if err != nil {
			send(&agent.CompletionChunk{Error: p.wrapError(err, model)})
			return
		}
		if !ok {
			send(&agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
			return
		}
	}
}

func toToolCall(fc *genai.FunctionCall, index int) *models.ToolCall {
	args, err := json.Marshal(fc.Args)
	if err != nil || fc.Args == nil {
		args = []byte("{}")
	}
	id := fc.ID
	if id == "" {
		id = fmt.Sprintf("call_%s_%d_%d", fc.Name, time.Now().UnixNano(), index)
	}
	return &models.ToolCall{ID: id, Name: fc.Name, Input: args}
}

// convertGeminiMessages maps completion messages to Gemini contents. Tool
// results become function responses on the user side.
func convertGeminiMessages(messages []agent.CompletionMessage) []*genai.Content {
	names := make(map[string]string)
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			names[tc.ID] = tc.Name
		}
	}

	result := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == "assistant" {
			content.Role = genai.RoleModel
		}

		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Input, &args); err != nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
			})
		}
		for _, tr := range msg.ToolResults {
			response := map[string]any{"output": tr.Content}
			if tr.IsError {
				response = map[string]any{"error": tr.Content}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     names[tr.ToolCallID],
					Response: response,
				},
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result
}

func (p *GoogleProvider) buildConfig(req *agent.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		// #nosec G115 -- bounded by min
		config.MaxOutputTokens = int32(min(req.MaxTokens, math.MaxInt32))
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if len(req.Tools) > 0 {
		config.Tools = toolconv.ToGeminiTools(req.Tools)
	}
	return config
}

func (p *GoogleProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

// wrapError converts SDK errors into a ProviderError. The SDK reports the
// HTTP status in APIError.Code.
func (p *GoogleProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}

	perr := NewProviderError(p.Name(), model, err)

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return perr.WithStatus(apiErr.Code).WithCode(apiErr.Status).WithMessage(apiErr.Message)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unauthenticated"):
		perr = perr.WithStatus(http.StatusUnauthorized)
	case strings.Contains(msg, "permission denied"):
		perr = perr.WithStatus(http.StatusForbidden)
	case strings.Contains(msg, "resource exhausted"):
		perr = perr.WithStatus(http.StatusTooManyRequests)
	}
	return perr
}
