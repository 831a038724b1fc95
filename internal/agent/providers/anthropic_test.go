package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/pkg/models"
)

// anthropicServer writes the given "event"/"data" pairs as an SSE stream.
func anthropicServer(t *testing.T, events [][2]string, inspect func(body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("x-api-key") == "" {
			t.Error("missing x-api-key header")
		}
		if inspect != nil {
			raw, _ := io.ReadAll(r.Body)
			var body map[string]any
			_ = json.Unmarshal(raw, &body)
			inspect(body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, e := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e[0], e[1])
			flusher.Flush()
		}
	}))
}

func TestNewAnthropicProvider(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}

	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: "   "})
	if err != nil {
		t.Fatalf("NewAnthropicProvider() error = %v", err)
	}
	if p.Name() != "anthropic" || !p.SupportsTools() {
		t.Errorf("Name/SupportsTools = %q/%v", p.Name(), p.SupportsTools())
	}
	if p.getModel("") != "claude-sonnet-4-20250514" {
		t.Errorf("default model = %q", p.getModel(""))
	}
	if p.getModel("claude-opus-4-20250514") != "claude-opus-4-20250514" {
		t.Error("explicit model should win")
	}
	if getMaxTokens(0) != 4096 || getMaxTokens(2000) != 2000 {
		t.Error("getMaxTokens defaults are wrong")
	}
}

func TestAnthropicProviderStreamsText(t *testing.T) {
	var sent map[string]any
	server := anthropicServer(t, [][2]string{
		{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","usage":{"input_tokens":21,"output_tokens":1}}}`},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`},
		{"message_stop", `{"type":"message_stop"}`},
	}, func(body map[string]any) { sent = body })
	defer server.Close()

	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	ch, err := p.Complete(context.Background(), &agent.CompletionRequest{
		System:      "Be brief.",
		Messages:    []agent.CompletionMessage{{Role: "user", Content: "hi"}},
		Temperature: agent.Float64(0),
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	text, calls, last := collect(t, ch)
	if text != "Hello world" {
		t.Errorf("text = %q", text)
	}
	if len(calls) != 0 {
		t.Errorf("unexpected tool calls")
	}
	if !last.Done || last.InputTokens != 21 || last.OutputTokens != 7 {
		t.Errorf("last chunk = %+v", last)
	}

	if _, ok := sent["system"]; !ok {
		t.Error("system prompt should be sent separately")
	}
	if temp, ok := sent["temperature"].(float64); !ok || temp != 0 {
		t.Errorf("temperature = %v", sent["temperature"])
	}
}

func TestAnthropicProviderToolUse(t *testing.T) {
	server := anthropicServer(t, [][2]string{
		{"message_start", `{"type":"message_start","message":{"id":"msg_2","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","usage":{"input_tokens":5,"output_tokens":1}}}`},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"confluence_search","input":{}}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"query\":"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"PTO\"}"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_2","name":"list_spaces","input":{}}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":1}`},
		{"message_stop", `{"type":"message_stop"}`},
	}, nil)
	defer server.Close()

	p, _ := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	ch, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Messages: []agent.CompletionMessage{{Role: "user", Content: "PTO?"}},
		Tools:    []agent.ToolSpec{{Name: "confluence_search"}, {Name: "list_spaces"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	_, calls, _ := collect(t, ch)
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].ID != "toolu_1" || string(calls[0].Input) != `{"query":"PTO"}` {
		t.Errorf("first call = %+v input=%s", calls[0], calls[0].Input)
	}
	if string(calls[1].Input) != "{}" {
		t.Errorf("empty input should become {}, got %s", calls[1].Input)
	}
}

func TestAnthropicProviderRetriesRateLimit(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"Rate limited"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"m\",\"type\":\"message\",\"role\":\"assistant\",\"content\":[],\"usage\":{\"input_tokens\":1,\"output_tokens\":1}}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"ok\"}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer server.Close()

	p, _ := NewAnthropicProvider(AnthropicConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
	ch, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Messages: []agent.CompletionMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text, _, _ := collect(t, ch); text != "ok" {
		t.Errorf("text = %q", text)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestAnthropicProviderAuthErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("request-id", "req_abc")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer server.Close()

	p, _ := NewAnthropicProvider(AnthropicConfig{APIKey: "bad", BaseURL: server.URL, MaxRetries: 3, RetryDelay: time.Millisecond})
	_, err := p.Complete(context.Background(), &agent.CompletionRequest{
		Messages: []agent.CompletionMessage{{Role: "user", Content: "hi"}},
	})
	perr, ok := GetProviderError(err)
	if !ok {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if perr.Reason != ReasonAuth || perr.Status != http.StatusUnauthorized {
		t.Errorf("ProviderError = %+v", perr)
	}
	if perr.Message != "invalid x-api-key" || perr.Code != "authentication_error" {
		t.Errorf("message/code = %q/%q", perr.Message, perr.Code)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestConvertAnthropicMessages(t *testing.T) {
	msgs, err := convertAnthropicMessages([]agent.CompletionMessage{
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "PTO?"},
		{Role: "assistant", ToolCalls: []models.ToolCall{
			{ID: "t1", Name: "search", Input: json.RawMessage(`{"q":"pto"}`)},
			{ID: "t2", Name: "list"},
		}},
		{Role: "tool", ToolResults: []models.ToolResult{
			{ToolCallID: "t1", Content: "20 days"},
			{ToolCallID: "t2", Content: "failed", IsError: true},
		}},
		{Role: "assistant"},
	})
	if err != nil {
		t.Fatalf("convertAnthropicMessages() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3 (system and empty dropped)", len(msgs))
	}
	if msgs[1].Role != "assistant" || len(msgs[1].Content) != 2 {
		t.Errorf("assistant = %+v", msgs[1])
	}
	if msgs[2].Role != "user" || len(msgs[2].Content) != 2 {
		t.Errorf("tool results = %+v", msgs[2])
	}

	_, err = convertAnthropicMessages([]agent.CompletionMessage{
		{Role: "assistant", ToolCalls: []models.ToolCall{{ID: "x", Name: "bad", Input: json.RawMessage(`{`)}}},
	})
	if err == nil {
		t.Error("expected error for invalid tool input")
	}
}

func TestMaxEmptyStreamEvents(t *testing.T) {
	if maxEmptyStreamEvents < 100 || maxEmptyStreamEvents > 1000 {
		t.Errorf("maxEmptyStreamEvents=%d out of range", maxEmptyStreamEvents)
	}
}
