package routing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/categories"
)

// stubProvider answers every request with text, or fails the way it is told to.
type stubProvider struct {
	text      string
	err       error
	streamErr error
	delay     time.Duration

	mu       sync.Mutex
	requests []*agent.CompletionRequest
}

func (p *stubProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan *agent.CompletionChunk, 2)
	go func() {
		defer close(ch)
		if p.delay > 0 {
			select {
			case <-time.After(p.delay):
			case <-ctx.Done():
				return
			}
		}
		if p.streamErr != nil {
			ch <- &agent.CompletionChunk{Error: p.streamErr}
			return
		}
		ch <- &agent.CompletionChunk{Text: p.text}
		ch <- &agent.CompletionChunk{Done: true}
	}()
	return ch, nil
}

func (p *stubProvider) Name() string          { return "stub" }
func (p *stubProvider) Models() []agent.Model { return nil }
func (p *stubProvider) SupportsTools() bool   { return false }

func (p *stubProvider) lastRequest() *agent.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

func TestLLMClassifierMapsOutput(t *testing.T) {
	registry := categories.Builtin()

	tests := []struct {
		name       string
		output     string
		wantID     string
		wantSource Source
		degraded   bool
	}{
		{"exact id", "ertc", "ertc", SourceID, false},
		{"mixed case and quotes", "  'Competitors'.\n", "competitors", SourceID, false},
		{"alias substring", "this is about a tax question", "ertc", SourceAlias, false},
		{"alias in registry order", "company tax policy", "general", SourceAlias, false},
		{"multi word alias", "employee retention", "ertc", SourceAlias, false},
		{"garbage", "banana", "general", SourceDefault, true},
		{"empty", "   ", "general", SourceDefault, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLLMClassifier(&stubProvider{text: tt.output}, registry, LLMClassifierConfig{})
			got := c.Classify(context.Background(), "question")

			if got.CategoryID != tt.wantID {
				t.Errorf("CategoryID = %q, want %q", got.CategoryID, tt.wantID)
			}
			if got.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", got.Source, tt.wantSource)
			}
			if (got.Degraded != nil) != tt.degraded {
				t.Errorf("Degraded = %v, want degraded=%v", got.Degraded, tt.degraded)
			}
			if tt.degraded && !errors.Is(got.Degraded, ErrUnrecognized) {
				t.Errorf("Degraded = %v, want ErrUnrecognized", got.Degraded)
			}
		})
	}
}

func TestLLMClassifierRequest(t *testing.T) {
	registry := categories.Builtin()
	provider := &stubProvider{text: "general"}
	c := NewLLMClassifier(provider, registry, LLMClassifierConfig{Model: "gpt-4.1-mini"})

	c.Classify(context.Background(), "What is the PTO policy?")

	req := provider.lastRequest()
	if req == nil {
		t.Fatal("provider was not called")
	}
	if req.System != registry.RouterInstructions() {
		t.Error("system prompt should be the router instructions")
	}
	if req.Model != "gpt-4.1-mini" {
		t.Errorf("Model = %q", req.Model)
	}
	if req.Temperature == nil || *req.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", req.Temperature)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "What is the PTO policy?" {
		t.Errorf("Messages = %+v", req.Messages)
	}
	if len(req.Tools) != 0 {
		t.Error("classifier must not offer tools")
	}
}

func TestLLMClassifierFailuresFallBack(t *testing.T) {
	registry := categories.Builtin()
	boom := errors.New("503 service unavailable")

	tests := []struct {
		name     string
		provider agent.LLMProvider
		timeout  time.Duration
		want     error
	}{
		{"complete error", &stubProvider{err: boom}, 0, boom},
		{"stream error", &stubProvider{streamErr: boom}, 0, boom},
		{"timeout", &stubProvider{text: "ertc", delay: time.Second}, 20 * time.Millisecond, context.DeadlineExceeded},
		{"no provider", nil, 0, agent.ErrNoProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLLMClassifier(tt.provider, registry, LLMClassifierConfig{Timeout: tt.timeout})
			got := c.Classify(context.Background(), "q")

			if got.CategoryID != "general" || got.Source != SourceDefault {
				t.Errorf("result = %+v, want default", got)
			}
			if !errors.Is(got.Degraded, tt.want) {
				t.Errorf("Degraded = %v, want %v", got.Degraded, tt.want)
			}
		})
	}
}

func TestMatchIDBeatsAlias(t *testing.T) {
	registry, err := categories.New("a",
		categories.Category{ID: "a", Prompt: "p", Aliases: []string{"b"}},
		categories.Category{ID: "b", Prompt: "p"},
	)
	if err != nil {
		t.Fatal(err)
	}
	got := Match(registry, "B")
	if got.CategoryID != "b" || got.Source != SourceID {
		t.Errorf("Match() = %+v, want id match on b", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  ERTC ":           "ertc",
		`"competitors".`:    "competitors",
		"**general**":       "general",
		"- 'ertc'":          "ertc",
		"tax credit (ertc)": "tax credit (ertc",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchTruncatesLongGarbage(t *testing.T) {
	got := Match(categories.Builtin(), strings.Repeat("x", 200))
	if len(got.Degraded.Error()) > 120 {
		t.Errorf("degraded message too long: %d", len(got.Degraded.Error()))
	}
}
