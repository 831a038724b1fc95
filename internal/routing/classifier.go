// Package routing assigns an incoming question to a registered category.
//
// Classification is best effort: every classifier in this package returns a
// registry key, falling back to the registry default when the model output
// cannot be mapped or the model call fails.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/categories"
)

// ErrUnrecognized marks classifier output that matched no id or alias.
var ErrUnrecognized = errors.New("unrecognized category")

// Source records how a category was chosen.
type Source string

const (
	SourceID      Source = "id"
	SourceAlias   Source = "alias"
	SourceDefault Source = "default"
)

// Result is a classification outcome. CategoryID is always a registry key.
type Result struct {
	CategoryID string
	Source     Source

	// Raw is the unprocessed model output, if any.
	Raw string

	// Degraded is set when the default was used because of an error or an
	// unmappable answer.
	Degraded error

	Elapsed time.Duration
}

// Classifier maps a question to a category. Implementations never fail.
type Classifier interface {
	Classify(ctx context.Context, question string) Result
}

// LLMClassifierConfig configures an LLMClassifier.
type LLMClassifierConfig struct {
	Model       string
	Temperature float64

	// Timeout bounds the model call. Default: 15s.
	Timeout time.Duration

	// MaxTokens caps the answer; a category name needs very few.
	MaxTokens int

	Logger *slog.Logger
}

// LLMClassifier asks a model to name the category.
type LLMClassifier struct {
	provider agent.LLMProvider
	registry *categories.Registry
	config   LLMClassifierConfig
	logger   *slog.Logger
}

// NewLLMClassifier creates a classifier backed by provider.
func NewLLMClassifier(provider agent.LLMProvider, registry *categories.Registry, cfg LLMClassifierConfig) *LLMClassifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMClassifier{
		provider: provider,
		registry: registry,
		config:   cfg,
		logger:   logger.With("component", "classifier"),
	}
}

// Classify returns the category for question. Provider errors, timeouts and
// unrecognized output all resolve to the registry default with Degraded set.
func (c *LLMClassifier) Classify(ctx context.Context, question string) Result {
	start := time.Now()
	result := c.classify(ctx, question)
	result.Elapsed = time.Since(start)

	if result.Degraded != nil {
		c.logger.Warn("classification degraded, using default",
			"category", result.CategoryID,
			"raw", result.Raw,
			"error", result.Degraded)
	} else {
		c.logger.Debug("question classified",
			"category", result.CategoryID,
			"source", result.Source)
	}
	return result
}

func (c *LLMClassifier) classify(ctx context.Context, question string) Result {
	if c.provider == nil {
		return c.fallback("", agent.ErrNoProvider)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	raw, err := c.complete(ctx, question)
	if err != nil {
		return c.fallback(raw, err)
	}
	return Match(c.registry, raw)
}

func (c *LLMClassifier) complete(ctx context.Context, question string) (string, error) {
	req := &agent.CompletionRequest{
		Model:       c.config.Model,
		System:      c.registry.RouterInstructions(),
		Messages:    []agent.CompletionMessage{{Role: "user", Content: question}},
		MaxTokens:   c.config.MaxTokens,
		Temperature: agent.Float64(c.config.Temperature),
	}

	chunks, err := c.provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return sb.String(), fmt.Errorf("classification: %w", ctx.Err())
		case chunk, ok := <-chunks:
			if !ok {
				if err := ctx.Err(); err != nil {
					return sb.String(), fmt.Errorf("classification: %w", err)
				}
				return sb.String(), nil
			}
			if chunk == nil {
				continue
			}
			if chunk.Error != nil {
				return sb.String(), chunk.Error
			}
			sb.WriteString(chunk.Text)
		}
	}
}

func (c *LLMClassifier) fallback(raw string, err error) Result {
	return Result{
		CategoryID: c.registry.DefaultID(),
		Source:     SourceDefault,
		Raw:        raw,
		Degraded:   err,
	}
}

// Match maps raw classifier output onto the registry. An exact id match wins
// over an alias match; aliases are tried category by category in registry
// order.
func Match(registry *categories.Registry, raw string) Result {
	normalized := Normalize(raw)
	result := Result{Raw: raw}

	switch {
	case normalized == "":
		result.Degraded = fmt.Errorf("%w: empty response", ErrUnrecognized)
	case registry.Has(normalized):
		result.CategoryID = categories.NormalizeID(normalized)
		result.Source = SourceID
		return result
	default:
		for _, cat := range registry.All() {
			for _, alias := range cat.Aliases {
				if strings.Contains(normalized, alias) {
					result.CategoryID = cat.ID
					result.Source = SourceAlias
					return result
				}
			}
		}
		result.Degraded = fmt.Errorf("%w: %q", ErrUnrecognized, truncate(normalized, 64))
	}

	result.CategoryID = registry.DefaultID()
	result.Source = SourceDefault
	return result
}

// Normalize trims, lower-cases and strips surrounding quotes and punctuation.
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.Trim(s, " \t\r\n\"'`*_.,:;!?()[]{}<>-")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
