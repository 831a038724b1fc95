package routing

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/haasonsaas/concierge/internal/categories"
)

// KeywordClassifier matches category aliases against the question text
// itself, without a model call. Aliases are matched on word boundaries so
// short aliases like "vs" do not fire inside other words.
type KeywordClassifier struct {
	registry *categories.Registry
	rules    []keywordRule
}

type keywordRule struct {
	categoryID string
	alias      string
	pattern    *regexp.Regexp
}

// NewKeywordClassifier compiles alias patterns for every category except the
// default, which is what an unmatched question falls back to anyway.
func NewKeywordClassifier(registry *categories.Registry) *KeywordClassifier {
	c := &KeywordClassifier{registry: registry}
	for _, cat := range registry.All() {
		if cat.ID == registry.DefaultID() {
			continue
		}
		for _, alias := range append([]string{cat.ID}, cat.Aliases...) {
			c.rules = append(c.rules, keywordRule{
				categoryID: cat.ID,
				alias:      alias,
				pattern:    regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(alias) + `\b`),
			})
		}
	}
	return c
}

// Classify returns the first category whose id or alias appears in question.
func (c *KeywordClassifier) Classify(ctx context.Context, question string) Result {
	start := time.Now()
	content := strings.TrimSpace(question)

	for _, rule := range c.rules {
		if rule.pattern.MatchString(content) {
			source := SourceAlias
			if rule.alias == rule.categoryID {
				source = SourceID
			}
			return Result{
				CategoryID: rule.categoryID,
				Source:     source,
				Raw:        rule.alias,
				Elapsed:    time.Since(start),
			}
		}
	}

	return Result{
		CategoryID: c.registry.DefaultID(),
		Source:     SourceDefault,
		Elapsed:    time.Since(start),
	}
}

// Chain tries a pre-filter first and only consults next when the pre-filter
// fell back to the default.
type Chain struct {
	First Classifier
	Next  Classifier
}

func (c Chain) Classify(ctx context.Context, question string) Result {
	if c.First != nil {
		if r := c.First.Classify(ctx, question); r.Source != SourceDefault {
			return r
		}
	}
	return c.Next.Classify(ctx, question)
}
