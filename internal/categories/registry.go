// Package categories holds the immutable set of topic categories a question
// can be routed to, together with the prompt material each one contributes.
package categories

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Lookup for ids that are not registered.
var ErrNotFound = errors.New("category not found")

// RouterPreamble opens the classifier system prompt.
const RouterPreamble = "You are a query router. Classify the user's question into one of the following categories and respond with ONLY the category name:"

// Category is one topic the assistant knows how to answer.
type Category struct {
	ID          string
	Description string

	// Aliases are matched as substrings of the classifier output.
	Aliases []string

	// Prompt is the resolved instruction template.
	Prompt string

	// KnowledgeBase is optional reference text appended after the prompt.
	KnowledgeBase string

	// ContextPrefix is a short banner placed after the prompt material.
	ContextPrefix string
}

// Registry is an immutable, validated set of categories.
// It is safe for concurrent use without locking.
type Registry struct {
	defaultID string
	order     []string
	byID      map[string]Category
}

// New validates cats and builds a registry. Ids are normalized to lower case.
func New(defaultID string, cats ...Category) (*Registry, error) {
	if len(cats) == 0 {
		return nil, errors.New("categories: at least one category is required")
	}

	r := &Registry{
		defaultID: NormalizeID(defaultID),
		order:     make([]string, 0, len(cats)),
		byID:      make(map[string]Category, len(cats)),
	}

	var issues []string
	for i, cat := range cats {
		id := NormalizeID(cat.ID)
		switch {
		case id == "":
			issues = append(issues, fmt.Sprintf("categories[%d]: id is required", i))
			continue
		case r.byID[id].ID != "":
			issues = append(issues, fmt.Sprintf("categories[%d]: duplicate id %q", i, id))
			continue
		}
		if strings.TrimSpace(cat.Prompt) == "" {
			issues = append(issues, fmt.Sprintf("categories[%d] (%s): prompt is empty", i, id))
		}

		cat.ID = id
		cat.Aliases = normalizeAliases(cat.Aliases)
		r.order = append(r.order, id)
		r.byID[id] = cat
	}

	if r.defaultID == "" {
		issues = append(issues, "default category id is required")
	} else if _, ok := r.byID[r.defaultID]; !ok {
		issues = append(issues, fmt.Sprintf("default category %q is not defined", r.defaultID))
	}

	if len(issues) > 0 {
		return nil, fmt.Errorf("categories: invalid registry:\n- %s", strings.Join(issues, "\n- "))
	}
	return r, nil
}

// Lookup returns the category with the given id.
func (r *Registry) Lookup(id string) (Category, error) {
	cat, ok := r.byID[NormalizeID(id)]
	if !ok {
		return Category{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return cloneCategory(cat), nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[NormalizeID(id)]
	return ok
}

// Default returns the fallback category.
func (r *Registry) Default() Category {
	return cloneCategory(r.byID[r.defaultID])
}

func (r *Registry) DefaultID() string {
	return r.defaultID
}

// All returns every category in declaration order.
func (r *Registry) All() []Category {
	out := make([]Category, len(r.order))
	for i, id := range r.order {
		out[i] = cloneCategory(r.byID[id])
	}
	return out
}

// IDs returns the registered ids in declaration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// RouterInstructions renders the classifier system prompt: the router
// preamble followed by one "- '<id>': <description>" line per category.
func (r *Registry) RouterInstructions() string {
	var sb strings.Builder
	sb.WriteString(RouterPreamble)
	sb.WriteString("\n")
	for _, id := range r.order {
		fmt.Fprintf(&sb, "\n- '%s': %s", id, r.byID[id].Description)
	}
	return sb.String()
}

// NormalizeID lower-cases and trims a category id.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func normalizeAliases(aliases []string) []string {
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func cloneCategory(c Category) Category {
	c.Aliases = append([]string(nil), c.Aliases...)
	return c
}
