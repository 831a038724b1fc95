// Package prompts builds the enriched prompt handed to the orchestrator.
package prompts

import (
	"strings"

	"github.com/haasonsaas/concierge/internal/categories"
	"github.com/haasonsaas/concierge/pkg/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultMaxHistory is how many past messages are rendered when MaxHistory is unset.
const DefaultMaxHistory = 10

const (
	historyHeader  = "Previous conversation:"
	questionPrefix = "Current question: "
)

var titleCaser = cases.Title(language.English)

// Assembler renders category material, recent history and the question into
// one prompt. The zero value is ready to use.
type Assembler struct {
	// MaxHistory caps the rendered history to the most recent entries.
	MaxHistory int
}

// Assemble renders, in order and separated by blank lines: the category
// prompt, its knowledge base, its context prefix, the history block and
// the current question. Empty sections are skipped, and the history block
// is omitted when there is no history.
func (a Assembler) Assemble(cat categories.Category, question string, history []models.ConversationMessage) string {
	sections := make([]string, 0, 5)
	for _, s := range []string{cat.Prompt, cat.KnowledgeBase, cat.ContextPrefix} {
		if s = strings.TrimSpace(s); s != "" {
			sections = append(sections, s)
		}
	}
	if block := a.renderHistory(history); block != "" {
		sections = append(sections, block)
	}
	sections = append(sections, questionPrefix+strings.TrimSpace(question))
	return strings.Join(sections, "\n\n")
}

func (a Assembler) renderHistory(history []models.ConversationMessage) string {
	limit := a.MaxHistory
	if limit <= 0 {
		limit = DefaultMaxHistory
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	if len(history) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(historyHeader)
	for _, msg := range history {
		sb.WriteString("\n")
		sb.WriteString(RoleLabel(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
	}
	return sb.String()
}

// RoleLabel renders a role the way it appears in history lines ("User", "Assistant").
func RoleLabel(role models.Role) string {
	return titleCaser.String(string(role))
}
