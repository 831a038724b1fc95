package categories

import (
	_ "embed"
)

var (
	//go:embed builtin/general.txt
	generalPrompt string

	//go:embed builtin/ertc.txt
	ertcPrompt string

	//go:embed builtin/competitors.txt
	competitorsPrompt string
)

// DefaultID is the fallback category of the built-in registry.
const DefaultID = "general"

// BuiltinCategories returns the stock category definitions.
func BuiltinCategories() []Category {
	return []Category{
		{
			ID:            "general",
			Description:   "For questions about company policies, internal processes, or anything requiring a search of the internal knowledge base (Confluence). This is the default category for anything not clearly in another category.",
			Aliases:       []string{"general", "default", "company", "policy", "process"},
			Prompt:        generalPrompt,
			ContextPrefix: "**Answering a general company question.**",
		},
		{
			ID:            "ertc",
			Description:   "For specific questions about the Employee Retention Tax Credit, IRS rules, tax forms, deadlines, and financial reconciliation.",
			Aliases:       []string{"ertc", "tax", "credit", "employee retention", "retention credit"},
			Prompt:        ertcPrompt,
			ContextPrefix: "**Answering a question about ERTC. Here is relevant context:**",
		},
		{
			ID:            "competitors",
			Description:   "For questions comparing this organization to other companies, or asking for 'battle cards' and competitive analysis.",
			Aliases:       []string{"competitor", "competitors", "versus", "vs", "comparison", "other company", "alternative"},
			Prompt:        competitorsPrompt,
			ContextPrefix: "**Answering a question about competitors. Here is relevant context:**",
		},
	}
}

// Builtin returns a registry of the stock categories.
func Builtin() *Registry {
	r, err := New(DefaultID, BuiltinCategories()...)
	if err != nil {
		panic("categories: builtin registry is invalid: " + err.Error())
	}
	return r
}
