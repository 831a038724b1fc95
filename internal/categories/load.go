package categories

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/concierge/internal/config"
)

// Load builds a registry from configuration. Prompt and knowledge base
// files are resolved relative to baseDir. A config without definitions
// yields the built-in registry.
func Load(cfg config.CategoriesConfig, baseDir string) (*Registry, error) {
	if len(cfg.Definitions) == 0 {
		if cfg.Default != "" && NormalizeID(cfg.Default) != DefaultID {
			return nil, fmt.Errorf("categories: default %q is not a built-in category", cfg.Default)
		}
		return Builtin(), nil
	}

	cats := make([]Category, 0, len(cfg.Definitions))
	for i, def := range cfg.Definitions {
		prompt, err := resolveText(def.Prompt, def.PromptFile, baseDir)
		if err != nil {
			return nil, fmt.Errorf("categories[%d] (%s): prompt: %w", i, def.ID, err)
		}
		if strings.TrimSpace(prompt) == "" {
			return nil, fmt.Errorf("categories[%d] (%s): prompt is empty", i, def.ID)
		}
		kb, err := resolveText(def.KnowledgeBase, def.KnowledgeBaseFile, baseDir)
		if err != nil {
			return nil, fmt.Errorf("categories[%d] (%s): knowledge base: %w", i, def.ID, err)
		}

		cats = append(cats, Category{
			ID:            def.ID,
			Description:   def.Description,
			Aliases:       def.Aliases,
			Prompt:        prompt,
			KnowledgeBase: kb,
			ContextPrefix: def.ContextPrefix,
		})
	}

	defaultID := cfg.Default
	if defaultID == "" {
		defaultID = DefaultID
	}
	return New(defaultID, cats...)
}

// resolveText prefers inline text and falls back to reading path.
func resolveText(inline, path, baseDir string) (string, error) {
	if inline != "" || path == "" {
		return inline, nil
	}
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
