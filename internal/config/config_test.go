package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  max_rounds: 5
  extra: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  providers:
    openai:
      api_key: sk-test
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	p := cfg.Pipeline
	if p.MaxRounds != 10 {
		t.Errorf("MaxRounds = %d, want 10", p.MaxRounds)
	}
	if p.MemoryTTL() != 24*time.Hour {
		t.Errorf("MemoryTTL() = %v, want 24h", p.MemoryTTL())
	}
	if p.MaxMessagesPerThread != 50 {
		t.Errorf("MaxMessagesPerThread = %d, want 50", p.MaxMessagesPerThread)
	}
	if p.MaxHistoryInPrompt != 10 {
		t.Errorf("MaxHistoryInPrompt = %d, want 10", p.MaxHistoryInPrompt)
	}
	if p.ClassificationTemperature != 0 {
		t.Errorf("ClassificationTemperature = %v, want 0", p.ClassificationTemperature)
	}
	if p.ClassificationTimeout != 15*time.Second {
		t.Errorf("ClassificationTimeout = %v, want 15s", p.ClassificationTimeout)
	}
	if p.SweepSchedule != "@every 5m" {
		t.Errorf("SweepSchedule = %q", p.SweepSchedule)
	}
	if cfg.Categories.Default != "general" {
		t.Errorf("Categories.Default = %q, want general", cfg.Categories.Default)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.ClassifierProvider != "openai" {
		t.Errorf("providers = %q/%q, want openai/openai", cfg.LLM.Provider, cfg.LLM.ClassifierProvider)
	}
	if cfg.LLM.Model != "gpt-4.1" {
		t.Errorf("Model = %q, want gpt-4.1", cfg.LLM.Model)
	}
	if cfg.Slack.Command != "/ai" {
		t.Errorf("Slack.Command = %q, want /ai", cfg.Slack.Command)
	}
	if cfg.BaseDir != filepath.Dir(path) {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, filepath.Dir(path))
	}
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  classification_timeout: 3s
  generate_timeout: 2m
  tool_timeout: 500ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.ClassificationTimeout != 3*time.Second {
		t.Errorf("ClassificationTimeout = %v", cfg.Pipeline.ClassificationTimeout)
	}
	if cfg.Pipeline.GenerateTimeout != 2*time.Minute {
		t.Errorf("GenerateTimeout = %v", cfg.Pipeline.GenerateTimeout)
	}
	if cfg.Pipeline.ToolTimeout != 500*time.Millisecond {
		t.Errorf("ToolTimeout = %v", cfg.Pipeline.ToolTimeout)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("CONCIERGE_TEST_KEY", "sk-from-env")
	path := writeConfig(t, `
llm:
  providers:
    openai:
      api_key: ${CONCIERGE_TEST_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.ProviderConfig("openai").APIKey; got != "sk-from-env" {
		t.Fatalf("api_key = %q, want sk-from-env", got)
	}
}

func TestLoadValidatesProvider(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: bedrock
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "llm.provider") {
		t.Fatalf("expected llm.provider error, got %v", err)
	}
	var verr *ConfigValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ConfigValidationError, got %T", err)
	}
}

func TestLoadValidatesCategories(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "duplicate id",
			yaml: `
categories:
  default: general
  definitions:
    - id: general
      prompt: a
    - id: General
      prompt: b
`,
			want: "duplicated",
		},
		{
			name: "missing prompt",
			yaml: `
categories:
  default: general
  definitions:
    - id: general
`,
			want: "needs prompt",
		},
		{
			name: "unknown default",
			yaml: `
categories:
  default: hr
  definitions:
    - id: general
      prompt: a
`,
			want: "categories.default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadValidatesPipelineBounds(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  max_rounds: -1
  classification_temperature: 3
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"max_rounds", "classification_temperature"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in error, got %v", want, err)
		}
	}
}

func TestLoadValidatesKnowledgeServers(t *testing.T) {
	path := writeConfig(t, `
knowledge:
  servers:
    - id: atlassian
      transport: stdio
      command: mcp-atlassian
      args: ["--read-only; rm -rf /"]
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "knowledge.servers[0]") {
		t.Fatalf("expected knowledge.servers error, got %v", err)
	}
}

func TestLoadSlackRequiresTokensWhenEnabled(t *testing.T) {
	path := writeConfig(t, `
slack:
  enabled: true
  bot_token: xoxb-1
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "slack.app_token") {
		t.Fatalf("expected slack.app_token error, got %v", err)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "base.yaml"), `
pipeline:
  max_rounds: 4
  max_history_in_prompt: 6
llm:
  model: gpt-4.1-mini
`)
	path := filepath.Join(dir, "concierge.yaml")
	writeFile(t, path, `
$include: base.yaml
pipeline:
  max_rounds: 7
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.MaxRounds != 7 {
		t.Errorf("MaxRounds = %d, want 7 (including file wins)", cfg.Pipeline.MaxRounds)
	}
	if cfg.Pipeline.MaxHistoryInPrompt != 6 {
		t.Errorf("MaxHistoryInPrompt = %d, want 6 (from include)", cfg.Pipeline.MaxHistoryInPrompt)
	}
	if cfg.LLM.Model != "gpt-4.1-mini" {
		t.Errorf("Model = %q, want gpt-4.1-mini", cfg.LLM.Model)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), `$include: b.yaml`)
	writeFile(t, filepath.Join(dir, "b.yaml"), `$include: a.yaml`)

	_, err := Load(filepath.Join(dir, "a.yaml"))
	if err == nil {
		t.Fatalf("expected include cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestLoadJSON5(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "concierge.json5")
	writeFile(t, path, `{
  // comments are allowed
  pipeline: {max_rounds: 3},
  llm: {provider: "anthropic", model: "claude-sonnet-4-20250514"},
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.MaxRounds != 3 {
		t.Errorf("MaxRounds = %d, want 3", cfg.Pipeline.MaxRounds)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.ClassifierProvider != "anthropic" {
		t.Errorf("providers = %q/%q", cfg.LLM.Provider, cfg.LLM.ClassifierProvider)
	}
}

func TestResolvePath(t *testing.T) {
	cfg := &Config{BaseDir: "/etc/concierge"}
	if got := cfg.ResolvePath("prompts/mcp.txt"); got != "/etc/concierge/prompts/mcp.txt" {
		t.Errorf("ResolvePath(relative) = %q", got)
	}
	if got := cfg.ResolvePath("/abs/prompt.txt"); got != "/abs/prompt.txt" {
		t.Errorf("ResolvePath(absolute) = %q", got)
	}
	if got := cfg.ResolvePath(""); got != "" {
		t.Errorf("ResolvePath(empty) = %q", got)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestJSONSchemaUsesYAMLNames(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	if !json.Valid(data) {
		t.Fatalf("schema is not valid JSON")
	}
	for _, want := range []string{"max_messages_per_thread", "enabled_tools", "context_prefix"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("schema missing %q", want)
		}
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "concierge.yaml")
	writeFile(t, path, contents)
	return path
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}
