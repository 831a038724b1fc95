// Package config loads and validates the concierge configuration file.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/haasonsaas/concierge/internal/mcp"
)

// Config is the root configuration.
type Config struct {
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Categories    CategoriesConfig    `yaml:"categories"`
	LLM           LLMConfig           `yaml:"llm"`
	Knowledge     KnowledgeConfig     `yaml:"knowledge"`
	Slack         SlackConfig         `yaml:"slack"`
	Observability ObservabilityConfig `yaml:"observability"`

	// BaseDir is the directory of the loaded file. Relative prompt and
	// knowledge-base paths resolve against it.
	BaseDir string `yaml:"-" json:"-"`
}

// PipelineConfig holds the request pipeline tunables.
type PipelineConfig struct {
	MaxRounds                 int           `yaml:"max_rounds"`
	MemoryTTLHours            int           `yaml:"memory_ttl_hours"`
	MaxMessagesPerThread      int           `yaml:"max_messages_per_thread"`
	MaxHistoryInPrompt        int           `yaml:"max_history_in_prompt"`
	ClassificationTemperature float64       `yaml:"classification_temperature"`
	ClassifierModel           string        `yaml:"classifier_model"`
	ClassificationTimeout     time.Duration `yaml:"classification_timeout"`
	GenerateTimeout           time.Duration `yaml:"generate_timeout"`
	ToolTimeout               time.Duration `yaml:"tool_timeout"`
	SweepSchedule             string        `yaml:"sweep_schedule"`
}

// MemoryTTL returns the thread inactivity window as a duration.
func (p PipelineConfig) MemoryTTL() time.Duration {
	return time.Duration(p.MemoryTTLHours) * time.Hour
}

// CategoriesConfig declares the category registry.
// An empty definitions list selects the built-in categories.
type CategoriesConfig struct {
	Default     string           `yaml:"default"`
	Definitions []CategoryConfig `yaml:"definitions"`
}

// CategoryConfig declares one category. Prompt and knowledge base may be
// given inline or as files relative to the config file.
type CategoryConfig struct {
	ID                string   `yaml:"id"`
	Description       string   `yaml:"description"`
	Aliases           []string `yaml:"aliases"`
	Prompt            string   `yaml:"prompt"`
	PromptFile        string   `yaml:"prompt_file"`
	KnowledgeBase     string   `yaml:"knowledge_base"`
	KnowledgeBaseFile string   `yaml:"knowledge_base_file"`
	ContextPrefix     string   `yaml:"context_prefix"`
}

// LLMConfig selects providers and models.
type LLMConfig struct {
	Provider           string                       `yaml:"provider"`
	ClassifierProvider string                       `yaml:"classifier_provider"`
	Model              string                       `yaml:"model"`
	SystemPrompt       string                       `yaml:"system_prompt"`
	SystemPromptFile   string                       `yaml:"system_prompt_file"`
	MaxTokens          int                          `yaml:"max_tokens"`
	Providers          map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey       string        `yaml:"api_key"`
	DefaultModel string        `yaml:"default_model"`
	BaseURL      string        `yaml:"base_url"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

// KnowledgeConfig configures the MCP servers used for knowledge lookups.
type KnowledgeConfig struct {
	// EnabledTools is an allow list; empty exposes every discovered tool.
	EnabledTools []string           `yaml:"enabled_tools"`
	Servers      []mcp.ServerConfig `yaml:"servers"`
}

// SlackConfig configures the Socket Mode front end.
type SlackConfig struct {
	Enabled   bool    `yaml:"enabled"`
	BotToken  string  `yaml:"bot_token"`
	AppToken  string  `yaml:"app_token"`
	Command   string  `yaml:"command"`
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TracingConfig controls OpenTelemetry tracing. An empty endpoint disables export.
type TracingConfig struct {
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// ConfigValidationError collects every problem found in a config file.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(e.Issues, "\n  - ")
}

// Load reads, merges, defaults and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		cfg.BaseDir = filepath.Dir(abs)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied and no file behind it.
func Default() *Config {
	cfg := &Config{BaseDir: "."}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	p := &cfg.Pipeline
	if p.MaxRounds == 0 {
		p.MaxRounds = 10
	}
	if p.MemoryTTLHours == 0 {
		p.MemoryTTLHours = 24
	}
	if p.MaxMessagesPerThread == 0 {
		p.MaxMessagesPerThread = 50
	}
	if p.MaxHistoryInPrompt == 0 {
		p.MaxHistoryInPrompt = 10
	}
	if p.ClassifierModel == "" {
		p.ClassifierModel = "gpt-4.1-mini"
	}
	if p.ClassificationTimeout == 0 {
		p.ClassificationTimeout = 15 * time.Second
	}
	if p.GenerateTimeout == 0 {
		p.GenerateTimeout = 60 * time.Second
	}
	if p.ToolTimeout == 0 {
		p.ToolTimeout = 30 * time.Second
	}
	if p.SweepSchedule == "" {
		p.SweepSchedule = "@every 5m"
	}

	if cfg.Categories.Default == "" {
		cfg.Categories.Default = "general"
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.ClassifierProvider == "" {
		cfg.LLM.ClassifierProvider = cfg.LLM.Provider
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4.1"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}

	for i := range cfg.Knowledge.Servers {
		srv := &cfg.Knowledge.Servers[i]
		if srv.Transport == "" {
			srv.Transport = mcp.TransportStdio
		}
		if srv.Name == "" {
			srv.Name = srv.ID
		}
	}

	if cfg.Slack.Command == "" {
		cfg.Slack.Command = "/ai"
	}
	if cfg.Slack.RateLimit == 0 {
		cfg.Slack.RateLimit = 1
	}
	if cfg.Slack.RateBurst == 0 {
		cfg.Slack.RateBurst = 5
	}

	if cfg.Observability.Logging.Level == "" {
		cfg.Observability.Logging.Level = "info"
	}
	if cfg.Observability.Logging.Format == "" {
		cfg.Observability.Logging.Format = "json"
	}
	if cfg.Observability.Metrics.Addr == "" {
		cfg.Observability.Metrics.Addr = ":9090"
	}
	if cfg.Observability.Tracing.ServiceName == "" {
		cfg.Observability.Tracing.ServiceName = "concierge"
	}
	if cfg.Observability.Tracing.SamplingRate == 0 {
		cfg.Observability.Tracing.SamplingRate = 1
	}
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"google":    true,
}

// Validate checks the configuration after defaults have been applied.
func (c *Config) Validate() error {
	var issues []string

	p := c.Pipeline
	if p.MaxRounds < 1 {
		issues = append(issues, "pipeline.max_rounds must be at least 1")
	}
	if p.MemoryTTLHours < 1 {
		issues = append(issues, "pipeline.memory_ttl_hours must be at least 1")
	}
	if p.MaxMessagesPerThread < 2 {
		issues = append(issues, "pipeline.max_messages_per_thread must be at least 2")
	}
	if p.MaxHistoryInPrompt < 0 {
		issues = append(issues, "pipeline.max_history_in_prompt must not be negative")
	}
	if p.ClassificationTemperature < 0 || p.ClassificationTemperature > 2 {
		issues = append(issues, "pipeline.classification_temperature must be between 0 and 2")
	}
	if p.ClassificationTimeout < 0 || p.GenerateTimeout < 0 || p.ToolTimeout < 0 {
		issues = append(issues, "pipeline timeouts must not be negative")
	}

	seen := make(map[string]bool, len(c.Categories.Definitions))
	for i, def := range c.Categories.Definitions {
		id := strings.ToLower(strings.TrimSpace(def.ID))
		if id == "" {
			issues = append(issues, fmt.Sprintf("categories.definitions[%d].id is required", i))
			continue
		}
		if seen[id] {
			issues = append(issues, fmt.Sprintf("categories.definitions[%d].id %q is duplicated", i, def.ID))
		}
		seen[id] = true
		if strings.TrimSpace(def.Prompt) == "" && strings.TrimSpace(def.PromptFile) == "" {
			issues = append(issues, fmt.Sprintf("categories.definitions[%d] (%s) needs prompt or prompt_file", i, def.ID))
		}
		if def.Prompt != "" && def.PromptFile != "" {
			issues = append(issues, fmt.Sprintf("categories.definitions[%d] (%s) sets both prompt and prompt_file", i, def.ID))
		}
	}
	if len(c.Categories.Definitions) > 0 && !seen[strings.ToLower(strings.TrimSpace(c.Categories.Default))] {
		issues = append(issues, fmt.Sprintf("categories.default %q is not a defined category", c.Categories.Default))
	}

	if !validProviders[c.LLM.Provider] {
		issues = append(issues, fmt.Sprintf("llm.provider %q must be openai, anthropic or google", c.LLM.Provider))
	}
	if !validProviders[c.LLM.ClassifierProvider] {
		issues = append(issues, fmt.Sprintf("llm.classifier_provider %q must be openai, anthropic or google", c.LLM.ClassifierProvider))
	}
	for name := range c.LLM.Providers {
		if !validProviders[name] {
			issues = append(issues, fmt.Sprintf("llm.providers.%s is not a supported provider", name))
		}
	}
	if c.LLM.MaxTokens < 1 {
		issues = append(issues, "llm.max_tokens must be at least 1")
	}

	serverIDs := make(map[string]bool, len(c.Knowledge.Servers))
	for i := range c.Knowledge.Servers {
		srv := c.Knowledge.Servers[i]
		if err := srv.Validate(); err != nil {
			issues = append(issues, fmt.Sprintf("knowledge.servers[%d]: %v", i, err))
			continue
		}
		if serverIDs[srv.ID] {
			issues = append(issues, fmt.Sprintf("knowledge.servers[%d].id %q is duplicated", i, srv.ID))
		}
		serverIDs[srv.ID] = true
	}

	if c.Slack.Enabled {
		if strings.TrimSpace(c.Slack.BotToken) == "" {
			issues = append(issues, "slack.bot_token is required when slack is enabled")
		}
		if strings.TrimSpace(c.Slack.AppToken) == "" {
			issues = append(issues, "slack.app_token is required when slack is enabled")
		}
	}
	if !strings.HasPrefix(c.Slack.Command, "/") {
		issues = append(issues, fmt.Sprintf("slack.command %q must start with /", c.Slack.Command))
	}
	if c.Slack.RateLimit < 0 || c.Slack.RateBurst < 0 {
		issues = append(issues, "slack.rate_limit and slack.rate_burst must not be negative")
	}

	switch strings.ToLower(c.Observability.Logging.Format) {
	case "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("observability.logging.format %q must be json or text", c.Observability.Logging.Format))
	}
	if r := c.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		issues = append(issues, "observability.tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

// ResolvePath resolves a possibly relative path against the config directory.
func (c *Config) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	base := c.BaseDir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, path)
}

// ProviderConfig returns the settings for a named provider, zero value if absent.
func (c *Config) ProviderConfig(name string) LLMProviderConfig {
	if c.LLM.Providers == nil {
		return LLMProviderConfig{}
	}
	return c.LLM.Providers[name]
}
