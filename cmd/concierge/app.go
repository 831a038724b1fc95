package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/agent/providers"
	"github.com/haasonsaas/concierge/internal/categories"
	"github.com/haasonsaas/concierge/internal/config"
	"github.com/haasonsaas/concierge/internal/mcp"
	"github.com/haasonsaas/concierge/internal/observability"
	"github.com/haasonsaas/concierge/internal/pipeline"
	"github.com/haasonsaas/concierge/internal/prompts"
	"github.com/haasonsaas/concierge/internal/routing"
	"github.com/haasonsaas/concierge/internal/sessions"
)

// providerKeyEnv names the environment variable consulted when a provider
// has no api_key in the config file.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GEMINI_API_KEY",
}

// app holds the wired pipeline and everything it depends on.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	promRegistry *prometheus.Registry
	metrics      *observability.Metrics
	tracer       *observability.Tracer

	categories *categories.Registry
	memory     *sessions.MemoryStore
	classifier routing.Classifier
	knowledge  *mcp.Manager
	tools      *mcp.Invoker
	controller *pipeline.Controller

	shutdownTracer func(context.Context) error
}

type appOptions struct {
	// offline replaces the model classifier with alias matching and skips
	// building providers.
	offline bool

	// connectKnowledge starts the MCP servers.
	connectKnowledge bool

	// extraSink receives pipeline events alongside the observability sink.
	extraSink agent.EventSink
}

// loadConfig loads path, falling back to the defaults when the default
// config file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && path == defaultConfigName {
		slog.Warn("config file not found, using defaults", "path", path)
		return config.Default(), nil
	}
	return nil, err
}

func newLogger(cfg *config.Config, debug bool) *slog.Logger {
	level := cfg.Observability.Logging.Level
	if debug {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Observability.Logging.Format,
	}).Slog()
}

// newApp wires the pipeline from configuration.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.promRegistry = prometheus.NewRegistry()
	a.promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewMetrics(a.promRegistry)

	tc := cfg.Observability.Tracing
	a.tracer, a.shutdownTracer = observability.NewTracer(observability.TraceConfig{
		ServiceName:    tc.ServiceName,
		ServiceVersion: firstNonEmpty(tc.ServiceVersion, version),
		Environment:    tc.Environment,
		Endpoint:       tc.Endpoint,
		SamplingRate:   tc.SamplingRate,
		Attributes:     tc.Attributes,
		EnableInsecure: tc.Insecure,
	})

	registry, err := categories.Load(cfg.Categories, cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	a.categories = registry

	a.memory = sessions.NewMemoryStore(sessions.Options{
		MaxMessages: cfg.Pipeline.MaxMessagesPerThread,
		TTL:         cfg.Pipeline.MemoryTTL(),
	})

	a.knowledge = mcp.NewManager(cfg.Knowledge.Servers, logger)
	a.tools = mcp.NewInvoker(a.knowledge, cfg.Knowledge.EnabledTools, logger)
	if opts.connectKnowledge && len(cfg.Knowledge.Servers) > 0 {
		// Unreachable servers are logged and skipped; their tools are simply absent.
		if err := a.knowledge.Start(ctx); err != nil {
			logger.Warn("some knowledge servers failed to connect", "error", err)
		}
	}

	var provider agent.LLMProvider
	if opts.offline {
		a.classifier = routing.NewKeywordClassifier(registry)
	} else {
		provider, err = a.provider(cfg.LLM.Provider, cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		classifierProvider := provider
		if cfg.LLM.ClassifierProvider != cfg.LLM.Provider {
			classifierProvider, err = a.provider(cfg.LLM.ClassifierProvider, cfg.Pipeline.ClassifierModel)
			if err != nil {
				return nil, err
			}
		}
		a.classifier = routing.NewLLMClassifier(classifierProvider, registry, routing.LLMClassifierConfig{
			Model:       cfg.Pipeline.ClassifierModel,
			Temperature: cfg.Pipeline.ClassificationTemperature,
			Timeout:     cfg.Pipeline.ClassificationTimeout,
			Logger:      logger,
		})
	}

	if provider == nil {
		return a, nil
	}

	system, err := a.systemPrompt()
	if err != nil {
		return nil, err
	}

	sink := agent.NewMultiSink(observability.NewSink(logger, a.metrics, a.tracer), opts.extraSink)
	orchestrator := agent.NewOrchestrator(provider, a.tools, &agent.OrchestratorConfig{
		MaxRounds:       cfg.Pipeline.MaxRounds,
		GenerateTimeout: cfg.Pipeline.GenerateTimeout,
		ToolTimeout:     cfg.Pipeline.ToolTimeout,
		Model:           cfg.LLM.Model,
		System:          system,
		MaxTokens:       cfg.LLM.MaxTokens,
		Sink:            sink,
		Logger:          logger,
	})

	a.controller, err = pipeline.New(pipeline.Config{
		Registry:     registry,
		Classifier:   a.classifier,
		Memory:       a.memory,
		Assembler:    prompts.Assembler{MaxHistory: cfg.Pipeline.MaxHistoryInPrompt},
		Orchestrator: orchestrator,
		Sink:         sink,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// provider builds a named provider with its configured settings.
func (a *app) provider(name, model string) (agent.LLMProvider, error) {
	pc := a.cfg.ProviderConfig(name)
	apiKey := pc.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(providerKeyEnv[name])
	}
	p, err := providers.New(name, providers.Config{
		APIKey:       apiKey,
		BaseURL:      pc.BaseURL,
		DefaultModel: firstNonEmpty(pc.DefaultModel, model),
		MaxRetries:   pc.MaxRetries,
		RetryDelay:   pc.RetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	return p, nil
}

// systemPrompt returns the agent instruction: explicit text, then a file,
// then the default category's prompt.
func (a *app) systemPrompt() (string, error) {
	if s := strings.TrimSpace(a.cfg.LLM.SystemPrompt); s != "" {
		return s, nil
	}
	if path := a.cfg.LLM.SystemPromptFile; path != "" {
		data, err := os.ReadFile(a.cfg.ResolvePath(path))
		if err != nil {
			return "", fmt.Errorf("read system prompt: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return a.categories.Default().Prompt, nil
}

// Close disconnects knowledge servers and flushes traces.
func (a *app) Close(ctx context.Context) {
	if a.knowledge != nil {
		if err := a.knowledge.Stop(); err != nil {
			a.logger.Warn("failed to stop knowledge servers", "error", err)
		}
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			a.logger.Warn("failed to flush traces", "error", err)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
