// Package main provides the CLI entry point for concierge, a Slack question
// answering bot that routes questions to a category, looks up internal
// knowledge through MCP tools and remembers each thread's conversation.
//
// # Basic Usage
//
// Start the Slack bot:
//
//	concierge serve --config concierge.yaml
//
// Ask a one-off question:
//
//	concierge ask "What is our PTO policy?"
//
// Run the probe report:
//
//	concierge probe
//
// # Environment Variables
//
//   - CONCIERGE_CONFIG: Path to configuration file (default: concierge.yaml)
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY: provider keys used
//     when the config file does not set one
//   - SLACK_BOT_TOKEN, SLACK_APP_TOKEN: usually referenced from the config
//     file as ${SLACK_BOT_TOKEN}
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/concierge/internal/mcp"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigName = "concierge.yaml"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	mcp.ClientVersion = version

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "concierge",
		Short: "Concierge - internal knowledge Q&A bot",
		Long: `Concierge answers company questions in Slack.

Each question is classified into a category, enriched with the thread's
recent conversation and answered by a model that can search internal
knowledge through MCP tools.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildAskCmd(),
		buildClassifyCmd(),
		buildCategoriesCmd(),
		buildConfigCmd(),
		buildMcpCmd(),
		buildProbeCmd(),
	)
	return rootCmd
}

// defaultConfigPath honours CONCIERGE_CONFIG.
func defaultConfigPath() string {
	if path := os.Getenv("CONCIERGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigName
}
