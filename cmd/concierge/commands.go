package main

import (
	"time"

	"github.com/spf13/cobra"
)

func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
}

// buildServeCmd creates the "serve" command that runs the Slack bot.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack bot",
		Long: `Start the Slack Socket Mode bot together with the metrics endpoint,
the thread memory sweeper and the configured MCP knowledge servers.

The server shuts down gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// buildAskCmd creates the "ask" command for one-shot questions.
func buildAskCmd() *cobra.Command {
	var (
		configPath string
		threadID   string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question through the full pipeline",
		Example: `  concierge ask "What is our PTO policy?"
  concierge ask --thread t1 "And for contractors?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, configPath, threadID, joinArgs(args), verbose)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&threadID, "thread", "cli", "Conversation thread id")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print category, status and rounds")
	return cmd
}

// buildClassifyCmd creates the "classify" command.
func buildClassifyCmd() *cobra.Command {
	var (
		configPath string
		offline    bool
	)
	cmd := &cobra.Command{
		Use:   "classify <question>",
		Short: "Print the category a question is routed to",
		Long: `Classify a question with the configured router model.

With --offline the question is matched against category aliases only and
no model is called.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd, configPath, joinArgs(args), offline)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&offline, "offline", false, "Match aliases only, without a model call")
	return cmd
}

// buildCategoriesCmd creates the "categories" command group.
func buildCategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Inspect the category registry",
	}
	cmd.AddCommand(buildCategoriesListCmd())
	return cmd
}

func buildCategoriesListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories with their aliases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCategoriesList(cmd, configPath)
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate the configuration or print its schema",
	}
	cmd.AddCommand(buildConfigValidateCmd(), buildConfigSchemaCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, configPath)
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}
}

// buildMcpCmd creates the "mcp" command group.
func buildMcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect MCP knowledge servers",
	}
	cmd.AddCommand(buildMcpServersCmd(), buildMcpToolsCmd())
	return cmd
}

func buildMcpServersCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Connect to configured servers and show their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMcpServers(cmd, configPath)
		},
	}
	addConfigFlag(cmd, &configPath)
	return cmd
}

func buildMcpToolsCmd() *cobra.Command {
	var (
		configPath string
		all        bool
	)
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the agent can call",
		Long: `Connect to the configured MCP servers and list the tools exposed to the
agent after the enabled_tools allow list is applied.

Use --all to list every discovered tool per server instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMcpTools(cmd, configPath, all)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&all, "all", false, "List every discovered tool, ignoring the allow list")
	return cmd
}

// buildProbeCmd creates the "probe" command.
func buildProbeCmd() *cobra.Command {
	var (
		configPath string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe [queries...]",
		Short: "Run sample questions and print a latency report",
		Long: `Run a list of questions through the pipeline, each in its own thread
and with its own timeout, and print category, status, latency and an
answer preview for each.

Without arguments a built-in set of sample questions is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, configPath, args, timeout)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().DurationVar(&timeout, "timeout", defaultProbeTimeout, "Timeout per question")
	return cmd
}
