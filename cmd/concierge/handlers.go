package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/concierge/internal/config"
	"github.com/haasonsaas/concierge/internal/pipeline"
)

// runAsk answers a single question and prints the reply.
func runAsk(cmd *cobra.Command, configPath, threadID, question string, verbose bool) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, false)

	a, err := newApp(ctx, cfg, logger, appOptions{connectKnowledge: true})
	if err != nil {
		return err
	}
	defer closeApp(a)

	answer, err := a.controller.HandleQuestion(ctx, question, threadID)
	out := cmd.OutOrStdout()
	if err != nil {
		fmt.Fprintln(out, pipeline.UserFacingMessage(err))
		return err
	}
	if verbose {
		fmt.Fprintf(out, "category: %s | status: %s | rounds: %d | request: %s\n\n",
			answer.CategoryID, answer.Status, answer.Rounds, answer.RequestID)
	}
	fmt.Fprintln(out, answer.Text)
	return nil
}

// runClassify prints the category chosen for a question.
func runClassify(cmd *cobra.Command, configPath, question string, offline bool) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, newLogger(cfg, false), appOptions{offline: offline})
	if err != nil {
		return err
	}
	defer closeApp(a)

	result := a.classifier.Classify(ctx, question)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "category: %s\n", result.CategoryID)
	fmt.Fprintf(out, "source:   %s\n", result.Source)
	if result.Raw != "" {
		fmt.Fprintf(out, "raw:      %q\n", result.Raw)
	}
	if result.Degraded != nil {
		fmt.Fprintf(out, "degraded: %v\n", result.Degraded)
	}
	fmt.Fprintf(out, "elapsed:  %s\n", result.Elapsed.Round(time.Millisecond))
	return nil
}

// runCategoriesList prints the registry.
func runCategoriesList(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, newLogger(cfg, false), appOptions{offline: true})
	if err != nil {
		return err
	}
	defer closeApp(a)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDEFAULT\tALIASES\tDESCRIPTION")
	for _, cat := range a.categories.All() {
		def := ""
		if cat.ID == a.categories.DefaultID() {
			def = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cat.ID, def, strings.Join(cat.Aliases, ","), truncate(cat.Description, 60))
	}
	return w.Flush()
}

// runConfigValidate loads a config file and reports every problem.
func runConfigValidate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	out := cmd.OutOrStdout()
	if err != nil {
		var verr *config.ConfigValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(out, "%s: %d problem(s)\n", configPath, len(verr.Issues))
			for _, issue := range verr.Issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
		}
		return err
	}
	fmt.Fprintf(out, "%s: ok (provider %s, model %s, %d knowledge server(s), slack enabled: %t)\n",
		configPath, cfg.LLM.Provider, cfg.LLM.Model, len(cfg.Knowledge.Servers), cfg.Slack.Enabled)
	return nil
}

// runConfigSchema prints the JSON schema of the config file.
func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(schema))
	return nil
}

func closeApp(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Close(ctx)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
