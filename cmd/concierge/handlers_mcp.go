package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// runMcpServers connects to every configured server and prints its status.
func runMcpServers(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, newLogger(cfg, false), appOptions{offline: true, connectKnowledge: true})
	if err != nil {
		return err
	}
	defer closeApp(a)

	out := cmd.OutOrStdout()
	statuses := a.knowledge.Status()
	if len(statuses) == 0 {
		fmt.Fprintln(out, "No knowledge servers configured.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tSERVER\tTOOLS")
	for _, status := range statuses {
		state := "disconnected"
		if status.Connected {
			state = "connected"
		}
		server := status.Server.Name
		if status.Server.Version != "" {
			server += " " + status.Server.Version
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", status.ID, status.Name, state, server, status.Tools)
	}
	return w.Flush()
}

// runMcpTools lists the tools the agent sees, or every discovered tool with all.
func runMcpTools(cmd *cobra.Command, configPath string, all bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, newLogger(cfg, false), appOptions{offline: true, connectKnowledge: true})
	if err != nil {
		return err
	}
	defer closeApp(a)

	out := cmd.OutOrStdout()
	if all {
		tools := a.knowledge.AllTools()
		if len(tools) == 0 {
			fmt.Fprintln(out, "No tools available.")
			return nil
		}
		ids := make([]string, 0, len(tools))
		for id := range tools {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(out, "Tools for %s:\n", id)
			for _, tool := range tools[id] {
				fmt.Fprintf(out, "  - %s: %s\n", tool.Name, truncate(tool.Description, 80))
			}
		}
		return nil
	}

	specs := a.tools.Tools()
	if len(specs) == 0 {
		fmt.Fprintln(out, "No tools enabled. Check knowledge.enabled_tools and server connectivity.")
		return nil
	}
	fmt.Fprintln(out, "Enabled tools:")
	for _, spec := range specs {
		fmt.Fprintf(out, "  - %s: %s\n", spec.Name, truncate(spec.Description, 80))
	}
	return nil
}
