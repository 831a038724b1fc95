package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/pkg/models"
)

const defaultProbeTimeout = 15 * time.Second

// defaultProbeQueries exercise each built-in category.
var defaultProbeQueries = []string{
	"ERTC deadline",
	"Employee onboarding process",
	"Gusto competitive analysis",
	"How to file IRS Form 941",
}

// probeResult is one row of the probe report.
type probeResult struct {
	Query      string
	CategoryID string
	Status     string
	Rounds     int
	ToolCalls  int
	Latency    time.Duration
	Preview    string
	Err        error
}

// answerer is the slice of the pipeline the probe drives.
type answerer interface {
	HandleQuestion(ctx context.Context, question, threadID string) (*answerView, error)
}

// answerView decouples the probe from pipeline.Answer for tests.
type answerView struct {
	Text       string
	CategoryID string
	Status     string
	Rounds     int
	RequestID  string
}

type controllerAnswerer struct {
	a *app
}

func (c controllerAnswerer) HandleQuestion(ctx context.Context, question, threadID string) (*answerView, error) {
	ans, err := c.a.controller.HandleQuestion(ctx, question, threadID)
	if err != nil {
		return nil, err
	}
	return &answerView{
		Text:       ans.Text,
		CategoryID: ans.CategoryID,
		Status:     string(ans.Status),
		Rounds:     ans.Rounds,
		RequestID:  ans.RequestID,
	}, nil
}

// runProbe runs sample questions and prints a report.
func runProbe(cmd *cobra.Command, configPath string, queries []string, timeout time.Duration) error {
	if len(queries) == 0 {
		queries = defaultProbeQueries
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	events := &agent.RecordingSink{}
	a, err := newApp(cmd.Context(), cfg, newLogger(cfg, false), appOptions{connectKnowledge: true, extraSink: events})
	if err != nil {
		return err
	}
	defer closeApp(a)

	results := probe(cmd.Context(), controllerAnswerer{a: a}, events, queries, timeout)
	return writeProbeReport(cmd.OutOrStdout(), results)
}

// probe asks each query in a fresh thread under its own timeout.
func probe(ctx context.Context, ans answerer, events *agent.RecordingSink, queries []string, timeout time.Duration) []probeResult {
	results := make([]probeResult, 0, len(queries))
	for i, query := range queries {
		qctx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		answer, err := ans.HandleQuestion(qctx, query, fmt.Sprintf("probe-%d-%d", start.UnixNano(), i))
		cancel()

		r := probeResult{Query: query, Latency: time.Since(start), Err: err}
		if err != nil {
			r.Status = "error"
		} else {
			r.CategoryID = answer.CategoryID
			r.Status = answer.Status
			r.Rounds = answer.Rounds
			r.Preview = truncate(answer.Text, 60)
			if events != nil {
				r.ToolCalls = countToolCalls(events.Events(), answer.RequestID)
			}
		}
		results = append(results, r)
	}
	return results
}

func countToolCalls(events []models.Event, requestID string) int {
	n := 0
	for _, e := range events {
		if e.RequestID == requestID && e.Type == models.EventToolFinished {
			n++
		}
	}
	return n
}

func writeProbeReport(out io.Writer, results []probeResult) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tQUERY\tCATEGORY\tSTATUS\tROUNDS\tTOOLS\tLATENCY\tANSWER")

	var ok int
	var total time.Duration
	for i, r := range results {
		preview := r.Preview
		if r.Err != nil {
			preview = truncate(r.Err.Error(), 60)
		} else {
			ok++
		}
		total += r.Latency
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			i+1, truncate(r.Query, 40), r.CategoryID, r.Status, r.Rounds, r.ToolCalls,
			r.Latency.Round(time.Millisecond), preview)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(results) > 0 {
		avg := total / time.Duration(len(results))
		fmt.Fprintf(out, "\n%d/%d succeeded, average latency %s\n", ok, len(results), avg.Round(time.Millisecond))
	}
	return nil
}
