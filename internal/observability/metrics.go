package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the question pipeline.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	metrics.RecordRequest("general", "final_answer", 2.4)
type Metrics struct {
	// RequestCounter counts answered or failed questions.
	// Labels: category, status (final_answer|round_limit_exceeded|error)
	RequestCounter *prometheus.CounterVec

	// RequestDuration measures end-to-end question latency in seconds.
	// Labels: category
	RequestDuration *prometheus.HistogramVec

	// ClassificationCounter counts classifier outcomes.
	// Labels: category, source (id|alias|default), degraded (true|false)
	ClassificationCounter *prometheus.CounterVec

	// ClassificationDuration measures classifier latency in seconds.
	ClassificationDuration prometheus.Histogram

	// RoundsPerRequest observes how many generation rounds a question used.
	RoundsPerRequest prometheus.Histogram

	// LLMRequestCounter counts generations.
	// Labels: provider, model
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures generation latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (input|output)
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts knowledge lookups.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures knowledge lookup time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks failures by pipeline stage.
	// Labels: stage
	ErrorCounter *prometheus.CounterVec

	// MemoryThreads is the number of live conversation threads.
	MemoryThreads prometheus.Gauge

	// MemoryEvictions counts threads dropped for inactivity.
	MemoryEvictions prometheus.Counter

	// ChatMessages counts chat front-end traffic.
	// Labels: kind (command|thread|reply|error), direction (inbound|outbound)
	ChatMessages *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_requests_total",
				Help: "Total number of questions handled by category and status",
			},
			[]string{"category", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concierge_request_duration_seconds",
				Help:    "End-to-end question latency in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"category"},
		),

		ClassificationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_classifications_total",
				Help: "Total number of classifications by category, match source and degradation",
			},
			[]string{"category", "source", "degraded"},
		),

		ClassificationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "concierge_classification_duration_seconds",
				Help:    "Classifier latency in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
		),

		RoundsPerRequest: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "concierge_rounds_per_request",
				Help:    "Generation rounds used per question",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_llm_requests_total",
				Help: "Total number of completed generations by provider and model",
			},
			[]string{"provider", "model"},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concierge_llm_request_duration_seconds",
				Help:    "Duration of generations in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_tool_executions_total",
				Help: "Total number of knowledge lookups by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concierge_tool_execution_duration_seconds",
				Help:    "Duration of knowledge lookups in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_errors_total",
				Help: "Total number of failed questions by pipeline stage",
			},
			[]string{"stage"},
		),

		MemoryThreads: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "concierge_memory_threads",
				Help: "Number of conversation threads held in memory",
			},
		),

		MemoryEvictions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "concierge_memory_evictions_total",
				Help: "Total number of threads evicted for inactivity",
			},
		),

		ChatMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_chat_messages_total",
				Help: "Chat front-end messages by kind and direction",
			},
			[]string{"kind", "direction"},
		),
	}
}

// RecordRequest records a finished question.
func (m *Metrics) RecordRequest(category, status string, durationSeconds float64) {
	m.RequestCounter.WithLabelValues(category, status).Inc()
	if category != "" {
		m.RequestDuration.WithLabelValues(category).Observe(durationSeconds)
	}
}

// RecordClassification records a classifier outcome.
func (m *Metrics) RecordClassification(category, source string, degraded bool, durationSeconds float64) {
	d := "false"
	if degraded {
		d = "true"
	}
	m.ClassificationCounter.WithLabelValues(category, source, d).Inc()
	m.ClassificationDuration.Observe(durationSeconds)
}

// RecordRounds observes the number of rounds a question used.
func (m *Metrics) RecordRounds(rounds int) {
	m.RoundsPerRequest.Observe(float64(rounds))
}

// RecordLLMRequest records one completed generation.
func (m *Metrics) RecordLLMRequest(provider, model string, durationSeconds float64, inputTokens, outputTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordToolExecution records one knowledge lookup.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError records a failed question.
func (m *Metrics) RecordError(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	m.ErrorCounter.WithLabelValues(stage).Inc()
}

// SetMemoryThreads sets the live thread gauge.
func (m *Metrics) SetMemoryThreads(n int) {
	m.MemoryThreads.Set(float64(n))
}

// AddMemoryEvictions adds to the eviction counter.
func (m *Metrics) AddMemoryEvictions(n int) {
	if n > 0 {
		m.MemoryEvictions.Add(float64(n))
	}
}

// ChatMessage records chat front-end traffic.
func (m *Metrics) ChatMessage(kind, direction string) {
	m.ChatMessages.WithLabelValues(kind, direction).Inc()
}
