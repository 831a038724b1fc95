// Package observability turns pipeline events into structured logs,
// Prometheus metrics and OpenTelemetry spans.
//
// The question pipeline never imports this package. It emits models.Event
// values to an agent.EventSink; Sink is the implementation that fans them
// out:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info"})
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{})
//	defer shutdown(context.Background())
//
//	sink := observability.NewSink(logger.Slog(), metrics, tracer)
//
// Logging is built on log/slog. Records pass through a handler that redacts
// API keys, Slack tokens and similar secrets and adds request_id, thread_id,
// user_id and channel from the context.
//
// Metrics are registered with the registerer given to NewMetrics and are
// named concierge_*.
//
// Tracing exports over OTLP gRPC when an endpoint is configured and is a
// no-op otherwise. One span covers each request, with generation and
// knowledge-lookup events attached.
package observability
