package observability

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/pkg/models"
)

// Sink turns pipeline events into logs, metrics and spans.
// Any of the three outputs may be nil.
type Sink struct {
	logger  *slog.Logger
	metrics *Metrics
	tracer  *Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

var _ agent.EventSink = (*Sink)(nil)

// NewSink creates a sink. A nil logger disables event logging.
func NewSink(logger *slog.Logger, metrics *Metrics, tracer *Tracer) *Sink {
	return &Sink{
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		spans:   make(map[string]trace.Span),
	}
}

// Emit implements agent.EventSink. Event logs carry the request span so
// they can be joined with traces by trace_id.
func (s *Sink) Emit(ctx context.Context, e models.Event) {
	ctx = s.trace(ctx, e)
	s.log(ctx, e)
	s.record(e)
}

func (s *Sink) log(ctx context.Context, e models.Event) {
	if s.logger == nil {
		return
	}
	attrs := []any{"event", string(e.Type)}
	if e.RequestID != "" {
		attrs = append(attrs, "request_id", e.RequestID)
	}
	if e.Round > 0 {
		attrs = append(attrs, "round", e.Round)
	}
	level := slog.LevelDebug

	switch {
	case e.Classification != nil:
		c := e.Classification
		attrs = append(attrs, "category", c.CategoryID, "source", c.Source, "elapsed", c.Elapsed)
		if c.Degraded != "" {
			attrs = append(attrs, "degraded", c.Degraded)
		}
		level = slog.LevelInfo
	case e.Model != nil:
		attrs = append(attrs, "provider", e.Model.Provider, "model", e.Model.Model,
			"tool_calls", e.Model.ToolCalls, "elapsed", e.Model.Elapsed)
	case e.Tool != nil:
		attrs = append(attrs, "tool", e.Tool.Name)
		if e.Type == models.EventToolFinished {
			attrs = append(attrs, "success", e.Tool.Success, "elapsed", e.Tool.Elapsed)
			if !e.Tool.Success {
				attrs = append(attrs, "error_type", e.Tool.ErrorType)
				level = slog.LevelWarn
			}
		}
	case e.Error != nil:
		attrs = append(attrs, "stage", e.Error.Stage, "error", e.Error.Message)
		level = slog.LevelError
	case e.Run != nil:
		attrs = append(attrs, "category", e.Run.CategoryID, "status", e.Run.Status,
			"rounds", e.Run.Rounds, "tool_calls", e.Run.ToolCalls, "elapsed", e.Run.Elapsed)
		level = slog.LevelInfo
	}
	if e.Type == models.EventRoundLimitReached {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "pipeline event", attrs...)
}

func (s *Sink) record(e models.Event) {
	m := s.metrics
	if m == nil {
		return
	}
	switch e.Type {
	case models.EventClassified:
		if c := e.Classification; c != nil {
			m.RecordClassification(c.CategoryID, c.Source, c.Degraded != "", c.Elapsed.Seconds())
		}
	case models.EventModelCompleted:
		if p := e.Model; p != nil {
			m.RecordLLMRequest(p.Provider, p.Model, p.Elapsed.Seconds(), p.InputTokens, p.OutputTokens)
		}
	case models.EventToolFinished:
		if p := e.Tool; p != nil {
			status := "success"
			if !p.Success {
				status = "error"
			}
			m.RecordToolExecution(p.Name, status, p.Elapsed.Seconds())
		}
	case models.EventRequestFinished:
		if r := e.Run; r != nil {
			m.RecordRequest(r.CategoryID, r.Status, r.Elapsed.Seconds())
			m.RecordRounds(r.Rounds)
		}
	case models.EventRequestFailed:
		category := ""
		var elapsed float64
		if r := e.Run; r != nil {
			category = r.CategoryID
			elapsed = r.Elapsed.Seconds()
		}
		m.RecordRequest(category, "error", elapsed)
		stage := ""
		if e.Error != nil {
			stage = e.Error.Stage
		}
		m.RecordError(stage)
	}
}

// trace updates the request span and returns ctx carrying it.
func (s *Sink) trace(ctx context.Context, e models.Event) context.Context {
	if s.tracer == nil || e.RequestID == "" {
		return ctx
	}

	if e.Type == models.EventRequestStarted {
		spanCtx, span := s.tracer.TraceRequest(ctx, e.RequestID, e.ThreadID)
		s.mu.Lock()
		s.spans[e.RequestID] = span
		s.mu.Unlock()
		return spanCtx
	}

	s.mu.Lock()
	span, ok := s.spans[e.RequestID]
	if ok && (e.Type == models.EventRequestFinished || e.Type == models.EventRequestFailed) {
		delete(s.spans, e.RequestID)
	}
	s.mu.Unlock()
	if !ok {
		return ctx
	}
	ctx = trace.ContextWithSpan(ctx, span)

	switch e.Type {
	case models.EventClassified:
		if c := e.Classification; c != nil {
			s.tracer.SetAttributes(span, "category", c.CategoryID, "classification_source", c.Source)
		}
	case models.EventModelCompleted:
		if p := e.Model; p != nil {
			s.tracer.AddEvent(span, "generation", "round", e.Round, "model", p.Model, "tool_calls", p.ToolCalls)
		}
	case models.EventToolFinished:
		if p := e.Tool; p != nil {
			s.tracer.AddEvent(span, "tool", "round", e.Round, "tool_name", p.Name, "success", p.Success)
		}
	case models.EventRoundLimitReached:
		s.tracer.AddEvent(span, "round_limit_reached", "round", e.Round)
	case models.EventRequestFinished:
		if r := e.Run; r != nil {
			s.tracer.SetAttributes(span, "status", r.Status, "rounds", r.Rounds)
		}
		span.End()
	case models.EventRequestFailed:
		err := errors.New("request failed")
		if e.Error != nil {
			if e.Error.Err != nil {
				err = e.Error.Err
			} else if e.Error.Message != "" {
				err = errors.New(e.Error.Message)
			}
		}
		s.tracer.RecordError(span, err)
		span.End()
	}
	return ctx
}

// OpenSpans reports spans started but not yet ended.
func (s *Sink) OpenSpans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spans)
}
