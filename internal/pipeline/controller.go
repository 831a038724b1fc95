// Package pipeline wires classification, context assembly, thread memory and
// the tool-use loop into a single question-answering call.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/concierge/internal/agent"
	"github.com/haasonsaas/concierge/internal/categories"
	"github.com/haasonsaas/concierge/internal/routing"
	"github.com/haasonsaas/concierge/internal/sessions"
	"github.com/haasonsaas/concierge/pkg/models"
)

// Memory is the thread store the controller reads history from and appends to.
type Memory interface {
	Append(threadID string, msg models.ConversationMessage) error
	History(threadID string) []models.ConversationMessage
}

// Assembler renders the prompt for one question.
type Assembler interface {
	Assemble(cat categories.Category, question string, history []models.ConversationMessage) string
}

// Runner executes the tool-use loop. *agent.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, prompt string) (*agent.RunResult, error)
}

// Config holds the controller's collaborators.
type Config struct {
	Registry     *categories.Registry
	Classifier   routing.Classifier
	Memory       Memory
	Assembler    Assembler
	Orchestrator Runner

	// Sink receives request lifecycle events. Default: NopSink.
	Sink   agent.EventSink
	Logger *slog.Logger

	// NowFunc and NewID are overridable for tests.
	NowFunc func() time.Time
	NewID   func() string
}

// Answer is the result of a handled question.
type Answer struct {
	Text       string
	CategoryID string
	Status     agent.RunStatus
	Rounds     int
	RequestID  string
}

// Controller answers questions. It holds no per-request state and is safe
// for concurrent use.
type Controller struct {
	registry   *categories.Registry
	classifier routing.Classifier
	memory     Memory
	assembler  Assembler
	runner     Runner
	sink       agent.EventSink
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// New validates cfg and returns a Controller.
func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("pipeline: registry is required")
	case cfg.Classifier == nil:
		return nil, errors.New("pipeline: classifier is required")
	case cfg.Memory == nil:
		return nil, errors.New("pipeline: memory is required")
	case cfg.Assembler == nil:
		return nil, errors.New("pipeline: assembler is required")
	case cfg.Orchestrator == nil:
		return nil, errors.New("pipeline: orchestrator is required")
	}

	c := &Controller{
		registry:   cfg.Registry,
		classifier: cfg.Classifier,
		memory:     cfg.Memory,
		assembler:  cfg.Assembler,
		runner:     cfg.Orchestrator,
		sink:       cfg.Sink,
		logger:     cfg.Logger,
		now:        cfg.NowFunc,
		newID:      cfg.NewID,
	}
	if c.sink == nil {
		c.sink = agent.NopSink{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "pipeline")
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c, nil
}

// HandleQuestion answers question in the context of threadID.
//
// Classification never fails; an unknown category falls back to the registry
// default. On any error the thread's memory is left unchanged and the
// returned error is a *Error naming the failed stage.
func (c *Controller) HandleQuestion(ctx context.Context, question, threadID string) (*Answer, error) {
	start := c.now()
	requestID := c.newID()
	ctx = agent.WithRequestInfo(ctx, agent.RequestInfo{RequestID: requestID, ThreadID: threadID})

	c.emit(ctx, models.Event{Type: models.EventRequestStarted})

	if strings.TrimSpace(question) == "" {
		return nil, c.fail(ctx, start, "", StageAssemble, ErrEmptyQuestion)
	}
	if threadID == "" {
		return nil, c.fail(ctx, start, "", StageMemory, sessions.ErrInvalidThread)
	}

	result := c.classifier.Classify(ctx, question)
	classified := &models.ClassificationPayload{
		CategoryID: result.CategoryID,
		Source:     string(result.Source),
		Elapsed:    result.Elapsed,
	}
	if result.Degraded != nil {
		classified.Degraded = result.Degraded.Error()
	}
	c.emit(ctx, models.Event{Type: models.EventClassified, Classification: classified})

	category, err := c.registry.Lookup(result.CategoryID)
	if err != nil {
		c.logger.Warn("classified category missing from registry, using default",
			"request_id", requestID,
			"category", result.CategoryID,
			"error", err)
		category = c.registry.Default()
	}

	history := c.memory.History(threadID)
	prompt := c.assembler.Assemble(category, question, history)

	run, err := c.runner.Run(ctx, prompt)
	if err != nil {
		return nil, c.fail(ctx, start, category.ID, StageOrchestrate, err)
	}

	if err := c.memory.Append(threadID, models.NewUserMessage(question, c.now())); err != nil {
		return nil, c.fail(ctx, start, category.ID, StageMemory, err)
	}
	if err := c.memory.Append(threadID, models.NewAssistantMessage(run.Text, c.now())); err != nil {
		return nil, c.fail(ctx, start, category.ID, StageMemory, err)
	}

	c.emit(ctx, models.Event{
		Type: models.EventRequestFinished,
		Run: &models.RunPayload{
			CategoryID: category.ID,
			Status:     string(run.Status),
			Rounds:     run.Rounds,
			ToolCalls:  len(run.ToolCalls),
			Elapsed:    c.now().Sub(start),
		},
	})

	return &Answer{
		Text:       run.Text,
		CategoryID: category.ID,
		Status:     run.Status,
		Rounds:     run.Rounds,
		RequestID:  requestID,
	}, nil
}

func (c *Controller) fail(ctx context.Context, start time.Time, categoryID string, stage Stage, cause error) error {
	err := &Error{Stage: stage, Cause: cause}
	c.emit(ctx, models.Event{
		Type: models.EventRequestFailed,
		Run: &models.RunPayload{
			CategoryID: categoryID,
			Elapsed:    c.now().Sub(start),
		},
		Error: &models.ErrorPayload{
			Message: cause.Error(),
			Stage:   string(stage),
			Err:     cause,
		},
	})
	return err
}

func (c *Controller) emit(ctx context.Context, e models.Event) {
	if e.Time.IsZero() {
		e.Time = c.now()
	}
	if info, ok := agent.RequestInfoFromContext(ctx); ok {
		e.RequestID = info.RequestID
		e.ThreadID = info.ThreadID
	}
	c.sink.Emit(ctx, e)
}
