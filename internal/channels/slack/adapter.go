// Package slack serves the question pipeline over Slack Socket Mode.
//
// A slash command (default /ai) posts a placeholder message and answers in
// its thread; the placeholder timestamp becomes the conversation thread id.
// Replies inside such a thread are answered as follow-ups while the thread
// still has history.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"golang.org/x/time/rate"

	"github.com/haasonsaas/concierge/internal/pipeline"
)

// Answerer handles a question in a thread. *pipeline.Controller satisfies it.
type Answerer interface {
	HandleQuestion(ctx context.Context, question, threadID string) (*pipeline.Answer, error)
}

// HistoryChecker reports whether a thread has stored conversation.
type HistoryChecker interface {
	HasHistory(threadID string) bool
}

// MessageRecorder counts chat traffic. *observability.Metrics satisfies it.
type MessageRecorder interface {
	ChatMessage(kind, direction string)
}

// Config holds the configuration for the Slack adapter.
type Config struct {
	BotToken string // xoxb- token for API calls
	AppToken string // xapp- token for Socket Mode

	// Command is the slash command that starts a conversation. Default: /ai
	Command string

	// RateLimit and RateBurst bound outgoing posts. Defaults: 1/s, burst 5.
	RateLimit float64
	RateBurst int

	// MaxConcurrent bounds in-flight questions. Default: 16
	MaxConcurrent int

	// RequestTimeout bounds one question end to end. Default: 5m
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// Validate checks required fields and applies defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return errors.New("slack: bot_token is required")
	}
	if strings.TrimSpace(c.AppToken) == "" {
		return errors.New("slack: app_token is required")
	}
	c.applyDefaults()
	return nil
}

func (c *Config) applyDefaults() {
	if c.Command == "" {
		c.Command = "/ai"
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 1
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 5
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 16
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Adapter connects Slack to an Answerer.
type Adapter struct {
	cfg      Config
	api      APIClient
	socket   SocketClient
	answerer Answerer
	history  HistoryChecker
	recorder MessageRecorder
	limiter  *rate.Limiter
	logger   *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	botUserIDMu sync.RWMutex
	botUserID   string

	statusMu sync.RWMutex
	status   Status
}

// Status is the adapter's connection state.
type Status struct {
	Connected bool
	Error     string
	LastEvent time.Time
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithMessageRecorder counts inbound and outbound messages.
func WithMessageRecorder(r MessageRecorder) Option {
	return func(a *Adapter) { a.recorder = r }
}

// WithClients replaces the Slack clients, for tests.
func WithClients(api APIClient, socket SocketClient) Option {
	return func(a *Adapter) {
		a.api = api
		a.socket = socket
	}
}

// New creates a Slack adapter. Follow-ups are only answered for threads
// history knows about.
func New(cfg Config, answerer Answerer, history HistoryChecker, opts ...Option) (*Adapter, error) {
	if answerer == nil {
		return nil, errors.New("slack: answerer is required")
	}
	if history == nil {
		return nil, errors.New("slack: history checker is required")
	}

	a := &Adapter{answerer: answerer, history: history}
	for _, opt := range opts {
		opt(a)
	}
	if a.api == nil || a.socket == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		client := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
		a.api = client
		a.socket = socketModeClient{socketmode.New(client, socketmode.OptionDebug(false))}
	} else {
		cfg.applyDefaults()
	}

	a.cfg = cfg
	a.logger = cfg.Logger.With("adapter", "slack")
	a.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	a.sem = make(chan struct{}, cfg.MaxConcurrent)
	return a, nil
}

// Run authenticates, connects Socket Mode and serves events until ctx is
// cancelled. In-flight questions are awaited before it returns.
func (a *Adapter) Run(ctx context.Context) error {
	auth, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to authenticate with Slack: %w", err)
	}
	a.setBotUserID(auth.UserID)
	a.logger.Info("slack adapter started", "bot_user_id", auth.UserID, "command", a.cfg.Command)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- a.socket.RunContext(runCtx)
	}()

	err = a.serve(runCtx, runErr)
	cancel()
	a.wg.Wait()
	a.updateStatus(false, "")
	return err
}

// Status returns the current connection status.
func (a *Adapter) Status() Status {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.status
}

func (a *Adapter) serve(ctx context.Context, runErr <-chan error) error {
	events := a.socket.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.updateStatus(false, err.Error())
				return fmt.Errorf("socket mode: %w", err)
			}
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			a.handleEvent(ctx, event)
		}
	}
}

func (a *Adapter) handleEvent(ctx context.Context, event socketmode.Event) {
	a.statusMu.Lock()
	a.status.LastEvent = time.Now()
	a.statusMu.Unlock()

	switch event.Type {
	case socketmode.EventTypeConnecting:
		a.logger.Debug("connecting to socket mode")

	case socketmode.EventTypeConnectionError:
		a.logger.Warn("socket mode connection error", "data", event.Data)
		a.updateStatus(false, "connection error")

	case socketmode.EventTypeConnected:
		a.logger.Info("connected to socket mode")
		a.updateStatus(true, "")

	case socketmode.EventTypeSlashCommand:
		a.ack(event)
		cmd, ok := event.Data.(slack.SlashCommand)
		if !ok {
			a.logger.Warn("unexpected slash command payload", "data", fmt.Sprintf("%T", event.Data))
			return
		}
		if cmd.Command != a.cfg.Command {
			a.logger.Debug("ignoring slash command", "command", cmd.Command)
			return
		}
		a.record("command", "inbound")
		a.dispatch(ctx, func(ctx context.Context) { a.handleCommand(ctx, cmd) })

	case socketmode.EventTypeEventsAPI:
		a.ack(event)
		apiEvent, ok := event.Data.(slackevents.EventsAPIEvent)
		if !ok || apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		msg, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
		if !ok || !a.isFollowUp(msg) {
			return
		}
		a.record("followup", "inbound")
		a.dispatch(ctx, func(ctx context.Context) { a.handleFollowUp(ctx, msg) })

	case socketmode.EventTypeInteractive:
		a.ack(event)
	}
}

// isFollowUp reports whether a message should be answered as a thread
// follow-up: a human reply in a thread the memory store knows about.
func (a *Adapter) isFollowUp(msg *slackevents.MessageEvent) bool {
	if msg.ThreadTimeStamp == "" || msg.BotID != "" {
		return false
	}
	if msg.SubType != "" {
		return false
	}
	if user := a.getBotUserID(); user != "" && msg.User == user {
		return false
	}
	if strings.TrimSpace(msg.Text) == "" {
		return false
	}
	return a.history.HasHistory(msg.ThreadTimeStamp)
}

// dispatch runs fn in its own goroutine, bounded by MaxConcurrent.
func (a *Adapter) dispatch(ctx context.Context, fn func(context.Context)) {
	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	a.wg.Add(1)
	go func() {
		defer func() {
			<-a.sem
			a.wg.Done()
		}()
		reqCtx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
		defer cancel()
		fn(reqCtx)
	}()
}

func (a *Adapter) ack(event socketmode.Event) {
	if event.Request != nil {
		a.socket.Ack(*event.Request)
	}
}

func (a *Adapter) record(kind, direction string) {
	if a.recorder != nil {
		a.recorder.ChatMessage(kind, direction)
	}
}

func (a *Adapter) setBotUserID(id string) {
	a.botUserIDMu.Lock()
	a.botUserID = id
	a.botUserIDMu.Unlock()
}

func (a *Adapter) getBotUserID() string {
	a.botUserIDMu.RLock()
	defer a.botUserIDMu.RUnlock()
	return a.botUserID
}

func (a *Adapter) updateStatus(connected bool, errMsg string) {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.status.Connected = connected
	a.status.Error = errMsg
}
