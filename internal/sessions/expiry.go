package sessions

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs eviction every five minutes.
const DefaultSweepSchedule = "@every 5m"

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Evicter is the part of the store a Sweeper drives.
type Evicter interface {
	EvictExpired(now time.Time) int
}

// Sweeper evicts expired threads on a cron schedule.
type Sweeper struct {
	store    Evicter
	cron     *cron.Cron
	logger   *slog.Logger
	nowFunc  func() time.Time
	onSweep  func(removed int)
	schedule string

	mu      sync.Mutex
	started bool
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepLogger sets the logger.
func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSweepCallback is invoked after every sweep with the eviction count.
func WithSweepCallback(fn func(removed int)) SweeperOption {
	return func(s *Sweeper) { s.onSweep = fn }
}

// NewSweeper validates schedule and prepares a sweeper. Call Start to run it.
func NewSweeper(store Evicter, schedule string, opts ...SweeperOption) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("sweeper: store is required")
	}
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if _, err := cronParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("sweeper: invalid schedule %q: %w", schedule, err)
	}

	s := &Sweeper{
		store:    store,
		logger:   slog.Default(),
		nowFunc:  time.Now,
		schedule: schedule,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "memory-sweeper")
	s.cron = cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep() }); err != nil {
		return nil, fmt.Errorf("sweeper: %w", err)
	}
	return s, nil
}

// Sweep runs one eviction pass and returns the number of threads removed.
func (s *Sweeper) Sweep() int {
	removed := s.store.EvictExpired(s.nowFunc())
	if removed > 0 {
		s.logger.Info("evicted expired threads", "count", removed)
	}
	if s.onSweep != nil {
		s.onSweep(removed)
	}
	return removed
}

// Start begins running sweeps in the background.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Debug("sweeper started", "schedule", s.schedule)
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}
