package agent

import (
	"context"
	"sync"

	"github.com/haasonsaas/concierge/pkg/models"
)

// EventSink receives pipeline and loop events.
// Implementations must be safe to call from multiple goroutines and should
// not block the caller.
type EventSink interface {
	Emit(ctx context.Context, e models.Event)
}

// ChanSink sends events to a channel, dropping them when the channel is full.
type ChanSink struct {
	ch chan<- models.Event
}

// NewChanSink creates a sink that sends to a channel.
// The channel should be buffered to avoid dropping events.
func NewChanSink(ch chan<- models.Event) *ChanSink {
	return &ChanSink{ch: ch}
}

func (s *ChanSink) Emit(ctx context.Context, e models.Event) {
	select {
	case s.ch <- e:
	case <-ctx.Done():
	default:
		// full
	}
}

// MultiSink fans out events to multiple sinks.
type MultiSink struct {
	sinks []EventSink
}

// NewMultiSink creates a sink that dispatches to every non-nil sink.
func NewMultiSink(sinks ...EventSink) *MultiSink {
	filtered := make([]EventSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiSink{sinks: filtered}
}

func (s *MultiSink) Emit(ctx context.Context, e models.Event) {
	for _, sink := range s.sinks {
		sink.Emit(ctx, e)
	}
}

// CallbackSink wraps a function as an EventSink.
type CallbackSink struct {
	fn func(ctx context.Context, e models.Event)
}

func NewCallbackSink(fn func(ctx context.Context, e models.Event)) *CallbackSink {
	return &CallbackSink{fn: fn}
}

func (s *CallbackSink) Emit(ctx context.Context, e models.Event) {
	if s.fn != nil {
		s.fn(ctx, e)
	}
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(ctx context.Context, e models.Event) {}

// RecordingSink keeps every event in memory. Used by tests and the probe report.
type RecordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *RecordingSink) Emit(ctx context.Context, e models.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (s *RecordingSink) Events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Types returns the recorded event types in order.
func (s *RecordingSink) Types() []models.EventType {
	events := s.Events()
	types := make([]models.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}
