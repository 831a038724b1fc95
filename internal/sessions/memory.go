// Package sessions keeps short-lived, thread-scoped conversation memory.
//
// Nothing here survives a restart. Threads are created on first append,
// truncated oldest-first to a message bound, and forgotten once they have
// been idle longer than the TTL.
package sessions

import (
	"errors"
	"sync"
	"time"

	"github.com/haasonsaas/concierge/pkg/models"
)

// ErrInvalidThread is returned for an empty thread id.
var ErrInvalidThread = errors.New("thread id is required")

const (
	DefaultMaxMessages = 50
	DefaultTTL         = 24 * time.Hour
)

// Options configures a MemoryStore.
type Options struct {
	// MaxMessages bounds each thread. Default: 50.
	MaxMessages int

	// TTL is the idle time after which a thread is evicted. Default: 24h.
	TTL time.Duration
}

// Stats is a point-in-time view of the store.
type Stats struct {
	Threads  int
	Messages int
	Evicted  uint64
}

type threadMemory struct {
	mu          sync.Mutex
	id          string
	messages    []models.ConversationMessage
	lastTouched time.Time

	// removed is set once the thread has been dropped from the map; a
	// caller that raced with eviction must retry against a fresh entry.
	removed bool
}

// MemoryStore is an in-memory, thread-scoped conversation store.
//
// The map is guarded by mu and each thread by its own mutex, so requests on
// different threads never contend beyond the map lookup.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*threadMemory

	maxMessages int
	ttl         time.Duration
	nowFunc     func() time.Time

	evictMu sync.Mutex
	evicted uint64
}

// NewMemoryStore creates a store with the given options.
func NewMemoryStore(opts Options) *MemoryStore {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &MemoryStore{
		threads:     make(map[string]*threadMemory),
		maxMessages: opts.MaxMessages,
		ttl:         opts.TTL,
		nowFunc:     time.Now,
	}
}

// SetNowFunc sets a custom time function for testing.
func (s *MemoryStore) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFunc = fn
}

func (s *MemoryStore) now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFunc()
}

// Append adds msg to the thread, creating it if needed, and trims the
// thread to the most recent MaxMessages entries.
func (s *MemoryStore) Append(threadID string, msg models.ConversationMessage) error {
	if threadID == "" {
		return ErrInvalidThread
	}

	for {
		now := s.now()
		t := s.getOrCreate(threadID, now)

		t.mu.Lock()
		if t.removed {
			t.mu.Unlock()
			continue
		}
		if s.expired(t, now) {
			t.messages = nil
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		t.messages = append(t.messages, msg)
		if excess := len(t.messages) - s.maxMessages; excess > 0 {
			t.messages = append([]models.ConversationMessage(nil), t.messages[excess:]...)
		}
		t.lastTouched = now
		t.mu.Unlock()
		return nil
	}
}

// History returns a copy of the thread's messages in chronological order.
// Unknown and expired threads yield an empty slice.
func (s *MemoryStore) History(threadID string) []models.ConversationMessage {
	if threadID == "" {
		return []models.ConversationMessage{}
	}

	s.mu.RLock()
	t, ok := s.threads[threadID]
	s.mu.RUnlock()
	if !ok {
		return []models.ConversationMessage{}
	}

	now := s.now()
	t.mu.Lock()
	if t.removed {
		t.mu.Unlock()
		return []models.ConversationMessage{}
	}
	if s.expired(t, now) {
		t.mu.Unlock()
		s.evict(threadID, now)
		return []models.ConversationMessage{}
	}
	out := make([]models.ConversationMessage, len(t.messages))
	copy(out, t.messages)
	t.mu.Unlock()
	return out
}

// HasHistory reports whether the thread holds any unexpired messages.
func (s *MemoryStore) HasHistory(threadID string) bool {
	return len(s.History(threadID)) > 0
}

// EvictExpired removes every thread idle for longer than the TTL at now and
// returns how many were removed.
func (s *MemoryStore) EvictExpired(now time.Time) int {
	s.mu.RLock()
	candidates := make([]string, 0)
	for id, t := range s.threads {
		t.mu.Lock()
		if s.expired(t, now) {
			candidates = append(candidates, id)
		}
		t.mu.Unlock()
	}
	s.mu.RUnlock()

	removed := 0
	for _, id := range candidates {
		if s.evict(id, now) {
			removed++
		}
	}
	return removed
}

// Len returns the number of live threads. Threads past their TTL are not
// counted even before they are evicted.
func (s *MemoryStore) Len() int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.threads {
		t.mu.Lock()
		if !s.expired(t, now) {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// Stats returns counters for metrics. Expired threads that have not been
// evicted yet are left out.
func (s *MemoryStore) Stats() Stats {
	now := s.now()
	s.mu.RLock()
	threads := make([]*threadMemory, 0, len(s.threads))
	for _, t := range s.threads {
		threads = append(threads, t)
	}
	s.mu.RUnlock()

	var stats Stats
	for _, t := range threads {
		t.mu.Lock()
		if !t.removed && !s.expired(t, now) {
			stats.Threads++
			stats.Messages += len(t.messages)
		}
		t.mu.Unlock()
	}
	s.evictMu.Lock()
	stats.Evicted = s.evicted
	s.evictMu.Unlock()
	return stats
}

func (s *MemoryStore) getOrCreate(threadID string, now time.Time) *threadMemory {
	s.mu.RLock()
	t, ok := s.threads[threadID]
	s.mu.RUnlock()
	if ok {
		return t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[threadID]; ok {
		return t
	}
	t = &threadMemory{id: threadID, lastTouched: now}
	s.threads[threadID] = t
	return t
}

// evict removes the thread if it is still expired at now.
func (s *MemoryStore) evict(threadID string, now time.Time) bool {
	s.mu.Lock()
	t, ok := s.threads[threadID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	t.mu.Lock()
	if !s.expired(t, now) {
		t.mu.Unlock()
		s.mu.Unlock()
		return false
	}
	t.removed = true
	t.mu.Unlock()
	delete(s.threads, threadID)
	s.mu.Unlock()

	s.evictMu.Lock()
	s.evicted++
	s.evictMu.Unlock()
	return true
}

// expired must be called with t.mu held.
func (s *MemoryStore) expired(t *threadMemory, now time.Time) bool {
	return now.Sub(t.lastTouched) > s.ttl
}
