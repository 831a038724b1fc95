package sessions

import (
	"testing"
	"time"

	"github.com/haasonsaas/concierge/pkg/models"
)

func TestNewSweeperValidatesSchedule(t *testing.T) {
	s := NewMemoryStore(Options{})

	if _, err := NewSweeper(nil, ""); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := NewSweeper(s, "every now and then"); err == nil {
		t.Error("expected error for invalid schedule")
	}
	for _, sched := range []string{"", "@every 5m", "*/10 * * * *", "0 */2 * * * *"} {
		if _, err := NewSweeper(s, sched); err != nil {
			t.Errorf("NewSweeper(%q) error = %v", sched, err)
		}
	}
}

func TestSweeperSweep(t *testing.T) {
	store, clock := newTestStore(Options{TTL: time.Hour})
	_ = store.Append("a", models.NewUserMessage("x", clock.Now()))
	_ = store.Append("b", models.NewUserMessage("y", clock.Now()))

	var reported []int
	sw, err := NewSweeper(store, "@every 1m", WithSweepCallback(func(n int) { reported = append(reported, n) }))
	if err != nil {
		t.Fatal(err)
	}
	sw.nowFunc = clock.Now

	if n := sw.Sweep(); n != 0 {
		t.Errorf("first Sweep() = %d, want 0", n)
	}
	clock.Advance(2 * time.Hour)
	if n := sw.Sweep(); n != 2 {
		t.Errorf("second Sweep() = %d, want 2", n)
	}
	if len(reported) != 2 || reported[1] != 2 {
		t.Errorf("callback saw %v", reported)
	}
}

func TestSweeperStartStop(t *testing.T) {
	sw, err := NewSweeper(NewMemoryStore(Options{}), "@every 1h")
	if err != nil {
		t.Fatal(err)
	}
	sw.Start()
	sw.Start()
	sw.Stop()
	sw.Stop()
}
