package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewBaseProviderDefaults(t *testing.T) {
	b := NewBaseProvider("openai", 0, 0)
	if b.maxRetries != 3 {
		t.Errorf("maxRetries = %d, want 3", b.maxRetries)
	}
	if b.retryDelay != time.Second {
		t.Errorf("retryDelay = %v, want 1s", b.retryDelay)
	}
	if b.Name() != "openai" {
		t.Errorf("Name() = %q", b.Name())
	}
}

func TestBaseProviderRetry(t *testing.T) {
	transient := errors.New("503 service unavailable")
	fatal := errors.New("invalid api key")

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   error
	}{
		{"first try", []error{nil}, 1, nil},
		{"recovers", []error{transient, transient, nil}, 3, nil},
		{"exhausts", []error{transient, transient, transient, transient}, 3, transient},
		{"permanent", []error{fatal, nil}, 1, fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBaseProvider("test", 3, time.Millisecond)
			calls := 0
			err := b.Retry(context.Background(), IsRetryable, func() error {
				err := tt.errs[calls]
				calls++
				return err
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if !errors.Is(err, tt.wantErr) && !(err == nil && tt.wantErr == nil) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBaseProviderRetryStopsOnCancel(t *testing.T) {
	b := NewBaseProvider("test", 5, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := b.Retry(ctx, IsRetryable, func() error {
		calls++
		cancel()
		return errors.New("503 service unavailable")
	})
	if err == nil {
		t.Fatal("expected error after cancel")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBaseProviderRetryNilOp(t *testing.T) {
	b := NewBaseProvider("test", 1, time.Millisecond)
	if err := b.Retry(context.Background(), nil, nil); err != nil {
		t.Fatalf("Retry(nil) = %v", err)
	}
}
