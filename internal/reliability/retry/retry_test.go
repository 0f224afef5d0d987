package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("connection reset")

func fastConfig() *Config {
	return &Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 2}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(), nil, "write", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransient
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 || calls != 3 {
		t.Fatalf("expected 42 after 3 calls, got %d after %d", got, calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("invalid state")
	cfg := fastConfig()
	cfg.ShouldRetry = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	_, err := Do(context.Background(), cfg, nil, "write", func(ctx context.Context) (struct{}, error) {
		calls++
		return struct{}{}, permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestDoWrapsLastError(t *testing.T) {
	_, err := Do(context.Background(), fastConfig(), nil, "write", func(ctx context.Context) (int, error) {
		return 0, errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected wrapped transient error, got %v", err)
	}
}

func TestCalculateBackoffCapped(t *testing.T) {
	cfg := &Config{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, BackoffMultiplier: 2}
	if got := calculateBackoff(1, cfg); got != 2*time.Second {
		t.Fatalf("expected 2s, got %v", got)
	}
	if got := calculateBackoff(5, cfg); got != 3*time.Second {
		t.Fatalf("expected cap of 3s, got %v", got)
	}
}
