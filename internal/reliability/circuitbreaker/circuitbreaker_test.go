package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker(2, 1, time.Minute)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	var transitions []string
	cb.SetStateChangeCallback(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	boom := errors.New("redis down")
	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected dependency error, got %v", err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open breaker, got %s", cb.GetState())
	}

	called := false
	if err := cb.Execute(func() error { called = true; return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Fatalf("open breaker must not call through")
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected trial call to succeed, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed breaker, got %s", cb.GetState())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, transitions)
		}
	}
}
