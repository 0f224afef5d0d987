package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinWindow(t *testing.T) {
	l := NewLimiter(3, time.Minute)
	defer l.Stop()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatalf("fourth request should be rejected")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatalf("other addresses have their own budget")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("10.0.0.1") {
		t.Fatalf("requests should be admitted again after the window slides")
	}
}
