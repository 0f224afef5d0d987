package inproc

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

func TestQueueRoundTrip(t *testing.T) {
	q := NewJobQueue(1)
	ctx := context.Background()

	if err := q.Enqueue(ctx, domain.PayslipJob{PayslipID: "p1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, domain.PayslipJob{PayslipID: "p2"}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	job, err := q.Dequeue(ctx, time.Second)
	if err != nil || job == nil || job.PayslipID != "p1" {
		t.Fatalf("expected p1, got %+v err=%v", job, err)
	}

	job, err = q.Dequeue(ctx, 10*time.Millisecond)
	if err != nil || job != nil {
		t.Fatalf("expected empty dequeue to return nil, got %+v err=%v", job, err)
	}
}

func TestBroadcasterDeliversUntilReleased(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, release, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_ = b.Publish(ctx, domain.PayslipStatusEvent{PayslipID: "p1", Status: domain.PayslipAvailable})
	select {
	case ev := <-events:
		if ev.PayslipID != "p1" || ev.Status != domain.PayslipAvailable {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}

	release()
	release()
	if _, ok := <-events; ok {
		t.Fatalf("expected stream to be closed after release")
	}
	if err := b.Publish(ctx, domain.PayslipStatusEvent{PayslipID: "p2"}); err != nil {
		t.Fatalf("publish after release: %v", err)
	}
}

func TestReleaseStopsWatcherWithLiveContext(t *testing.T) {
	b := NewBroadcaster()
	ctx := context.Background()
	before := runtime.NumGoroutine()

	for range 50 {
		_, release, err := b.Subscribe(ctx)
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		release()
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("watchers still running: %d goroutines, started with %d", runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}
