// Package inproc provides the job queue and status broadcaster used when no
// Redis server is configured. Jobs do not survive a restart; the stale
// payslip sweeper fails any that were lost.
package inproc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

// ErrQueueFull is returned when the buffered queue has no room.
var ErrQueueFull = errors.New("job queue full")

// JobQueue is a buffered channel of payslip jobs
type JobQueue struct {
	jobs chan domain.PayslipJob
}

// NewJobQueue creates a queue holding up to capacity pending jobs
func NewJobQueue(capacity int) *JobQueue {
	return &JobQueue{jobs: make(chan domain.PayslipJob, capacity)}
}

// Enqueue adds a job without blocking
func (q *JobQueue) Enqueue(ctx context.Context, job domain.PayslipJob) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Dequeue waits up to timeout for a job; it returns nil, nil when none arrived.
func (q *JobQueue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.PayslipJob, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case job := <-q.jobs:
		return &job, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Broadcaster fans status events out to in-process subscribers. Slow
// subscribers miss events rather than blocking publishers.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan domain.PayslipStatusEvent
	nextID int
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan domain.PayslipStatusEvent)}
}

// Publish delivers event to every current subscriber
func (b *Broadcaster) Publish(_ context.Context, event domain.PayslipStatusEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber; the release function unregisters it
// and closes the stream.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan domain.PayslipStatusEvent, func(), error) {
	ch := make(chan domain.PayslipStatusEvent, 16)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	release := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
			close(done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			release()
		case <-done:
		}
	}()
	return ch, release, nil
}
