package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aryan0dhankhar/payhub/internal/domain"
)

const (
	jobsKey       = "payhub:payslip-jobs"
	statusChannel = "payhub:payslip-status"
)

// JobQueue is a FIFO list of payslip jobs: producers LPUSH, workers BRPOP.
type JobQueue struct {
	client *Client
}

// NewJobQueue creates a Redis-backed job queue
func NewJobQueue(client *Client) *JobQueue {
	return &JobQueue{client: client}
}

// Enqueue appends a job
func (q *JobQueue) Enqueue(ctx context.Context, job domain.PayslipJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.client.rdb.LPush(ctx, jobsKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue payslip job: %w", err)
	}
	return nil
}

// Dequeue waits up to timeout for a job; it returns nil, nil when none arrived.
func (q *JobQueue) Dequeue(ctx context.Context, timeout time.Duration) (*domain.PayslipJob, error) {
	res, err := q.client.rdb.BRPop(ctx, timeout, jobsKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue payslip job: %w", err)
	}

	// res is [key, value]
	var job domain.PayslipJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		q.client.logger.Error("dropping malformed payslip job",
			slog.String("payload", res[1]),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return &job, nil
}

// Depth returns the number of queued jobs
func (q *JobQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.rdb.LLen(ctx, jobsKey).Result()
}

// StatusBroadcaster publishes payslip status changes on a pub/sub channel so
// every API instance can forward them to its WebSocket clients.
type StatusBroadcaster struct {
	client *Client
}

// NewStatusBroadcaster creates a Redis pub/sub broadcaster
func NewStatusBroadcaster(client *Client) *StatusBroadcaster {
	return &StatusBroadcaster{client: client}
}

// Publish sends event to every subscriber
func (b *StatusBroadcaster) Publish(ctx context.Context, event domain.PayslipStatusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	if err := b.client.rdb.Publish(ctx, statusChannel, data).Err(); err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	return nil
}

// Subscribe streams events until the returned release function is called or ctx ends.
func (b *StatusBroadcaster) Subscribe(ctx context.Context) (<-chan domain.PayslipStatusEvent, func(), error) {
	sub := b.client.rdb.Subscribe(ctx, statusChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe status channel: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan domain.PayslipStatusEvent, 16)
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event domain.PayslipStatusEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.client.logger.Warn("ignoring malformed status event", slog.String("error", err.Error()))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	release := func() {
		cancel()
		_ = sub.Close()
	}
	return out, release, nil
}
