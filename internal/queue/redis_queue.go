package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Receive when no delivery arrived within the block window.
var ErrEmpty = errors.New("no deliveries available")

// Delivery is one job handed to the worker. The member carried through the
// queue is the job ID; all job state lives in the relational store.
type Delivery struct {
	JobID string
}

// RedisQueue is a minimal list-based queue client. Delivery and retry policy
// belong to the queue, not the processor: the worker only receives, then
// acknowledges success or failure, and RedisQueue requeues failed deliveries
// until the configured attempt budget is spent.
type RedisQueue struct {
	client      redis.UniversalClient
	name        string
	maxAttempts int
	now         func() time.Time
}

// RedisQueueOptions configures a RedisQueue.
type RedisQueueOptions struct {
	Client redis.UniversalClient
	Name   string
	// MaxAttempts bounds redeliveries per job; defaults to 3.
	MaxAttempts int
	// Now overrides the clock, useful for tests.
	Now func() time.Time
}

// NewRedisQueue creates a queue client for one named queue.
func NewRedisQueue(opts RedisQueueOptions) (*RedisQueue, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Name == "" {
		return nil, errors.New("queue name is required")
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &RedisQueue{client: opts.Client, name: opts.Name, maxAttempts: maxAttempts, now: now}, nil
}

// Name returns the queue name.
func (q *RedisQueue) Name() string { return q.name }

// Enqueue submits a job ID for delivery.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	if err := q.client.LPush(ctx, waitKey(q.name), jobID).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Receive blocks up to the given timeout for the next delivery, moving it
// from the wait list to the active list in one step.
func (q *RedisQueue) Receive(ctx context.Context, block time.Duration) (Delivery, error) {
	jobID, err := q.client.BLMove(ctx, waitKey(q.name), activeKey(q.name), "RIGHT", "LEFT", block).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Delivery{}, ErrEmpty
		}
		return Delivery{}, fmt.Errorf("receive delivery: %w", err)
	}
	return Delivery{JobID: jobID}, nil
}

// Complete acknowledges a successful delivery: the job leaves the active list
// and lands in the completed set scored by completion time.
func (q *RedisQueue) Complete(ctx context.Context, d Delivery) error {
	return q.settle(ctx, d, completedKey(q.name))
}

// Fail acknowledges a failed delivery. When the attempt budget is not yet
// spent the job is requeued for redelivery; otherwise it lands in the failed
// set. attempts is the count of deliveries already made, including this one.
func (q *RedisQueue) Fail(ctx context.Context, d Delivery, attempts int) error {
	if attempts < q.maxAttempts {
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, activeKey(q.name), 1, d.JobID)
		pipe.LPush(ctx, waitKey(q.name), d.JobID)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("requeue delivery: %w", err)
		}
		return nil
	}
	return q.settle(ctx, d, failedKey(q.name))
}

func (q *RedisQueue) settle(ctx context.Context, d Delivery, destKey string) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, activeKey(q.name), 1, d.JobID)
	pipe.ZAdd(ctx, destKey, redis.Z{
		Score:  float64(q.now().UnixMilli()),
		Member: d.JobID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("settle delivery: %w", err)
	}
	return nil
}

// Pause marks the queue paused; Resume clears the marker. Only the depth
// inspector reads the flag, consumption itself is paused by the operator
// stopping workers.
func (q *RedisQueue) Pause(ctx context.Context) error {
	if err := q.client.Set(ctx, pausedKey(q.name), "1", 0).Err(); err != nil {
		return fmt.Errorf("pause queue: %w", err)
	}
	return nil
}

// Resume clears the paused marker.
func (q *RedisQueue) Resume(ctx context.Context) error {
	if err := q.client.Del(ctx, pausedKey(q.name)).Err(); err != nil {
		return fmt.Errorf("resume queue: %w", err)
	}
	return nil
}
