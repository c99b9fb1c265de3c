package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cafeworks/postbot/internal/domain/model"
)

// Inspector implements core.QueueInspector against the Redis key layout.
type Inspector struct {
	client redis.UniversalClient
}

// NewInspector creates an Inspector on the given client.
func NewInspector(client redis.UniversalClient) *Inspector {
	return &Inspector{client: client}
}

// Counts reads the instantaneous depth counts and pause flag for one queue.
// All reads go out in a single pipeline.
func (i *Inspector) Counts(ctx context.Context, queueName string) (model.QueueCounts, error) {
	pipe := i.client.Pipeline()
	waiting := pipe.LLen(ctx, waitKey(queueName))
	active := pipe.LLen(ctx, activeKey(queueName))
	delayed := pipe.ZCard(ctx, delayedKey(queueName))
	completed := pipe.ZCard(ctx, completedKey(queueName))
	failed := pipe.ZCard(ctx, failedKey(queueName))
	paused := pipe.Exists(ctx, pausedKey(queueName))

	if _, err := pipe.Exec(ctx); err != nil {
		return model.QueueCounts{}, fmt.Errorf("inspect queue %s: %w", queueName, err)
	}

	return model.QueueCounts{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Paused:    paused.Val() > 0,
	}, nil
}
