// Package fleet tracks worker liveness in Redis. Each worker keeps one member
// in a timestamp-scored sorted set plus an expiring JSON detail blob, so a
// crashed worker disappears passively while a clean shutdown removes it at once.
package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cafeworks/postbot/internal/domain/model"
)

const (
	heartbeatSetKey = "fleet:heartbeats"
	workerKeyPrefix = "fleet:worker:"

	// DefaultDetailTTL is how long a worker detail blob outlives its last beat.
	DefaultDetailTTL = 60 * time.Second
)

// WorkerIdentity builds the fleet-unique member name for this process.
func WorkerIdentity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return host + ":" + strconv.Itoa(os.Getpid())
}

// HeartbeatStore implements core.HeartbeatStore on Redis.
type HeartbeatStore struct {
	client    redis.UniversalClient
	detailTTL time.Duration
	now       func() time.Time
}

// Options configures a HeartbeatStore.
type Options struct {
	Client    redis.UniversalClient
	DetailTTL time.Duration
	// Now overrides the clock, useful for tests.
	Now func() time.Time
}

// NewHeartbeatStore creates a HeartbeatStore with the given options.
func NewHeartbeatStore(opts Options) (*HeartbeatStore, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := opts.DetailTTL
	if ttl <= 0 {
		ttl = DefaultDetailTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &HeartbeatStore{client: opts.Client, detailTTL: ttl, now: now}, nil
}

// Beat upserts the worker into the sorted set with the current timestamp as
// score (an O(log N) write) and refreshes the TTL'd detail blob.
func (s *HeartbeatStore) Beat(ctx context.Context, status model.WorkerStatus) error {
	if status.WorkerID == "" {
		return errors.New("worker id is required")
	}

	now := s.now()
	if err := s.client.ZAdd(ctx, heartbeatSetKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: status.WorkerID,
	}).Err(); err != nil {
		return fmt.Errorf("heartbeat zadd: %w", err)
	}

	detail, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal worker status: %w", err)
	}
	if err := s.client.Set(ctx, workerKeyPrefix+status.WorkerID, detail, s.detailTTL).Err(); err != nil {
		return fmt.Errorf("heartbeat detail set: %w", err)
	}
	return nil
}

// Online returns worker IDs whose last beat is newer than now-threshold,
// as a score range query rather than a full scan.
func (s *HeartbeatStore) Online(ctx context.Context, threshold time.Duration) ([]string, error) {
	cutoff := s.now().Add(-threshold).UnixMilli()
	members, err := s.client.ZRangeByScore(ctx, heartbeatSetKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(cutoff, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("heartbeat range query: %w", err)
	}
	return members, nil
}

// CountOnline counts workers whose last beat is newer than now-threshold.
func (s *HeartbeatStore) CountOnline(ctx context.Context, threshold time.Duration) (int64, error) {
	cutoff := s.now().Add(-threshold).UnixMilli()
	count, err := s.client.ZCount(ctx, heartbeatSetKey, strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("heartbeat count query: %w", err)
	}
	return count, nil
}

// Detail reads a worker's status blob, or nil when it has expired.
func (s *HeartbeatStore) Detail(ctx context.Context, workerID string) (*model.WorkerStatus, error) {
	raw, err := s.client.Get(ctx, workerKeyPrefix+workerID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("heartbeat detail get: %w", err)
	}
	var status model.WorkerStatus
	if unmarshalErr := json.Unmarshal([]byte(raw), &status); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal worker status: %w", unmarshalErr)
	}
	return &status, nil
}

// Deregister removes the worker's entry and detail blob immediately.
func (s *HeartbeatStore) Deregister(ctx context.Context, workerID string) error {
	if err := s.client.ZRem(ctx, heartbeatSetKey, workerID).Err(); err != nil {
		return fmt.Errorf("heartbeat zrem: %w", err)
	}
	if err := s.client.Del(ctx, workerKeyPrefix+workerID).Err(); err != nil {
		return fmt.Errorf("heartbeat detail del: %w", err)
	}
	return nil
}

// PruneStale removes set entries older than now-maxAge. Detail blobs expire
// on their own TTL and need no pass here.
func (s *HeartbeatStore) PruneStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).UnixMilli()
	removed, err := s.client.ZRemRangeByScore(
		ctx, heartbeatSetKey, "-inf", strconv.FormatInt(cutoff, 10),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("heartbeat prune: %w", err)
	}
	return removed, nil
}
