package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cafeworks/postbot/internal/core"
	"github.com/cafeworks/postbot/internal/domain/model"
)

// CollectorOptions groups dependencies and tuning for the stats collector.
type CollectorOptions struct {
	Queues     []string             // Required, names of the queues to sample
	Inspector  core.QueueInspector  // Required
	Heartbeats core.HeartbeatStore  // Required
	Stats      core.StatsRepository // Required
	Incidents  core.IncidentRepository

	Logger *slog.Logger // Optional

	// Interval is the sampling cadence; defaults to 1m.
	Interval time.Duration
	// Retention bounds snapshot history; defaults to 24h.
	Retention time.Duration
	// OnlineThreshold decides how recent a heartbeat must be to count a worker
	// as online; defaults to 30s.
	OnlineThreshold time.Duration
	// StaleWorkerAge is the heartbeat age past which entries are pruned;
	// defaults to 10m.
	StaleWorkerAge time.Duration

	Thresholds IncidentThresholds

	// Now overrides the clock, useful for tests.
	Now func() time.Time
}

// IncidentThresholds holds the detector trigger levels. Zero fields take the
// defaults from DefaultIncidentThresholds.
type IncidentThresholds struct {
	BacklogWarn     int64 // waiting depth for a MEDIUM backlog incident
	BacklogCritical int64 // waiting depth for a HIGH backlog incident

	FailureRateWarnPct     float64 // trailing failure percentage for MEDIUM
	FailureRateCriticalPct float64 // trailing failure percentage for HIGH
	FailureLookback        time.Duration
	MinFailureSample       int64 // skip the rate check below this many finished jobs
}

// DefaultIncidentThresholds returns the stock trigger levels.
func DefaultIncidentThresholds() IncidentThresholds {
	return IncidentThresholds{
		BacklogWarn:            100,
		BacklogCritical:        500,
		FailureRateWarnPct:     10,
		FailureRateCriticalPct: 25,
		FailureLookback:        time.Hour,
		MinFailureSample:       10,
	}
}

func (t IncidentThresholds) withDefaults() IncidentThresholds {
	d := DefaultIncidentThresholds()
	if t.BacklogWarn <= 0 {
		t.BacklogWarn = d.BacklogWarn
	}
	if t.BacklogCritical <= 0 {
		t.BacklogCritical = d.BacklogCritical
	}
	if t.FailureRateWarnPct <= 0 {
		t.FailureRateWarnPct = d.FailureRateWarnPct
	}
	if t.FailureRateCriticalPct <= 0 {
		t.FailureRateCriticalPct = d.FailureRateCriticalPct
	}
	if t.FailureLookback <= 0 {
		t.FailureLookback = d.FailureLookback
	}
	if t.MinFailureSample <= 0 {
		t.MinFailureSample = d.MinFailureSample
	}
	return t
}

// Collector samples queue depth and fleet size on a fixed cadence, persists
// append-only snapshots, prunes old history and stale heartbeats, and drives
// the incident detectors off each fresh sample.
type Collector struct {
	queues     []string
	inspector  core.QueueInspector
	heartbeats core.HeartbeatStore
	stats      core.StatsRepository
	incidents  core.IncidentRepository
	logger     *slog.Logger

	interval        time.Duration
	retention       time.Duration
	onlineThreshold time.Duration
	staleWorkerAge  time.Duration
	thresholds      IncidentThresholds
	now             func() time.Time
}

// NewCollector constructs a Collector and validates required dependencies.
func NewCollector(opts CollectorOptions) (*Collector, error) {
	switch {
	case len(opts.Queues) == 0:
		return nil, errors.New("at least one queue name is required")
	case opts.Inspector == nil:
		return nil, errors.New("QueueInspector is required")
	case opts.Heartbeats == nil:
		return nil, errors.New("HeartbeatStore is required")
	case opts.Stats == nil:
		return nil, errors.New("StatsRepository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	onlineThreshold := opts.OnlineThreshold
	if onlineThreshold <= 0 {
		onlineThreshold = 30 * time.Second
	}
	staleWorkerAge := opts.StaleWorkerAge
	if staleWorkerAge <= 0 {
		staleWorkerAge = 10 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Collector{
		queues:          opts.Queues,
		inspector:       opts.Inspector,
		heartbeats:      opts.Heartbeats,
		stats:           opts.Stats,
		incidents:       opts.Incidents,
		logger:          logger.With("component", "stats_collector"),
		interval:        interval,
		retention:       retention,
		onlineThreshold: onlineThreshold,
		staleWorkerAge:  staleWorkerAge,
		thresholds:      opts.Thresholds.withDefaults(),
		now:             now,
	}, nil
}

// Run samples immediately, then on every tick until the context is canceled.
// A failed pass is logged and the loop keeps going; one bad sample must not
// take the collector down.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "stats collector started",
		"interval", c.interval.String(), "queues", c.queues)

	if err := c.CollectOnce(ctx); err != nil {
		c.logger.ErrorContext(ctx, "stats pass failed", "error", err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "stats collector stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := c.CollectOnce(ctx); err != nil {
				c.logger.ErrorContext(ctx, "stats pass failed", "error", err)
			}
		}
	}
}

// CollectOnce performs one sampling pass over all configured queues.
func (c *Collector) CollectOnce(ctx context.Context) error {
	online, err := c.heartbeats.CountOnline(ctx, c.onlineThreshold)
	if err != nil {
		return fmt.Errorf("count online workers: %w", err)
	}

	var firstErr error
	for _, queueName := range c.queues {
		if err := c.sampleQueue(ctx, queueName, online); err != nil {
			c.logger.ErrorContext(ctx, "sample queue", "queue", queueName, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if pruned, err := c.stats.DeleteOlderThan(ctx, c.now().Add(-c.retention)); err != nil {
		c.logger.WarnContext(ctx, "prune old snapshots", "error", err)
	} else if pruned > 0 {
		c.logger.DebugContext(ctx, "pruned old snapshots", "count", pruned)
	}
	if pruned, err := c.heartbeats.PruneStale(ctx, c.staleWorkerAge); err != nil {
		c.logger.WarnContext(ctx, "prune stale heartbeats", "error", err)
	} else if pruned > 0 {
		c.logger.InfoContext(ctx, "pruned stale worker heartbeats", "count", pruned)
	}

	return firstErr
}

// sampleQueue reads current counts, derives throughput against the previous
// snapshot, persists the new sample and runs the detectors on it.
func (c *Collector) sampleQueue(ctx context.Context, queueName string, onlineWorkers int64) error {
	counts, err := c.inspector.Counts(ctx, queueName)
	if err != nil {
		return fmt.Errorf("read queue counts: %w", err)
	}

	now := c.now()
	prev, err := c.stats.Latest(ctx, queueName)
	if err != nil {
		return fmt.Errorf("load previous snapshot: %w", err)
	}

	snap := &model.QueueStatsSnapshot{
		QueueName:     queueName,
		Waiting:       counts.Waiting,
		Active:        counts.Active,
		Delayed:       counts.Delayed,
		Completed:     counts.Completed,
		Failed:        counts.Failed,
		Paused:        counts.Paused,
		JobsPerMin:    throughput(prev, counts.Completed, now),
		OnlineWorkers: onlineWorkers,
		CreatedAt:     now,
	}
	if err := c.stats.Insert(ctx, snap); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	c.logger.DebugContext(ctx, "queue sampled",
		"queue", queueName, "waiting", counts.Waiting, "active", counts.Active,
		"failed", counts.Failed, "online_workers", onlineWorkers)

	if c.incidents != nil {
		c.detectBacklog(ctx, queueName, counts)
		c.detectFailureRate(ctx, queueName, counts, now)
	}
	return nil
}

// throughput derives completed jobs per minute against the previous snapshot.
// Nil on the first sample; clamped to zero when completed counters move
// backwards, which happens after a queue flush.
func throughput(prev *model.QueueStatsSnapshot, completed int64, now time.Time) *float64 {
	if prev == nil {
		return nil
	}
	minutes := now.Sub(prev.CreatedAt).Minutes()
	if minutes <= 0 {
		return nil
	}
	delta := completed - prev.Completed
	if delta < 0 {
		delta = 0
	}
	rate := float64(delta) / minutes
	return &rate
}
