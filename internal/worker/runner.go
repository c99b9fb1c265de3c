// Package worker runs the queue consumption loop. One runner owns one browser
// and therefore processes jobs strictly one at a time; fleet capacity scales
// by process count, not by in-process concurrency.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/cafeworks/postbot/internal/core"
	"github.com/cafeworks/postbot/internal/data"
	"github.com/cafeworks/postbot/internal/domain/model"
	"github.com/cafeworks/postbot/internal/fleet"
	"github.com/cafeworks/postbot/internal/queue"
	"github.com/cafeworks/postbot/internal/service"
)

// Options groups dependencies and tuning for a Runner.
type Options struct {
	Queue      *queue.RedisQueue   // Required
	Processor  *service.Processor  // Required
	Heartbeats core.HeartbeatStore // Required
	Pool       core.AutomationPool // Required

	Logger *slog.Logger // Optional

	// WorkerID defaults to host:pid.
	WorkerID string
	// HeartbeatInterval defaults to 10s.
	HeartbeatInterval time.Duration
	// ReceiveBlock is the per-call queue block window; defaults to 5s.
	ReceiveBlock time.Duration
	// RateLimit throttles job starts; defaults to 10 per minute. Burst is 1 so
	// the limiter shapes a steady cadence rather than allowing spikes.
	RateLimit rate.Limit
	// ShutdownTimeout bounds the cleanup pass after the loop stops; defaults to 30s.
	ShutdownTimeout time.Duration
}

// Runner consumes deliveries from one queue, processes them serially through
// the job processor, and reports liveness through the heartbeat store.
type Runner struct {
	queue      *queue.RedisQueue
	processor  *service.Processor
	heartbeats core.HeartbeatStore
	pool       core.AutomationPool
	logger     *slog.Logger
	limiter    *rate.Limiter

	workerID        string
	hbInterval      time.Duration
	receiveBlock    time.Duration
	shutdownTimeout time.Duration

	host      string
	startedAt time.Time

	activeJobs    atomic.Int64
	processedJobs atomic.Int64
	failedJobs    atomic.Int64
}

// NewRunner constructs a Runner and validates required dependencies.
func NewRunner(opts Options) (*Runner, error) {
	switch {
	case opts.Queue == nil:
		return nil, errors.New("queue is required")
	case opts.Processor == nil:
		return nil, errors.New("processor is required")
	case opts.Heartbeats == nil:
		return nil, errors.New("heartbeat store is required")
	case opts.Pool == nil:
		return nil, errors.New("automation pool is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workerID := opts.WorkerID
	if workerID == "" {
		workerID = fleet.WorkerIdentity()
	}
	hbInterval := opts.HeartbeatInterval
	if hbInterval <= 0 {
		hbInterval = 10 * time.Second
	}
	receiveBlock := opts.ReceiveBlock
	if receiveBlock <= 0 {
		receiveBlock = 5 * time.Second
	}
	limit := opts.RateLimit
	if limit <= 0 {
		limit = rate.Every(6 * time.Second)
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	host, _ := os.Hostname()

	return &Runner{
		queue:           opts.Queue,
		processor:       opts.Processor,
		heartbeats:      opts.Heartbeats,
		pool:            opts.Pool,
		logger:          logger.With("component", "worker", "worker_id", workerID),
		limiter:         rate.NewLimiter(limit, 1),
		workerID:        workerID,
		hbInterval:      hbInterval,
		receiveBlock:    receiveBlock,
		shutdownTimeout: shutdownTimeout,
		host:            host,
	}, nil
}

// Run consumes until the context is canceled, then performs the cleanup pass:
// the in-flight job finishes on an uncanceled context, browser profiles are
// saved and closed, and the heartbeat entry is removed so the fleet view
// drops this worker immediately instead of waiting out the liveness window.
func (r *Runner) Run(ctx context.Context) error {
	r.startedAt = time.Now()
	r.logger.InfoContext(ctx, "worker started", "queue", r.queue.Name())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.heartbeatLoop(gctx) })
	g.Go(func() error { return r.consumeLoop(gctx) })
	err := g.Wait()

	r.cleanup()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) consumeLoop(ctx context.Context) error {
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}

		delivery, err := r.queue.Receive(ctx, r.receiveBlock)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.ErrorContext(ctx, "receive delivery", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		// The delivery already left the wait list, so it must be settled even
		// if shutdown begins mid-job. Process on an uncanceled context; the
		// loop itself stops before the next receive.
		r.handle(context.WithoutCancel(ctx), delivery)
	}
}

func (r *Runner) handle(ctx context.Context, delivery queue.Delivery) {
	r.activeJobs.Add(1)
	defer r.activeJobs.Add(-1)

	job, err := r.processor.Process(ctx, delivery.JobID)
	if err == nil {
		r.processedJobs.Add(1)
		if ackErr := r.queue.Complete(ctx, delivery); ackErr != nil {
			r.logger.ErrorContext(ctx, "acknowledge completion", "job_id", delivery.JobID, "error", ackErr)
		}
		return
	}

	r.failedJobs.Add(1)
	attempts := 0
	if job != nil {
		attempts = job.Attempts
	}
	// Terminal failures and vanished jobs exhaust the attempt budget; nothing
	// a redelivery could fix.
	if errors.Is(err, service.ErrTerminal) || errors.Is(err, data.ErrJobNotFound) {
		attempts = math.MaxInt
	}
	r.logger.ErrorContext(ctx, "job failed", "job_id", delivery.JobID, "attempts", attempts, "error", err)
	if ackErr := r.queue.Fail(ctx, delivery, attempts); ackErr != nil {
		r.logger.ErrorContext(ctx, "acknowledge failure", "job_id", delivery.JobID, "error", ackErr)
	}
}

func (r *Runner) heartbeatLoop(ctx context.Context) error {
	r.beat(ctx)

	ticker := time.NewTicker(r.hbInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.beat(ctx)
		}
	}
}

func (r *Runner) beat(ctx context.Context) {
	status := model.WorkerStatus{
		WorkerID:      r.workerID,
		Host:          r.host,
		PID:           os.Getpid(),
		ActiveJobs:    r.activeJobs.Load(),
		ProcessedJobs: r.processedJobs.Load(),
		FailedJobs:    r.failedJobs.Load(),
		StartedAt:     r.startedAt,
	}
	if err := r.heartbeats.Beat(ctx, status); err != nil {
		r.logger.WarnContext(ctx, "heartbeat failed", "error", err)
	}
}

func (r *Runner) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	if err := r.pool.CloseAll(ctx); err != nil {
		r.logger.ErrorContext(ctx, "close browser profiles", "error", err)
	}
	if err := r.heartbeats.Deregister(ctx, r.workerID); err != nil {
		r.logger.WarnContext(ctx, "deregister heartbeat", "error", err)
	}
	r.logger.Info("worker stopped",
		"processed", r.processedJobs.Load(), "failed", r.failedJobs.Load())
}

// String identifies the runner in supervisor logs.
func (r *Runner) String() string {
	return fmt.Sprintf("worker %s on queue %s", r.workerID, r.queue.Name())
}
