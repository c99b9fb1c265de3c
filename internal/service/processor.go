// Package service holds the job processor with its per-type handlers and the
// stats collector with its incident detectors.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cafeworks/postbot/internal/core"
	"github.com/cafeworks/postbot/internal/data/cryptoutil"
	"github.com/cafeworks/postbot/internal/domain/model"
)

// ErrTerminal marks business failures that must not be redelivered by the
// queue: bad credentials, permission failures, anything requiring an operator
// to re-establish trust. The queue boundary checks for it when acknowledging.
var ErrTerminal = errors.New("terminal job failure")

func terminal(err error) error {
	return fmt.Errorf("%w: %w", ErrTerminal, err)
}

// ProcessorOptions groups dependencies for the job processor.
type ProcessorOptions struct {
	Jobs     core.JobRepository     // Required
	Runs     core.RunRepository     // Required when jobs reference schedule runs
	Sessions core.SessionRepository // Required
	Accounts core.AccountRepository // Required
	Posts    core.PostRepository    // Required
	Pool     core.AutomationPool    // Required
	Secrets  cryptoutil.Encryptor   // Required

	Logger *slog.Logger // Optional

	// ManualLoginWait bounds the operator window after a login challenge;
	// defaults to 5m. ManualLoginPoll is the re-check cadence; defaults to 10s.
	ManualLoginWait time.Duration
	ManualLoginPoll time.Duration

	// Now overrides the clock, useful for tests.
	Now func() time.Time
}

// Processor executes delivered jobs: it owns the job status state machine,
// dispatches by type to a handler, and settles schedule-run counters.
type Processor struct {
	jobs     core.JobRepository
	runs     core.RunRepository
	sessions core.SessionRepository
	accounts core.AccountRepository
	posts    core.PostRepository
	pool     core.AutomationPool
	secrets  cryptoutil.Encryptor
	logger   *slog.Logger

	manualWait time.Duration
	manualPoll time.Duration
	now        func() time.Time
}

// NewProcessor constructs a Processor and validates required dependencies.
func NewProcessor(opts ProcessorOptions) (*Processor, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Sessions == nil:
		return nil, errors.New("SessionRepository is required")
	case opts.Accounts == nil:
		return nil, errors.New("AccountRepository is required")
	case opts.Posts == nil:
		return nil, errors.New("PostRepository is required")
	case opts.Pool == nil:
		return nil, errors.New("AutomationPool is required")
	case opts.Secrets == nil:
		return nil, errors.New("Encryptor is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	manualWait := opts.ManualLoginWait
	if manualWait <= 0 {
		manualWait = 5 * time.Minute
	}
	manualPoll := opts.ManualLoginPoll
	if manualPoll <= 0 {
		manualPoll = 10 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Processor{
		jobs:       opts.Jobs,
		runs:       opts.Runs,
		sessions:   opts.Sessions,
		accounts:   opts.Accounts,
		posts:      opts.Posts,
		pool:       opts.Pool,
		secrets:    opts.Secrets,
		logger:     logger.With("component", "job_processor"),
		manualWait: manualWait,
		manualPoll: manualPoll,
		now:        now,
	}, nil
}

// Process runs one delivered job through its lifecycle: queued→processing→
// {completed,failed}, with a log entry at start and at the terminal state.
// Handler errors are re-raised after the failed transition so the queue's
// attempt policy applies; run counters settle on both outcomes. The returned
// job reflects the post-transition row (nil when the load itself failed) so
// the caller can acknowledge the delivery with the right attempt count.
func (p *Processor) Process(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}

	job, err = p.jobs.MarkProcessing(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("transition job %s to processing: %w", jobID, err)
	}
	p.appendLog(ctx, job.ID, "info", fmt.Sprintf("processing started (attempt %d)", job.Attempts))
	p.logger.InfoContext(ctx, "job processing", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts)

	handlerErr := p.dispatch(ctx, job)
	if handlerErr != nil {
		if markErr := p.jobs.MarkFailed(ctx, job.ID, handlerErr.Error()); markErr != nil {
			p.logger.ErrorContext(ctx, "mark job failed error", "job_id", job.ID, "error", markErr)
		}
		p.appendLog(ctx, job.ID, "error", "job failed: "+handlerErr.Error())
		p.settleRun(ctx, job, true)
		return job, handlerErr
	}

	if markErr := p.jobs.MarkCompleted(ctx, job.ID); markErr != nil {
		p.logger.ErrorContext(ctx, "mark job completed error", "job_id", job.ID, "error", markErr)
	}
	p.appendLog(ctx, job.ID, "info", "job completed")
	p.settleRun(ctx, job, false)
	return job, nil
}

// dispatch decodes the typed payload and routes to the handler. The switch is
// exhaustive over the payload union.
func (p *Processor) dispatch(ctx context.Context, job *model.Job) error {
	payload, err := model.DecodePayload(job.Type, job.Payload)
	if err != nil {
		return terminal(err)
	}
	if err := payload.Validate(); err != nil {
		return terminal(fmt.Errorf("invalid %s payload: %w", job.Type, err))
	}

	switch pl := payload.(type) {
	case *model.InitSessionPayload:
		return p.handleInitSession(ctx, job, pl)
	case *model.VerifySessionPayload:
		return p.handleVerifySession(ctx, job, pl)
	case *model.CreatePostPayload:
		return p.handleCreatePost(ctx, job, pl)
	case *model.SyncPostsPayload:
		return p.handleSyncPosts(ctx, job, pl)
	case *model.DeletePostPayload:
		return p.handleDeletePost(ctx, job, pl)
	default:
		return terminal(fmt.Errorf("no handler for payload %T", payload))
	}
}

// settleRun applies the job outcome to its owning schedule run, if any.
func (p *Processor) settleRun(ctx context.Context, job *model.Job, failed bool) {
	if job.RunID == nil || p.runs == nil {
		return
	}
	run, err := p.runs.ApplyJobOutcome(ctx, *job.RunID, failed)
	if err != nil {
		p.logger.ErrorContext(ctx, "apply job outcome to run", "job_id", job.ID, "run_id", *job.RunID, "error", err)
		return
	}
	if run.Status.Terminal() {
		p.logger.InfoContext(ctx, "schedule run finished",
			"run_id", run.ID, "status", run.Status,
			"completed", run.CompletedJobs, "failed", run.FailedJobs, "total", run.TotalJobs)
	}
}

// appendLog writes one job log line; a failed append is itself non-critical.
func (p *Processor) appendLog(ctx context.Context, jobID, level, message string) {
	if err := p.jobs.AppendLog(ctx, jobID, level, message); err != nil {
		p.logger.WarnContext(ctx, "append job log failed", "job_id", jobID, "error", err)
	}
}

// bestEffort runs secondary bookkeeping that must never fail the owning job.
// The swallow is deliberate and always leaves a log trail.
func (p *Processor) bestEffort(ctx context.Context, jobID, label string, fn func() error) {
	if err := fn(); err != nil {
		p.logger.WarnContext(ctx, "non-critical effect failed", "job_id", jobID, "effect", label, "error", err)
		p.appendLog(ctx, jobID, "warn", label+" failed: "+err.Error())
	}
}
