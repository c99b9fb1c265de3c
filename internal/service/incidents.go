package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cafeworks/postbot/internal/data"
	"github.com/cafeworks/postbot/internal/domain/model"
)

// incidentSignal is one detector reading: a metric, the thresholds it is
// judged against, and the copy used when an incident is opened or escalated.
type incidentSignal struct {
	typ          model.IncidentType
	queueName    string
	metric       float64
	warn         float64
	critical     float64
	affectedJobs int64
	title        string
	description  string
	action       string
}

// severity maps the metric onto the tier ladder; "" means below warning.
func (s incidentSignal) severity() model.IncidentSeverity {
	switch {
	case s.metric >= s.critical:
		return model.IncidentSeverityHigh
	case s.metric >= s.warn:
		return model.IncidentSeverityMedium
	default:
		return ""
	}
}

// detectBacklog opens, escalates, or auto-resolves a queue_backlog incident
// from the current waiting depth.
func (c *Collector) detectBacklog(ctx context.Context, queueName string, counts model.QueueCounts) {
	t := c.thresholds
	c.applySignal(ctx, incidentSignal{
		typ:          model.IncidentTypeQueueBacklog,
		queueName:    queueName,
		metric:       float64(counts.Waiting),
		warn:         float64(t.BacklogWarn),
		critical:     float64(t.BacklogCritical),
		affectedJobs: counts.Waiting,
		title:        fmt.Sprintf("Queue backlog on %s", queueName),
		description:  fmt.Sprintf("%d jobs waiting (warn at %d, critical at %d)", counts.Waiting, t.BacklogWarn, t.BacklogCritical),
		action:       "Check worker fleet health and scale workers or pause producers.",
	})
}

// detectFailureRate opens, escalates, or auto-resolves a high_failure_rate
// incident from the trailing failure percentage. The comparison snapshot is
// the newest one at or before the lookback horizon; without one, or with too
// small a finished-job sample, the check is skipped.
func (c *Collector) detectFailureRate(ctx context.Context, queueName string, counts model.QueueCounts, now time.Time) {
	t := c.thresholds
	prev, err := c.stats.NearestBefore(ctx, queueName, now.Add(-t.FailureLookback))
	if err != nil {
		c.logger.WarnContext(ctx, "load lookback snapshot", "queue", queueName, "error", err)
		return
	}
	if prev == nil {
		return
	}

	deltaFailed := counts.Failed - prev.Failed
	if deltaFailed < 0 {
		deltaFailed = 0
	}
	deltaCompleted := counts.Completed - prev.Completed
	if deltaCompleted < 0 {
		deltaCompleted = 0
	}
	finished := deltaFailed + deltaCompleted
	if finished < t.MinFailureSample {
		return
	}
	rate := float64(deltaFailed) / float64(finished) * 100

	c.applySignal(ctx, incidentSignal{
		typ:          model.IncidentTypeHighFailureRate,
		queueName:    queueName,
		metric:       rate,
		warn:         t.FailureRateWarnPct,
		critical:     t.FailureRateCriticalPct,
		affectedJobs: deltaFailed,
		title:        fmt.Sprintf("High failure rate on %s", queueName),
		description: fmt.Sprintf("%.1f%% of %d jobs failed over the last %s (warn at %.0f%%, critical at %.0f%%)",
			rate, finished, t.FailureLookback, t.FailureRateWarnPct, t.FailureRateCriticalPct),
		action: "Inspect recent job logs for a common failure and check session health.",
	})
}

// applySignal reconciles one signal against the open incident for its
// (type, queue) pair: open when none exists and the metric clears warning,
// adjust severity in place while open, auto-resolve once the metric drops
// below half the warning threshold. Acknowledged incidents keep updating but
// are never re-activated. Races with concurrent collectors collapse into the
// unique-open constraint and are swallowed here.
func (c *Collector) applySignal(ctx context.Context, sig incidentSignal) {
	open, err := c.incidents.GetOpen(ctx, sig.typ, sig.queueName)
	if err != nil && !errors.Is(err, data.ErrIncidentNotFound) {
		c.logger.ErrorContext(ctx, "load open incident", "type", sig.typ, "queue", sig.queueName, "error", err)
		return
	}
	severity := sig.severity()

	if open == nil {
		if severity == "" {
			return
		}
		created, createErr := c.incidents.CreateOpen(ctx, &model.Incident{
			Type:              sig.typ,
			Severity:          severity,
			QueueName:         sig.queueName,
			AffectedJobs:      sig.affectedJobs,
			Title:             sig.title,
			Description:       sig.description,
			RecommendedAction: sig.action,
			Status:            model.IncidentStatusActive,
		})
		if createErr != nil {
			if errors.Is(createErr, data.ErrIncidentAlreadyOpen) {
				return
			}
			c.logger.ErrorContext(ctx, "create incident", "type", sig.typ, "queue", sig.queueName, "error", createErr)
			return
		}
		c.logger.WarnContext(ctx, "incident opened",
			"incident_id", created.ID, "type", sig.typ, "queue", sig.queueName,
			"severity", severity, "affected_jobs", sig.affectedJobs)
		return
	}

	if severity == "" && sig.metric < sig.warn/2 {
		reason := fmt.Sprintf("metric recovered to %.1f, below half the warning threshold %.1f", sig.metric, sig.warn)
		if resolveErr := c.incidents.Resolve(ctx, open.ID, "collector", reason); resolveErr != nil {
			c.logger.ErrorContext(ctx, "resolve incident", "incident_id", open.ID, "error", resolveErr)
			return
		}
		c.logger.InfoContext(ctx, "incident auto-resolved", "incident_id", open.ID, "type", sig.typ, "queue", sig.queueName)
		return
	}

	if severity == "" {
		// Between half-warning and warning: hold the incident open unchanged.
		return
	}
	if err := c.incidents.UpdateOpen(ctx, open.ID, severity, sig.affectedJobs, sig.description); err != nil {
		c.logger.ErrorContext(ctx, "update incident", "incident_id", open.ID, "error", err)
		return
	}
	if open.Severity != severity {
		c.logger.WarnContext(ctx, "incident severity changed",
			"incident_id", open.ID, "type", sig.typ, "queue", sig.queueName,
			"from", open.Severity, "to", severity)
	}
}
