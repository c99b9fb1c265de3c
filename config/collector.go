package config

import (
	"strings"
	"time"
)

// CollectorConfig contains stats collector configuration.
type CollectorConfig struct {
	// Queues is the comma-delimited list of queues to sample.
	Queues []string `env:"COLLECTOR_QUEUES" envDefault:"posting"`

	// Interval is the sampling cadence.
	Interval time.Duration `env:"COLLECTOR_INTERVAL" envDefault:"1m"`

	// Retention bounds snapshot history.
	Retention time.Duration `env:"COLLECTOR_RETENTION" envDefault:"24h"`

	// OnlineThreshold is the heartbeat age under which a worker counts as online.
	OnlineThreshold time.Duration `env:"COLLECTOR_ONLINE_THRESHOLD" envDefault:"30s"`

	// StaleWorkerAge is the heartbeat age past which entries are pruned.
	StaleWorkerAge time.Duration `env:"COLLECTOR_STALE_WORKER_AGE" envDefault:"10m"`

	// BacklogWarn and BacklogCritical are the waiting-depth incident triggers.
	BacklogWarn     int64 `env:"COLLECTOR_BACKLOG_WARN"     envDefault:"100"`
	BacklogCritical int64 `env:"COLLECTOR_BACKLOG_CRITICAL" envDefault:"500"`

	// FailureRateWarnPct and FailureRateCriticalPct are the trailing failure
	// percentage incident triggers.
	FailureRateWarnPct     float64 `env:"COLLECTOR_FAILURE_RATE_WARN"     envDefault:"10"`
	FailureRateCriticalPct float64 `env:"COLLECTOR_FAILURE_RATE_CRITICAL" envDefault:"25"`

	// FailureLookback is the trailing window for the failure rate.
	FailureLookback time.Duration `env:"COLLECTOR_FAILURE_LOOKBACK" envDefault:"1h"`

	// MinFailureSample skips the failure-rate check below this many finished jobs.
	MinFailureSample int64 `env:"COLLECTOR_MIN_FAILURE_SAMPLE" envDefault:"10"`
}

// Sanitize applies guardrails to collector configuration values.
func (c *CollectorConfig) Sanitize() {
	queues := c.Queues[:0]
	for _, q := range c.Queues {
		if q = strings.TrimSpace(q); q != "" {
			queues = append(queues, q)
		}
	}
	c.Queues = queues
	if len(c.Queues) == 0 {
		c.Queues = []string{"posting"}
	}
	if c.Interval < 5*time.Second {
		c.Interval = 5 * time.Second
	}
	if c.Retention < time.Hour {
		c.Retention = time.Hour
	}
	if c.OnlineThreshold < time.Second {
		c.OnlineThreshold = time.Second
	}
	if c.StaleWorkerAge < c.OnlineThreshold {
		c.StaleWorkerAge = 10 * c.OnlineThreshold
	}
	if c.BacklogWarn < 1 {
		c.BacklogWarn = 100
	}
	if c.BacklogCritical <= c.BacklogWarn {
		c.BacklogCritical = 5 * c.BacklogWarn
	}
	if c.FailureRateWarnPct <= 0 {
		c.FailureRateWarnPct = 10
	}
	if c.FailureRateCriticalPct <= c.FailureRateWarnPct {
		c.FailureRateCriticalPct = 2.5 * c.FailureRateWarnPct
	}
	if c.FailureLookback < c.Interval {
		c.FailureLookback = time.Hour
	}
	if c.MinFailureSample < 1 {
		c.MinFailureSample = 1
	}
}
