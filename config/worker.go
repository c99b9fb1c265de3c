package config

import "time"

// WorkerConfig contains queue consumption configuration.
type WorkerConfig struct {
	// QueueName is the queue this worker consumes.
	QueueName string `env:"WORKER_QUEUE" envDefault:"posting"`

	// WorkerID overrides the derived host:pid identity.
	WorkerID string `env:"WORKER_ID" envDefault:""`

	// MaxAttempts bounds redeliveries per job.
	MaxAttempts int `env:"WORKER_MAX_ATTEMPTS" envDefault:"3"`

	// HeartbeatInterval is the liveness reporting cadence.
	HeartbeatInterval time.Duration `env:"WORKER_HEARTBEAT_INTERVAL" envDefault:"10s"`

	// ReceiveBlock is how long one queue poll blocks for a delivery.
	ReceiveBlock time.Duration `env:"WORKER_RECEIVE_BLOCK" envDefault:"5s"`

	// JobsPerMinute throttles job starts to stay under the cafe's rate limits.
	JobsPerMinute float64 `env:"WORKER_JOBS_PER_MINUTE" envDefault:"10"`

	// ShutdownTimeout bounds the cleanup pass on shutdown.
	ShutdownTimeout time.Duration `env:"WORKER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// ManualLoginWait is the operator window after a login challenge.
	ManualLoginWait time.Duration `env:"WORKER_MANUAL_LOGIN_WAIT" envDefault:"5m"`

	// ManualLoginPoll is the re-check cadence inside the manual window.
	ManualLoginPoll time.Duration `env:"WORKER_MANUAL_LOGIN_POLL" envDefault:"10s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.QueueName == "" {
		w.QueueName = "posting"
	}
	if w.MaxAttempts < 1 {
		w.MaxAttempts = 1
	}
	if w.HeartbeatInterval < time.Second {
		w.HeartbeatInterval = time.Second
	}
	if w.ReceiveBlock < time.Second {
		w.ReceiveBlock = time.Second
	}
	if w.JobsPerMinute <= 0 {
		w.JobsPerMinute = 10
	}
	if w.ManualLoginWait < time.Minute {
		w.ManualLoginWait = time.Minute
	}
	if w.ManualLoginPoll < time.Second {
		w.ManualLoginPoll = time.Second
	}
}
