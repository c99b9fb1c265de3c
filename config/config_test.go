package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[ServiceMode]bool
		wantErr string
	}{
		{
			name:  "single worker",
			input: "worker",
			want:  map[ServiceMode]bool{ServiceModeWorker: true},
		},
		{
			name:  "both with spaces",
			input: " worker , collector ",
			want:  map[ServiceMode]bool{ServiceModeWorker: true, ServiceModeCollector: true},
		},
		{
			name:  "duplicates collapse",
			input: "collector,collector",
			want:  map[ServiceMode]bool{ServiceModeCollector: true},
		},
		{
			name:    "unknown service",
			input:   "worker,api",
			wantErr: "invalid service name",
		},
		{
			name:    "empty",
			input:   "",
			wantErr: "at least one service",
		},
		{
			name:    "only separators",
			input:   ", ,",
			wantErr: "at least one service",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWorkerConfigSanitize(t *testing.T) {
	w := WorkerConfig{
		QueueName:         "",
		MaxAttempts:       0,
		HeartbeatInterval: 50 * time.Millisecond,
		ReceiveBlock:      0,
		JobsPerMinute:     -3,
		ManualLoginWait:   time.Second,
		ManualLoginPoll:   0,
	}
	w.Sanitize()

	assert.Equal(t, "posting", w.QueueName)
	assert.Equal(t, 1, w.MaxAttempts)
	assert.Equal(t, time.Second, w.HeartbeatInterval)
	assert.Equal(t, time.Second, w.ReceiveBlock)
	assert.Equal(t, float64(10), w.JobsPerMinute)
	assert.Equal(t, time.Minute, w.ManualLoginWait)
	assert.Equal(t, time.Second, w.ManualLoginPoll)
}

func TestCollectorConfigSanitize(t *testing.T) {
	c := CollectorConfig{
		Queues:                 []string{" posting ", "", "scheduled"},
		Interval:               time.Second,
		Retention:              time.Minute,
		OnlineThreshold:        0,
		StaleWorkerAge:         0,
		BacklogWarn:            0,
		BacklogCritical:        0,
		FailureRateWarnPct:     0,
		FailureRateCriticalPct: 0,
		FailureLookback:        0,
		MinFailureSample:       0,
	}
	c.Sanitize()

	assert.Equal(t, []string{"posting", "scheduled"}, c.Queues)
	assert.Equal(t, 5*time.Second, c.Interval)
	assert.Equal(t, time.Hour, c.Retention)
	assert.Equal(t, time.Second, c.OnlineThreshold)
	assert.Equal(t, 10*time.Second, c.StaleWorkerAge)
	assert.Equal(t, int64(100), c.BacklogWarn)
	assert.Equal(t, int64(500), c.BacklogCritical)
	assert.Equal(t, float64(10), c.FailureRateWarnPct)
	assert.Equal(t, float64(25), c.FailureRateCriticalPct)
	assert.Equal(t, time.Hour, c.FailureLookback)
	assert.Equal(t, int64(1), c.MinFailureSample)
}

func TestCollectorConfigSanitize_EmptyQueueListFallsBack(t *testing.T) {
	c := CollectorConfig{Queues: []string{"  ", ""}}
	c.Sanitize()
	assert.Equal(t, []string{"posting"}, c.Queues)
}

func TestCollectorConfigSanitize_CriticalMustExceedWarn(t *testing.T) {
	c := CollectorConfig{
		BacklogWarn:            200,
		BacklogCritical:        150,
		FailureRateWarnPct:     20,
		FailureRateCriticalPct: 20,
	}
	c.Sanitize()
	assert.Equal(t, int64(1000), c.BacklogCritical)
	assert.Equal(t, float64(50), c.FailureRateCriticalPct)
}

func TestDetectDevMode(t *testing.T) {
	t.Run("NODE_ENV development enables dev", func(t *testing.T) {
		t.Setenv("NODE_ENV", "development")
		cfg := AppConfig{}
		cfg.detectDevMode()
		assert.True(t, cfg.IsDev)
	})

	t.Run("explicit flag wins regardless of NODE_ENV", func(t *testing.T) {
		t.Setenv("NODE_ENV", "production")
		cfg := AppConfig{IsDev: true}
		cfg.detectDevMode()
		assert.True(t, cfg.IsDev)
	})

	t.Run("production stays off", func(t *testing.T) {
		t.Setenv("NODE_ENV", "production")
		cfg := AppConfig{}
		cfg.detectDevMode()
		assert.False(t, cfg.IsDev)
	})
}
