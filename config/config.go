package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and Redis configuration
//   - worker.go: Worker and queue configuration
//   - collector.go: Stats collector and incident threshold configuration
//   - automation.go: Browser automation configuration
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// SecretsEncryptionKey is the key credentials are encrypted with: 32 raw
	// bytes or 64 hex characters. Startup fails without a usable key.
	SecretsEncryptionKey string `env:"SECRETS_ENCRYPTION_KEY"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Services selects which components this process runs, comma-delimited.
	Services string `env:"SERVICES" envDefault:"worker"`

	// Worker configuration
	Worker WorkerConfig

	// Stats collector configuration
	Collector CollectorConfig

	// Browser automation configuration
	Automation AutomationConfig
}

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeWorker runs the queue consumption loop.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeCollector runs the stats collector and incident detectors.
	ServiceModeCollector ServiceMode = "collector"
)

// ParseServices parses a comma-delimited string of service names and returns
// the enabled services. All names must be valid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeWorker, ServiceModeCollector:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: worker, collector)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one service must be specified")
	}
	return services, nil
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Worker.Sanitize()
	c.Collector.Sanitize()
	c.Automation.Sanitize()
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback for parity with the Node tooling the
// deployment inherited.
func (c *AppConfig) detectDevMode() {
	if c.IsDev {
		return
	}
	nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
	if nodeEnv == "development" || nodeEnv == "dev" {
		c.IsDev = true
	}
}
