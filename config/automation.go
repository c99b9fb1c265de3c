package config

import "time"

// AutomationConfig contains browser automation configuration.
type AutomationConfig struct {
	// BaseURL is the cafe origin all flows navigate against.
	BaseURL string `env:"AUTOMATION_BASE_URL" envDefault:"https://cafe.example.com"`

	// ProfilesDir is the root under which each browser profile persists its
	// user data directory and cookie snapshot.
	ProfilesDir string `env:"AUTOMATION_PROFILES_DIR" envDefault:"./data/profiles"`

	// ArtifactsDir receives diagnostic screenshots.
	ArtifactsDir string `env:"AUTOMATION_ARTIFACTS_DIR" envDefault:"./data/artifacts"`

	// Headless toggles headless Chrome. Manual-intervention login waits need
	// a headed browser, so workers serving session init usually run headed.
	Headless bool `env:"AUTOMATION_HEADLESS" envDefault:"true"`

	// NavTimeout bounds every navigation.
	NavTimeout time.Duration `env:"AUTOMATION_NAV_TIMEOUT" envDefault:"30s"`

	// SelectorTimeout bounds every selector wait.
	SelectorTimeout time.Duration `env:"AUTOMATION_SELECTOR_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to automation configuration values.
func (a *AutomationConfig) Sanitize() {
	if a.ProfilesDir == "" {
		a.ProfilesDir = "./data/profiles"
	}
	if a.ArtifactsDir == "" {
		a.ArtifactsDir = "./data/artifacts"
	}
	if a.NavTimeout < time.Second {
		a.NavTimeout = time.Second
	}
	if a.SelectorTimeout < time.Second {
		a.SelectorTimeout = time.Second
	}
}
