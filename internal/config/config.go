// Package config loads and validates the daemon's own configuration -
// timing knobs, the health port, the instance ID, and the script source
// path - distinct from internal/script's per-script configuration. It
// carries no display connector selection. The Load/Validate
// split, plain yaml.v3-tagged structs, and defaulting-inside-Validate
// style are grounded on
// _examples/e7canasta-orion-care-sensor/References/orion-prototipe/internal/config/{config,validator}.go.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's top-level configuration.
type Config struct {
	Script     ScriptConfig     `yaml:"script"`
	Timing     TimingConfig     `yaml:"timing"`
	Health     HealthConfig     `yaml:"health"`
	InstanceID string           `yaml:"instance_id"`
}

// ScriptConfig names the script source the runner evaluates.
type ScriptConfig struct {
	Path string `yaml:"path"`
}

// TimingConfig carries the tunables spec.md and SPEC_FULL.md name as
// "typical values" rather than fixed constants, exposed here so an
// operator can tune them without a rebuild.
type TimingConfig struct {
	PrefetchHorizonS float64 `yaml:"prefetch_horizon_s"`
	LoaderGraceS     float64 `yaml:"loader_grace_s"`
	SeekThresholdS   float64 `yaml:"seek_threshold_s"`
	TickIntervalMS   int     `yaml:"tick_interval_ms"`
	ShutdownTimeoutS float64 `yaml:"shutdown_timeout_s"`
}

// HealthConfig configures the daemon's health/readiness/metrics surface.
type HealthConfig struct {
	Port string `yaml:"port"`
}

// Default returns the configuration typical values named throughout
// spec.md and SPEC_FULL.md: a 1s prefetch horizon, 5s loader grace, 2s
// seek threshold, 50ms tick interval.
func Default() Config {
	return Config{
		Timing: TimingConfig{
			PrefetchHorizonS: 1.0,
			LoaderGraceS:     5.0,
			SeekThresholdS:   2.0,
			TickIntervalMS:   50,
			ShutdownTimeoutS: 10.0,
		},
		Health: HealthConfig{Port: "8080"},
	}
}

// Load reads and parses a YAML config file, applies defaults for unset
// fields, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks a Config for correctness, defaulting any timing field
// left at its zero value the way
// _examples/e7canasta-orion-care-sensor/References/orion-prototipe/internal/config/validator.go defaults buffer
// sizes: silently, rather than rejecting an incomplete but sane config.
func Validate(cfg *Config) error {
	if cfg.Script.Path == "" {
		return fmt.Errorf("script.path is required")
	}
	if cfg.Timing.PrefetchHorizonS <= 0 {
		cfg.Timing.PrefetchHorizonS = 1.0
	}
	if cfg.Timing.LoaderGraceS <= 0 {
		cfg.Timing.LoaderGraceS = 5.0
	}
	if cfg.Timing.SeekThresholdS <= 0 {
		cfg.Timing.SeekThresholdS = 2.0
	}
	if cfg.Timing.TickIntervalMS <= 0 {
		cfg.Timing.TickIntervalMS = 50
	}
	if cfg.Timing.ShutdownTimeoutS <= 0 {
		cfg.Timing.ShutdownTimeoutS = 10.0
	}
	if cfg.Health.Port == "" {
		cfg.Health.Port = "8080"
	}
	return nil
}

// ShutdownTimeout converts the configured shutdown timeout to a
// time.Duration for use at a context.WithTimeout call site.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Timing.ShutdownTimeoutS * float64(time.Second))
}

// TickInterval converts the configured tick interval to a time.Duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Timing.TickIntervalMS) * time.Millisecond
}
