// Package config loads and validates clariond configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"clariond/internal/types"

	"gopkg.in/yaml.v3"
)

// Config holds all clariond configuration.
type Config struct {
	// Master on/off switch. When false the engine answers every detection
	// call with a forced proceed carrying the "disabled" reason.
	Enabled bool `yaml:"enabled"`

	// DefaultMode is used when the gateway does not supply a mode.
	DefaultMode types.Mode `yaml:"default_mode"`

	// MaxRounds caps clarification exchanges per conversation.
	MaxRounds int `yaml:"max_rounds"`

	// Thresholds bound the clarify band.
	Thresholds ThresholdConfig `yaml:"confidence_thresholds"`

	// Learning configures the pattern learner.
	Learning LearningConfig `yaml:"learning"`

	// Safety configures the circuit breaker.
	Safety SafetyConfig `yaml:"safety"`

	// Logging configures category file logging.
	Logging LoggingConfig `yaml:"logging"`

	// StatePath is the directory for the pattern database and logs.
	StatePath string `yaml:"state_path"`
}

// ThresholdConfig bounds the ambiguity clarify band.
type ThresholdConfig struct {
	AskClarify float64 `yaml:"ask_clarify"` // lower edge
	Proceed    float64 `yaml:"proceed"`     // upper edge
}

// LearningConfig configures the pattern learner.
type LearningConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MinSamplesToApply int     `yaml:"min_samples_to_apply"`
	Decay             float64 `yaml:"decay"`
}

// SafetyConfig configures the safety governor.
type SafetyConfig struct {
	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	MaxFailures  int `yaml:"max_failures"`
	ResetSeconds int `yaml:"reset_seconds"`
}

// LoggingConfig configures category file logging.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     true,
		DefaultMode: types.ModeCareful,
		MaxRounds:   2,
		Thresholds: ThresholdConfig{
			AskClarify: 0.25,
			Proceed:    0.80,
		},
		Learning: LearningConfig{
			Enabled:           true,
			MinSamplesToApply: 3,
			Decay:             0.90,
		},
		Safety: SafetyConfig{
			CircuitBreaker: BreakerConfig{
				MaxFailures:  5,
				ResetSeconds: 60,
			},
		},
		Logging: LoggingConfig{
			Debug: false,
			Level: "info",
		},
		StatePath: ".clariond",
	}
}

// Load reads config from the given YAML file. A missing file yields the
// defaults. Individual invalid values are reset to their defaults rather
// than failing the load; Normalize reports what was corrected.
func Load(path string) (*Config, []string, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyEnvOverrides()
	corrected := cfg.Normalize()
	return cfg, corrected, nil
}

// ApplyEnvOverrides applies CLARIOND_* environment variables on top of the
// loaded values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CLARIOND_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Enabled = b
		}
	}
	if v := os.Getenv("CLARIOND_MODE"); v != "" {
		c.DefaultMode = types.Mode(v)
	}
	if v := os.Getenv("CLARIOND_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRounds = n
		}
	}
	if v := os.Getenv("CLARIOND_STATE_PATH"); v != "" {
		c.StatePath = v
	}
}

// Normalize validates the config in place, resetting any invalid field to
// its default. Returns a description of each correction so the caller can
// log them; invalid config never crashes the service.
func (c *Config) Normalize() []string {
	def := DefaultConfig()
	var corrected []string

	if !c.DefaultMode.Valid() {
		corrected = append(corrected, fmt.Sprintf("default_mode %q invalid, using %q", c.DefaultMode, def.DefaultMode))
		c.DefaultMode = def.DefaultMode
	}
	if c.MaxRounds < 0 {
		corrected = append(corrected, fmt.Sprintf("max_rounds %d negative, using %d", c.MaxRounds, def.MaxRounds))
		c.MaxRounds = def.MaxRounds
	}
	if c.Thresholds.AskClarify < 0 || c.Thresholds.AskClarify > 1 {
		corrected = append(corrected, fmt.Sprintf("ask_clarify %.2f out of [0,1], using %.2f", c.Thresholds.AskClarify, def.Thresholds.AskClarify))
		c.Thresholds.AskClarify = def.Thresholds.AskClarify
	}
	if c.Thresholds.Proceed < 0 || c.Thresholds.Proceed > 1 {
		corrected = append(corrected, fmt.Sprintf("proceed %.2f out of [0,1], using %.2f", c.Thresholds.Proceed, def.Thresholds.Proceed))
		c.Thresholds.Proceed = def.Thresholds.Proceed
	}
	if c.Thresholds.AskClarify >= c.Thresholds.Proceed {
		corrected = append(corrected, fmt.Sprintf("thresholds inverted (%.2f >= %.2f), using defaults", c.Thresholds.AskClarify, c.Thresholds.Proceed))
		c.Thresholds = def.Thresholds
	}
	if c.Learning.Decay <= 0 || c.Learning.Decay > 1 {
		corrected = append(corrected, fmt.Sprintf("learning.decay %.2f out of (0,1], using %.2f", c.Learning.Decay, def.Learning.Decay))
		c.Learning.Decay = def.Learning.Decay
	}
	if c.Learning.MinSamplesToApply < 1 {
		corrected = append(corrected, fmt.Sprintf("learning.min_samples_to_apply %d < 1, using %d", c.Learning.MinSamplesToApply, def.Learning.MinSamplesToApply))
		c.Learning.MinSamplesToApply = def.Learning.MinSamplesToApply
	}
	if c.Safety.CircuitBreaker.MaxFailures < 1 {
		corrected = append(corrected, fmt.Sprintf("circuit_breaker.max_failures %d < 1, using %d", c.Safety.CircuitBreaker.MaxFailures, def.Safety.CircuitBreaker.MaxFailures))
		c.Safety.CircuitBreaker.MaxFailures = def.Safety.CircuitBreaker.MaxFailures
	}
	if c.Safety.CircuitBreaker.ResetSeconds < 1 {
		corrected = append(corrected, fmt.Sprintf("circuit_breaker.reset_seconds %d < 1, using %d", c.Safety.CircuitBreaker.ResetSeconds, def.Safety.CircuitBreaker.ResetSeconds))
		c.Safety.CircuitBreaker.ResetSeconds = def.Safety.CircuitBreaker.ResetSeconds
	}
	if c.StatePath == "" {
		c.StatePath = def.StatePath
	}

	return corrected
}
