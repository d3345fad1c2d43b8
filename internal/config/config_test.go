package config

import (
	"os"
	"path/filepath"
	"testing"

	"clariond/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, types.ModeCareful, cfg.DefaultMode)
	assert.Equal(t, 2, cfg.MaxRounds)
	assert.Equal(t, 0.25, cfg.Thresholds.AskClarify)
	assert.Equal(t, 0.80, cfg.Thresholds.Proceed)
	assert.True(t, cfg.Learning.Enabled)
	assert.Equal(t, 3, cfg.Learning.MinSamplesToApply)
	assert.Equal(t, 0.90, cfg.Learning.Decay)
	assert.Equal(t, 5, cfg.Safety.CircuitBreaker.MaxFailures)
	assert.Equal(t, 60, cfg.Safety.CircuitBreaker.ResetSeconds)
	assert.Empty(t, cfg.Normalize(), "defaults must pass validation untouched")
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, corrected, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, corrected)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clariond.yaml")
	data := `
enabled: true
default_mode: quick
max_rounds: 1
confidence_thresholds:
  ask_clarify: 0.30
  proceed: 0.70
learning:
  enabled: false
  min_samples_to_apply: 5
  decay: 0.80
safety:
  circuit_breaker:
    max_failures: 3
    reset_seconds: 120
state_path: /var/lib/clariond
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, corrected, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, corrected)

	assert.Equal(t, types.ModeQuick, cfg.DefaultMode)
	assert.Equal(t, 1, cfg.MaxRounds)
	assert.Equal(t, 0.30, cfg.Thresholds.AskClarify)
	assert.Equal(t, 0.70, cfg.Thresholds.Proceed)
	assert.False(t, cfg.Learning.Enabled)
	assert.Equal(t, 5, cfg.Learning.MinSamplesToApply)
	assert.Equal(t, 0.80, cfg.Learning.Decay)
	assert.Equal(t, 3, cfg.Safety.CircuitBreaker.MaxFailures)
	assert.Equal(t, 120, cfg.Safety.CircuitBreaker.ResetSeconds)
	assert.Equal(t, "/var/lib/clariond", cfg.StatePath)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clariond.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_rounds: 3\n"), 0644))

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxRounds)
	assert.Equal(t, 0.25, cfg.Thresholds.AskClarify, "unset fields keep defaults")
	assert.True(t, cfg.Learning.Enabled)
}

func TestLoadMalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clariond.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_rounds: [not a number\n"), 0644))

	_, _, err := Load(path)
	require.Error(t, err)
}

func TestNormalizeCorrectsInvalidValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultMode = "turbo"
	cfg.MaxRounds = -1
	cfg.Thresholds.AskClarify = 0.90 // inverted against proceed 0.80
	cfg.Learning.Decay = -0.5
	cfg.Learning.MinSamplesToApply = 0
	cfg.Safety.CircuitBreaker.MaxFailures = 0
	cfg.Safety.CircuitBreaker.ResetSeconds = -10

	corrected := cfg.Normalize()
	assert.Len(t, corrected, 7)

	def := DefaultConfig()
	assert.Equal(t, def.DefaultMode, cfg.DefaultMode)
	assert.Equal(t, def.MaxRounds, cfg.MaxRounds)
	assert.Equal(t, def.Thresholds, cfg.Thresholds)
	assert.Equal(t, def.Learning.Decay, cfg.Learning.Decay)
	assert.Equal(t, def.Learning.MinSamplesToApply, cfg.Learning.MinSamplesToApply)
	assert.Equal(t, def.Safety.CircuitBreaker, cfg.Safety.CircuitBreaker)
}

func TestNormalizeRejectsOutOfRangeThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thresholds.AskClarify = -0.1
	cfg.Thresholds.Proceed = 1.5

	corrected := cfg.Normalize()
	assert.NotEmpty(t, corrected)
	assert.Equal(t, DefaultConfig().Thresholds, cfg.Thresholds)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CLARIOND_ENABLED", "false")
	t.Setenv("CLARIOND_MODE", "quick")
	t.Setenv("CLARIOND_MAX_ROUNDS", "4")
	t.Setenv("CLARIOND_STATE_PATH", "/tmp/clariond-test")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, types.ModeQuick, cfg.DefaultMode)
	assert.Equal(t, 4, cfg.MaxRounds)
	assert.Equal(t, "/tmp/clariond-test", cfg.StatePath)
}

func TestEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv("CLARIOND_ENABLED", "banana")
	t.Setenv("CLARIOND_MAX_ROUNDS", "lots")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 2, cfg.MaxRounds)
}
