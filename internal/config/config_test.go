package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Aidin1998/bundleprep/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
log_level: debug
bundles: 2
output_key: prepared
store:
  path: /tmp/bundles
  in_memory: false
pipeline:
  - strategy_name: CreateSequenceWindows
    param_config:
      sequence_length: 3
      X_features: [open, high]
      y_features: [close+1]
  - strategy_name: ScaleByFeatureSets
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundleprep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2, cfg.Bundles)
	assert.Equal(t, "prepared", cfg.OutputKey)
	assert.Equal(t, "/tmp/bundles", cfg.Store.Path)
	assert.False(t, cfg.Store.InMemory)
	assert.False(t, cfg.Store.Memory())
	assert.False(t, cfg.Tracing.Enabled)

	require.Len(t, cfg.Pipeline, 2)
	params := cfg.Pipeline[0].ParamConfig
	assert.Contains(t, params, "X_features")
	assert.Equal(t, 3, params["sequence_length"])

	reqs := cfg.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "ScaleByFeatureSets", reqs[1].StrategyName)
	assert.NotNil(t, reqs[1].ParamConfig)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BUNDLEPREP_LOG_LEVEL", "warn")
	t.Setenv("BUNDLEPREP_TRACING_ENABLED", "true")
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "pipeline:\n  - strategy_name: SplitBundleDate\n"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.Bundles)
	assert.False(t, cfg.Store.InMemory)
	assert.True(t, cfg.Store.Memory())
}

func TestLoadStorePathOnly(t *testing.T) {
	cfg, err := Load(writeConfig(t, "store:\n  path: /tmp/bundles\npipeline:\n  - strategy_name: A\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/bundles", cfg.Store.Path)
	assert.False(t, cfg.Store.Memory())

	assert.True(t, StoreConfig{Path: "/tmp/bundles", InMemory: true}.Memory())
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"no pipeline", "bundles: 1\n", "Pipeline"},
		{"no strategy name", "pipeline:\n  - param_config: {}\n", "StrategyName"},
		{"zero bundles", "bundles: 0\npipeline:\n  - strategy_name: A\n", "Bundles"},
		{"bad level", "log_level: loud\npipeline:\n  - strategy_name: A\n", "LogLevel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.Configuration))
			assert.Equal(t, tt.field, errors.FieldOf(err))
		})
	}

	_, err := Load("")
	assert.True(t, errors.Is(err, errors.Configuration))
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
