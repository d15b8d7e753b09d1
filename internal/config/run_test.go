package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/nodesweep/internal/eliminate"
	"github.com/banshee-data/nodesweep/internal/progress"
	"github.com/banshee-data/nodesweep/internal/sweep"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyRunConfig_Defaults(t *testing.T) {
	cfg := EmptyRunConfig()
	assert.Equal(t, 5, cfg.GetSamples())
	assert.Equal(t, sweep.StrategyConsecutive, cfg.GetStrategy())
	assert.Equal(t, ".png", cfg.GetExtension())
	assert.Equal(t, 128, cfg.GetWidth())
	assert.Equal(t, 128, cfg.GetHeight())
	assert.Zero(t, cfg.GetSeed())
	assert.Zero(t, cfg.GetRetries())
	assert.Equal(t, time.Second, cfg.GetRetryDelay())
	assert.Equal(t, progress.DefaultTopic, cfg.GetMQTTTopic())
	assert.Empty(t, cfg.GetOutputDir())
	assert.Empty(t, cfg.GetDBPath())
	assert.Equal(t, eliminate.DefaultOptions(), cfg.EliminateOptions())
	assert.NoError(t, cfg.Validate())
}

func TestDefaultRunConfig(t *testing.T) {
	cfg := DefaultRunConfig()
	require.NotNil(t, cfg.Samples)
	assert.Equal(t, 5, *cfg.Samples)
	require.NotNil(t, cfg.NormThresh)
	assert.Equal(t, 1.0, *cfg.NormThresh)
	assert.Equal(t, "1s", *cfg.RetryDelay)
	assert.NoError(t, cfg.Validate())

	// Written out and read back, the defaults are unchanged.
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	back, err := LoadRunConfig(writeConfig(t, "defaults.yaml", string(data)))
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestLoadRunConfig_JSON(t *testing.T) {
	path := writeConfig(t, "run.json", `{
  "samples": 12,
  "strategy": "1",
  "output_dir": "/tmp/renders",
  "seed": 42,
  "retry_delay": "250ms",
  "norm_thresh": 0.5
}`)
	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.GetSamples())
	assert.Equal(t, sweep.StrategyRandom, cfg.GetStrategy())
	assert.Equal(t, uint64(42), cfg.GetSeed())
	assert.Equal(t, 250*time.Millisecond, cfg.GetRetryDelay())
	assert.Equal(t, 0.5, cfg.EliminateOptions().NormThresh)
	assert.Equal(t, 5, cfg.EliminateOptions().Renders, "unset fields keep defaults")

	opts := cfg.RunOptions()
	assert.Equal(t, "/tmp/renders", opts.OutputDir)
	assert.Equal(t, 12, opts.Samples)
	assert.Equal(t, sweep.StrategyRandom, opts.Strategy)
}

func TestLoadRunConfig_YAML(t *testing.T) {
	path := writeConfig(t, "run.yml", `
samples: 3
strategy: consecutive
width: 64
height: 48
renders: 7
components: 2
scratch_dir: /tmp/probes
mqtt_broker: tcp://localhost:1883
`)
	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.GetSamples())
	assert.Equal(t, 64, cfg.GetWidth())
	assert.Equal(t, 48, cfg.GetHeight())
	assert.Equal(t, "tcp://localhost:1883", cfg.GetMQTTBroker())

	o := cfg.EliminateOptions()
	assert.Equal(t, 7, o.Renders)
	assert.Equal(t, 2, o.Components)
	assert.Equal(t, "/tmp/probes", o.ScratchDir)
}

func TestLoadRunConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"extension", "run.toml", "samples = 1", "extension"},
		{"bad json", "run.json", "{", "parse config JSON"},
		{"bad yaml", "run.yaml", "samples: [", "parse config YAML"},
		{"zero samples", "run.json", `{"samples": 0}`, "samples must be at least 1"},
		{"strategy", "run.json", `{"strategy": "zigzag"}`, "unknown sampling strategy"},
		{"retry delay", "run.json", `{"retry_delay": "soon"}`, "invalid retry_delay"},
		{"components", "run.json", `{"renders": 3, "components": 4}`, "components must be in"},
		{"renderers", "run.json", `{"render_command": "blender", "render_address": "localhost:9000"}`, "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRunConfig(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadRunConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadRunConfig_TooLarge(t *testing.T) {
	body := `{"samples": 1, "output_dir": "` + strings.Repeat("x", MaxFileSize) + `"}`
	_, err := LoadRunConfig(writeConfig(t, "big.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}
