// Package config loads run configuration for sweeps and elimination.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/nodesweep/internal/eliminate"
	"github.com/banshee-data/nodesweep/internal/progress"
	"github.com/banshee-data/nodesweep/internal/render"
	"github.com/banshee-data/nodesweep/internal/sweep"
)

// MaxFileSize bounds configuration files.
const MaxFileSize = 1 * 1024 * 1024 // 1MB

// RunConfig is the configuration of a render or elimination run. Every
// field is optional; the Get* methods supply defaults for unset fields, so
// partial configs are safe.
type RunConfig struct {
	// Render params
	Samples       *int    `json:"samples,omitempty" yaml:"samples,omitempty"`
	Strategy      *string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	OutputDir     *string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Extension     *string `json:"extension,omitempty" yaml:"extension,omitempty"`
	Width         *int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height        *int    `json:"height,omitempty" yaml:"height,omitempty"`
	Seed          *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	Retries       *int    `json:"retries,omitempty" yaml:"retries,omitempty"`
	RetryDelay    *string `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"` // duration string like "2s"
	RenderCommand *string `json:"render_command,omitempty" yaml:"render_command,omitempty"`
	RenderAddress *string `json:"render_address,omitempty" yaml:"render_address,omitempty"`
	KeepSnapshots *bool   `json:"keep_snapshots,omitempty" yaml:"keep_snapshots,omitempty"`

	// Elimination params
	Renders            *int     `json:"renders,omitempty" yaml:"renders,omitempty"`
	Loops              *int     `json:"loops,omitempty" yaml:"loops,omitempty"`
	Components         *int     `json:"components,omitempty" yaml:"components,omitempty"`
	NormThresh         *float64 `json:"norm_thresh,omitempty" yaml:"norm_thresh,omitempty"`
	ExplainedVarThresh *float64 `json:"explained_var_thresh,omitempty" yaml:"explained_var_thresh,omitempty"`
	ScratchDir         *string  `json:"scratch_dir,omitempty" yaml:"scratch_dir,omitempty"`
	MaxImageDim        *int     `json:"max_image_dim,omitempty" yaml:"max_image_dim,omitempty"`

	// Outputs
	DBPath     *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	MQTTBroker *string `json:"mqtt_broker,omitempty" yaml:"mqtt_broker,omitempty"`
	MQTTTopic  *string `json:"mqtt_topic,omitempty" yaml:"mqtt_topic,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }
func ptrBool(v bool) *bool          { return &v }

// DefaultRunConfig returns a RunConfig with every defaulted field set, for
// writing out as a starting point.
func DefaultRunConfig() *RunConfig {
	c := EmptyRunConfig()
	o := c.EliminateOptions()
	return &RunConfig{
		Samples:            ptrInt(c.GetSamples()),
		Strategy:           ptrString(string(c.GetStrategy())),
		Extension:          ptrString(c.GetExtension()),
		Width:              ptrInt(c.GetWidth()),
		Height:             ptrInt(c.GetHeight()),
		Seed:               ptrUint64(c.GetSeed()),
		Retries:            ptrInt(c.GetRetries()),
		RetryDelay:         ptrString(c.GetRetryDelay().String()),
		KeepSnapshots:      ptrBool(c.GetKeepSnapshots()),
		Renders:            ptrInt(o.Renders),
		Loops:              ptrInt(o.Loops),
		Components:         ptrInt(o.Components),
		NormThresh:         ptrFloat64(o.NormThresh),
		ExplainedVarThresh: ptrFloat64(o.ExplainedVarThresh),
		ScratchDir:         ptrString(o.ScratchDir),
		MaxImageDim:        ptrInt(o.MaxImageDim),
		MQTTTopic:          ptrString(c.GetMQTTTopic()),
	}
}

// EmptyRunConfig returns a RunConfig with all fields set to nil.
func EmptyRunConfig() *RunConfig {
	return &RunConfig{}
}

// LoadRunConfig loads a RunConfig from a .json, .yaml or .yml file under
// MaxFileSize. The result is validated.
func LoadRunConfig(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > MaxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRunConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *RunConfig) Validate() error {
	if c.Samples != nil && *c.Samples < 1 {
		return fmt.Errorf("samples must be at least 1, got %d", *c.Samples)
	}
	if c.Strategy != nil {
		if _, err := sweep.ParseStrategy(*c.Strategy); err != nil {
			return err
		}
	}
	if c.Width != nil && *c.Width < 1 {
		return fmt.Errorf("width must be at least 1, got %d", *c.Width)
	}
	if c.Height != nil && *c.Height < 1 {
		return fmt.Errorf("height must be at least 1, got %d", *c.Height)
	}
	if c.Retries != nil && *c.Retries < 0 {
		return fmt.Errorf("retries must be non-negative, got %d", *c.Retries)
	}
	if c.RetryDelay != nil && *c.RetryDelay != "" {
		if _, err := time.ParseDuration(*c.RetryDelay); err != nil {
			return fmt.Errorf("invalid retry_delay '%s': %w", *c.RetryDelay, err)
		}
	}
	if c.RenderCommand != nil && c.RenderAddress != nil && *c.RenderCommand != "" && *c.RenderAddress != "" {
		return fmt.Errorf("render_command and render_address are mutually exclusive")
	}
	if err := c.EliminateOptions().Validate(); err != nil {
		return err
	}
	return nil
}

// GetSamples returns the samples value or the default.
func (c *RunConfig) GetSamples() int {
	if c.Samples == nil {
		return 5
	}
	return *c.Samples
}

// GetStrategy returns the parsed strategy or the default.
func (c *RunConfig) GetStrategy() sweep.Strategy {
	if c.Strategy == nil {
		return sweep.StrategyConsecutive
	}
	s, err := sweep.ParseStrategy(*c.Strategy)
	if err != nil {
		return sweep.StrategyConsecutive // default on parse error
	}
	return s
}

// GetOutputDir returns the output_dir value, empty when unset.
func (c *RunConfig) GetOutputDir() string {
	if c.OutputDir == nil {
		return ""
	}
	return *c.OutputDir
}

// GetExtension returns the extension value or the default.
func (c *RunConfig) GetExtension() string {
	if c.Extension == nil || *c.Extension == "" {
		return ".png"
	}
	return *c.Extension
}

// GetWidth returns the width value or the default.
func (c *RunConfig) GetWidth() int {
	if c.Width == nil {
		return 128
	}
	return *c.Width
}

// GetHeight returns the height value or the default.
func (c *RunConfig) GetHeight() int {
	if c.Height == nil {
		return 128
	}
	return *c.Height
}

// GetSeed returns the seed value; zero seeds from the clock.
func (c *RunConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetRetries returns the retries value or the default.
func (c *RunConfig) GetRetries() int {
	if c.Retries == nil {
		return 0
	}
	return *c.Retries
}

// GetRetryDelay parses and returns the RetryDelay as a time.Duration.
func (c *RunConfig) GetRetryDelay() time.Duration {
	if c.RetryDelay == nil || *c.RetryDelay == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.RetryDelay)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetRenderCommand returns the render_command value, empty when unset.
func (c *RunConfig) GetRenderCommand() string {
	if c.RenderCommand == nil {
		return ""
	}
	return *c.RenderCommand
}

// GetRenderAddress returns the render_address value, empty when unset.
func (c *RunConfig) GetRenderAddress() string {
	if c.RenderAddress == nil {
		return ""
	}
	return *c.RenderAddress
}

// GetKeepSnapshots returns the keep_snapshots value or the default.
func (c *RunConfig) GetKeepSnapshots() bool {
	if c.KeepSnapshots == nil {
		return false
	}
	return *c.KeepSnapshots
}

// GetDBPath returns the db_path value, empty when unset.
func (c *RunConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetMQTTBroker returns the mqtt_broker value, empty when unset.
func (c *RunConfig) GetMQTTBroker() string {
	if c.MQTTBroker == nil {
		return ""
	}
	return *c.MQTTBroker
}

// GetMQTTTopic returns the mqtt_topic value or the default.
func (c *RunConfig) GetMQTTTopic() string {
	if c.MQTTTopic == nil || *c.MQTTTopic == "" {
		return progress.DefaultTopic
	}
	return *c.MQTTTopic
}

// EliminateOptions returns the elimination options, defaulting every unset
// field.
func (c *RunConfig) EliminateOptions() eliminate.Options {
	o := eliminate.DefaultOptions()
	if c.Renders != nil {
		o.Renders = *c.Renders
	}
	if c.Loops != nil {
		o.Loops = *c.Loops
	}
	if c.Components != nil {
		o.Components = *c.Components
	}
	if c.NormThresh != nil {
		o.NormThresh = *c.NormThresh
	}
	if c.ExplainedVarThresh != nil {
		o.ExplainedVarThresh = *c.ExplainedVarThresh
	}
	if c.ScratchDir != nil && *c.ScratchDir != "" {
		o.ScratchDir = *c.ScratchDir
	}
	if c.MaxImageDim != nil {
		o.MaxImageDim = *c.MaxImageDim
	}
	return o
}

// RunOptions returns the render driver options.
func (c *RunConfig) RunOptions() render.RunOptions {
	return render.RunOptions{
		OutputDir:  c.GetOutputDir(),
		Extension:  c.GetExtension(),
		Samples:    c.GetSamples(),
		Strategy:   c.GetStrategy(),
		Seed:       c.GetSeed(),
		Retries:    c.GetRetries(),
		RetryDelay: c.GetRetryDelay(),
	}
}
