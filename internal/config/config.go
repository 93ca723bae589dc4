// Package config loads and validates the daemon's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete daemon configuration
type Config struct {
	InstanceID       string          `yaml:"instance_id"`
	ShutdownTimeoutS int             `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Pipeline         PipelineConfig  `yaml:"pipeline"`
	Handoff          HandoffConfig   `yaml:"handoff"`
	Emitter          EmitterConfig   `yaml:"emitter"`
	Recording        RecordingConfig `yaml:"recording"`
	Sources          []SourceConfig  `yaml:"sources"`
}

// PipelineConfig describes the externally defined media graph
type PipelineConfig struct {
	Launch string `yaml:"launch"` // gst-launch description of the graph
}

// HandoffConfig tunes the extraction-to-consumption queues
type HandoffConfig struct {
	Capacity       int    `yaml:"capacity"`         // queue bound per tap (default: 128)
	Policy         string `yaml:"policy"`           // block | drop-oldest
	BlockTimeoutMs int    `yaml:"block_timeout_ms"` // max streaming-thread wait under block policy
	SpoolPath      string `yaml:"spool_path"`       // durable fallback for undelivered records on shutdown
}

// EmitterConfig selects the record transport
type EmitterConfig struct {
	URI string `yaml:"uri"` // console: | file:///path | mqtt://host:port?stream=topic | redis://host:port?stream=key
}

// RecordingConfig tunes the rolling-window clip recorder
type RecordingConfig struct {
	WindowS     float64     `yaml:"window_s"`      // half-window W around each event
	PollS       float64     `yaml:"poll_s"`        // session finalization poll interval
	RetentionS  float64     `yaml:"retention_s"`   // ring horizon H, must be >= 2*window_s
	ClipDir     string      `yaml:"clip_dir"`      // output directory for finalized clips
	ClipTimeout int         `yaml:"clip_timeout_s"`
	Video       VideoConfig `yaml:"video"`
}

// VideoConfig describes the raw frames reaching the ring branches
type VideoConfig struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	FPS    float64 `yaml:"fps"`
	Format string  `yaml:"format"` // raw pixel format (default: I420)
}

// SourceConfig binds one observed stream: where to probe, what to extract,
// where to drain, and which tee feeds its recording ring
type SourceConfig struct {
	ID        string         `yaml:"id"`
	Observer  ObserverConfig `yaml:"observer"`
	Extractor string         `yaml:"extractor"` // registered extractor name
	Consumer  string         `yaml:"consumer"`  // registered consumer name, empty means the emitter
	RecordTee string         `yaml:"record_tee,omitempty"` // tee feeding this source's ring, empty disables recording
}

// ObserverConfig names the pad the buffer probe attaches to
type ObserverConfig struct {
	Element string `yaml:"element"`
	Side    string `yaml:"side"` // downstream (src pad) | upstream (sink pad)
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Window returns the half-window as a duration.
func (c RecordingConfig) Window() time.Duration {
	return time.Duration(c.WindowS * float64(time.Second))
}

// Poll returns the finalization poll interval as a duration.
func (c RecordingConfig) Poll() time.Duration {
	return time.Duration(c.PollS * float64(time.Second))
}

// Retention returns the ring horizon as a duration.
func (c RecordingConfig) Retention() time.Duration {
	return time.Duration(c.RetentionS * float64(time.Second))
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// RecordingEnabled reports whether any source feeds a recording ring.
func (c *Config) RecordingEnabled() bool {
	for _, src := range c.Sources {
		if src.RecordTee != "" {
			return true
		}
	}
	return false
}
