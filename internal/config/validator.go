package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills defaults
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5 // default
	}

	// Validate pipeline
	if cfg.Pipeline.Launch == "" {
		return fmt.Errorf("pipeline.launch is required")
	}

	// Validate handoff config
	if cfg.Handoff.Capacity < 0 {
		return fmt.Errorf("handoff.capacity must be >= 0")
	}
	switch cfg.Handoff.Policy {
	case "", "block", "drop-oldest":
	default:
		return fmt.Errorf("handoff.policy must be 'block' or 'drop-oldest', got %q", cfg.Handoff.Policy)
	}
	if cfg.Handoff.BlockTimeoutMs < 0 {
		return fmt.Errorf("handoff.block_timeout_ms must be >= 0")
	}

	// Validate emitter
	if cfg.Emitter.URI == "" {
		cfg.Emitter.URI = "console:"
	}

	// Validate sources
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]bool, len(cfg.Sources))
	for i, src := range cfg.Sources {
		if src.ID == "" {
			return fmt.Errorf("source %d: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("source %q: duplicate id", src.ID)
		}
		seen[src.ID] = true

		if src.Observer.Element == "" {
			return fmt.Errorf("source %q: observer.element is required", src.ID)
		}
		switch src.Observer.Side {
		case "", "downstream", "src", "upstream", "sink":
		default:
			return fmt.Errorf("source %q: unknown observer.side %q", src.ID, src.Observer.Side)
		}
		if src.Extractor == "" {
			return fmt.Errorf("source %q: extractor is required", src.ID)
		}
	}

	// Validate recording config only when a source asks for it
	if cfg.RecordingEnabled() {
		if err := validateRecording(&cfg.Recording); err != nil {
			return fmt.Errorf("recording validation failed: %w", err)
		}
	}

	return nil
}

// validateRecording enforces the window/retention relationship. The ring
// must hold at least one full session (2W) or finalization would snapshot
// frames that already aged out.
func validateRecording(rec *RecordingConfig) error {
	if rec.WindowS <= 0 {
		return fmt.Errorf("window_s must be > 0")
	}

	if rec.PollS <= 0 {
		rec.PollS = 1 // default
	}

	if rec.RetentionS == 0 {
		rec.RetentionS = 2 * rec.WindowS // minimum viable horizon
	}
	if rec.RetentionS < 2*rec.WindowS {
		return fmt.Errorf("retention_s (%g) must be >= 2*window_s (%g)",
			rec.RetentionS, 2*rec.WindowS)
	}

	if rec.ClipDir == "" {
		rec.ClipDir = "clips"
	}
	if rec.ClipTimeout < 0 {
		return fmt.Errorf("clip_timeout_s must be >= 0")
	}

	if rec.Video.Width <= 0 || rec.Video.Height <= 0 {
		return fmt.Errorf("video.width and video.height are required when recording is enabled")
	}
	if rec.Video.FPS <= 0 {
		rec.Video.FPS = 30 // default
	}
	if rec.Video.Format == "" {
		rec.Video.Format = "I420"
	}

	return nil
}
