package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AMEND09/Razr/internal/orientation"
)

// TuningConfig holds the detector and session tuning parameters. Pointer
// fields so a partial JSON file only overrides what it names; the Get*
// methods supply defaults for everything else.
type TuningConfig struct {
	// Detector params
	SampleKind     *string  `json:"sample_kind,omitempty"` // "acceleration_z" or "tilt_degrees"
	EMAAlpha       *float64 `json:"ema_alpha,omitempty"`
	AccelEnter     *float64 `json:"accel_enter_threshold,omitempty"`
	AccelExit      *float64 `json:"accel_exit_threshold,omitempty"`
	TiltEnter      *float64 `json:"tilt_enter_degrees,omitempty"`
	TiltExit       *float64 `json:"tilt_exit_degrees,omitempty"`
	StableRequired *int     `json:"stable_required,omitempty"`
	SampleInterval *string  `json:"sample_interval,omitempty"` // duration string like "100ms"

	// Session params
	FlipPolicy       *string `json:"flip_policy,omitempty"` // "pause" or "finish"
	DailyGoalMinutes *int    `json:"daily_goal_minutes,omitempty"`
	Timezone         *string `json:"timezone,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted from
// the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid. Threshold and
// debounce validation is delegated to the detector config so the rules
// cannot drift apart.
func (c *TuningConfig) Validate() error {
	switch c.GetSampleKind() {
	case orientation.AccelerationZ, orientation.TiltDegrees:
	default:
		return fmt.Errorf("sample_kind must be %q or %q, got %q",
			orientation.AccelerationZ, orientation.TiltDegrees, c.GetSampleKind())
	}

	if c.SampleInterval != nil && *c.SampleInterval != "" {
		if _, err := time.ParseDuration(*c.SampleInterval); err != nil {
			return fmt.Errorf("invalid sample_interval '%s': %w", *c.SampleInterval, err)
		}
	}

	switch c.GetFlipPolicy() {
	case "pause", "finish":
	default:
		return fmt.Errorf("flip_policy must be \"pause\" or \"finish\", got %q", c.GetFlipPolicy())
	}

	if c.DailyGoalMinutes != nil && *c.DailyGoalMinutes < 0 {
		return fmt.Errorf("daily_goal_minutes must be non-negative, got %d", *c.DailyGoalMinutes)
	}

	if c.Timezone != nil && *c.Timezone != "" {
		if _, err := time.LoadLocation(*c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", *c.Timezone, err)
		}
	}

	return c.DetectorConfig().Validate()
}

// DetectorConfig assembles the orientation.Config for the configured sample
// kind, applying defaults for unset fields.
func (c *TuningConfig) DetectorConfig() orientation.Config {
	var cfg orientation.Config
	if c.GetSampleKind() == orientation.TiltDegrees {
		cfg = orientation.DefaultTiltConfig()
		if c.TiltEnter != nil {
			cfg.EnterThreshold = *c.TiltEnter
		}
		if c.TiltExit != nil {
			cfg.ExitThreshold = *c.TiltExit
		}
	} else {
		cfg = orientation.DefaultAccelConfig()
		if c.EMAAlpha != nil {
			cfg.EMAAlpha = *c.EMAAlpha
		}
		if c.AccelEnter != nil {
			cfg.EnterThreshold = *c.AccelEnter
		}
		if c.AccelExit != nil {
			cfg.ExitThreshold = *c.AccelExit
		}
	}
	cfg.SampleInterval = c.GetSampleInterval()
	if c.StableRequired != nil {
		cfg.StableRequired = *c.StableRequired
	}
	return cfg
}

// GetSampleKind returns the sample_kind value or the default.
func (c *TuningConfig) GetSampleKind() orientation.SampleKind {
	if c.SampleKind == nil || *c.SampleKind == "" {
		return orientation.AccelerationZ // default
	}
	return orientation.SampleKind(*c.SampleKind)
}

// GetSampleInterval parses and returns the SampleInterval as a time.Duration.
func (c *TuningConfig) GetSampleInterval() time.Duration {
	if c.SampleInterval == nil || *c.SampleInterval == "" {
		return 100 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.SampleInterval)
	if err != nil {
		return 100 * time.Millisecond // default on parse error
	}
	return d
}

// GetFlipPolicy returns the flip_policy value or the default.
func (c *TuningConfig) GetFlipPolicy() string {
	if c.FlipPolicy == nil || *c.FlipPolicy == "" {
		return "pause" // default
	}
	return *c.FlipPolicy
}

// GetDailyGoalMinutes returns the daily_goal_minutes value or the default.
func (c *TuningConfig) GetDailyGoalMinutes() int {
	if c.DailyGoalMinutes == nil {
		return 120
	}
	return *c.DailyGoalMinutes
}

// GetTimezone returns the timezone value or the default.
func (c *TuningConfig) GetTimezone() string {
	if c.Timezone == nil || *c.Timezone == "" {
		return "Local"
	}
	return *c.Timezone
}
