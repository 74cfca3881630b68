// Package config provides configuration loading and management for tourguide.
//
// Configuration is loaded using Viper, supporting YAML config files and environment
// variable overrides. The package provides sensible defaults that work out of the
// box: a YAML preference file in the working directory, the built-in tour
// catalogue, and the reference timing of the browser client.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//   - [StoreConfig] selects and locates the preference store
//   - [TourConfig] holds tour timing and catalogue settings
//
// Configuration priority (highest to lowest):
//  1. Environment variables (TOURGUIDE_ prefix, also read from a .env file)
//  2. Config file specified by TOURGUIDE_CONFIG_PATH
//  3. User config directory (platform-standard):
//     - Linux: ~/.config/tourguide/config.yaml
//     - macOS: ~/Library/Application Support/tourguide/config.yaml
//     - Windows: %APPDATA%\tourguide\config.yaml
//  4. ./config.yaml
//  5. [DefaultConfig] defaults
package config

import (
	"fmt"
	"time"
)

// Store drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Telemetry sinks.
const (
	SinkLog  = "log"
	SinkOTel = "otel"
	SinkNone = "none"
)

// Config represents the root configuration structure.
//
// This is the main configuration container loaded by [Loader] and used throughout
// the application. Use [DefaultConfig] to get sensible defaults.
type Config struct {
	// User identifies whose tour progress is read and written.
	User UserConfig `mapstructure:"user"`

	// Store selects the preference store backend.
	Store StoreConfig `mapstructure:"store"`

	// Tour contains tour timing and catalogue settings.
	Tour TourConfig `mapstructure:"tour"`

	// Persist controls preference write retries.
	Persist PersistConfig `mapstructure:"persist"`

	// Telemetry selects where tour events are sent.
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Log contains logger settings.
	Log LogConfig `mapstructure:"log"`
}

// UserConfig identifies the current user.
type UserConfig struct {
	// ID is the user id preferences are keyed by.
	// Can be overridden with TOURGUIDE_USER_ID.
	ID string `mapstructure:"id"`

	// Admin enables admin-only tour steps.
	Admin bool `mapstructure:"admin"`
}

// StoreConfig selects the preference store.
type StoreConfig struct {
	// Driver is one of "file", "sqlite" or "memory". Default: "file".
	Driver string `mapstructure:"driver"`

	// Path is the YAML file or SQLite database location. When empty the
	// file driver uses .tourguide/preferences.yaml and the sqlite driver
	// uses .tourguide/preferences.db.
	Path string `mapstructure:"path"`

	// Watch reloads progress when another process rewrites the file.
	// Only the file driver supports it.
	Watch bool `mapstructure:"watch"`
}

// TourConfig contains tour settings.
type TourConfig struct {
	// Manifest is an optional CSV or YAML step catalogue replacing the
	// built-in categories it names.
	Manifest string `mapstructure:"manifest"`

	// PollInterval is the element availability re-check interval.
	// Default: 500ms
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// PostPopoverDelay defers the onboarding post popover's auto-show.
	// Default: 150ms
	PostPopoverDelay time.Duration `mapstructure:"post_popover_delay"`

	// TelemetryTag overrides the telemetry base tag. When empty each
	// category derives its own.
	TelemetryTag string `mapstructure:"telemetry_tag"`
}

// PersistConfig controls preference writes.
type PersistConfig struct {
	// MaxRetries is how often a failed write is retried with exponential
	// backoff. Default: 0 (writes are attempted once).
	MaxRetries uint `mapstructure:"max_retries"`

	// InitialBackoff is the first retry delay. Default: 100ms
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

// TelemetryConfig selects the telemetry sink.
type TelemetryConfig struct {
	// Sink is one of "log", "otel" or "none". Default: "log".
	// The otel exporter endpoint is read from TOURGUIDE_OTEL_ENDPOINT.
	Sink string `mapstructure:"sink"`

	// ServiceName is the OpenTelemetry service name. Default: "tourguide".
	ServiceName string `mapstructure:"service_name"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	// Level is a zap level name. Default: "info"
	Level string `mapstructure:"level"`
}

// DefaultConfig returns a new [Config] with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		User: UserConfig{
			ID: "local",
		},
		Store: StoreConfig{
			Driver: DriverFile,
		},
		Tour: TourConfig{
			PollInterval:     500 * time.Millisecond,
			PostPopoverDelay: 150 * time.Millisecond,
		},
		Persist: PersistConfig{
			InitialBackoff: 100 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			Sink:        SinkLog,
			ServiceName: "tourguide",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.User.ID == "" {
		return fmt.Errorf("user.id is required")
	}
	switch c.Store.Driver {
	case DriverFile, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if c.Store.Watch && c.Store.Driver != DriverFile {
		return fmt.Errorf("store.watch requires the %q driver", DriverFile)
	}
	switch c.Telemetry.Sink {
	case SinkLog, SinkOTel, SinkNone:
	default:
		return fmt.Errorf("telemetry.sink: unknown sink %q", c.Telemetry.Sink)
	}
	if c.Tour.PollInterval <= 0 {
		return fmt.Errorf("tour.poll_interval must be positive")
	}
	if c.Tour.PostPopoverDelay < 0 {
		return fmt.Errorf("tour.post_popover_delay must not be negative")
	}
	return nil
}
