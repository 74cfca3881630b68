package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for every setting.
const envPrefix = "TOURGUIDE"

// Loader loads [Config] with Viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a Loader with defaults and environment bindings
// registered.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	// TOURGUIDE_USER would shadow the whole user section under AutomaticEnv,
	// so the id is only read from TOURGUIDE_USER_ID.
	_ = v.BindEnv("user.id", envPrefix+"_USER_ID")
	_ = v.BindEnv("user.admin", envPrefix+"_USER_ADMIN", envPrefix+"_ADMIN")

	return &Loader{v: v}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("user.id", d.User.ID)
	v.SetDefault("user.admin", d.User.Admin)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.watch", d.Store.Watch)
	v.SetDefault("tour.manifest", d.Tour.Manifest)
	v.SetDefault("tour.poll_interval", d.Tour.PollInterval)
	v.SetDefault("tour.post_popover_delay", d.Tour.PostPopoverDelay)
	v.SetDefault("tour.telemetry_tag", d.Tour.TelemetryTag)
	v.SetDefault("persist.max_retries", d.Persist.MaxRetries)
	v.SetDefault("persist.initial_backoff", d.Persist.InitialBackoff)
	v.SetDefault("telemetry.sink", d.Telemetry.Sink)
	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
	v.SetDefault("log.level", d.Log.Level)
}

// Load resolves and loads the configuration.
//
// A .env file in the working directory is loaded into the environment first
// (existing variables win). The config file is the first that exists of:
// TOURGUIDE_CONFIG_PATH, the user config directory, ./config.yaml. With no
// file, defaults plus environment overrides are returned.
func (l *Loader) Load() (*Config, error) {
	loadDotEnv()

	if path := os.Getenv(envPrefix + "_CONFIG_PATH"); path != "" {
		return l.LoadFromFile(path)
	}

	candidates := []string{"config.yaml"}
	if p, err := DefaultConfigPath(); err == nil {
		candidates = append([]string{p}, candidates...)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return l.LoadFromFile(path)
		}
	}

	return l.unmarshal()
}

// LoadFromFile loads configuration from a specific file. The format follows
// the extension (YAML or JSON).
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad() *Config {
	cfg, err := NewLoader().Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// ConfigDir returns the platform config directory for tourguide.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "tourguide"), nil
}

// DefaultConfigPath returns the user-level config file path.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the user config directory if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: ignoring .env: %v\n", err)
	}
}
