// Package config loads encryptic settings from a config file, ENCRYPTIC_*
// environment variables and defaults, in increasing order of precedence:
// defaults < file < environment < flags bound by the CLI.
//
// Example config.yaml:
//
//	backend: remote-storage
//	profile: default
//	remote-storage:
//	  url: https://storage.example.com/alice
//	  token: s3cret
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/vbgl/encryptic/internal/cloud"
)

// EnvPrefix is prepended to every environment variable, e.g.
// ENCRYPTIC_REMOTE_STORAGE_TOKEN for remote-storage.token.
const EnvPrefix = "ENCRYPTIC"

// Config is the resolved configuration.
type Config struct {
	Backend  string `mapstructure:"backend" yaml:"backend" toml:"backend"`
	Profile  string `mapstructure:"profile" yaml:"profile" toml:"profile"`
	Database string `mapstructure:"database" yaml:"database" toml:"database"`

	// Watch enables the folder watcher for the dropbox-like backend.
	Watch bool `mapstructure:"watch" yaml:"watch" toml:"watch"`

	// Overlap is "queue" or "skip"; see daemon.Overlap.
	Overlap string `mapstructure:"overlap" yaml:"overlap" toml:"overlap"`

	Log       LogConfig       `mapstructure:"log" yaml:"log" toml:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard" toml:"dashboard"`

	RemoteStorage map[string]any `mapstructure:"remote-storage" yaml:"remote-storage,omitempty" toml:"remote-storage,omitempty"`
	DropboxLike   map[string]any `mapstructure:"dropbox-like" yaml:"dropbox-like,omitempty" toml:"dropbox-like,omitempty"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-" toml:"-"`
}

// LogConfig selects the log destination.
type LogConfig struct {
	// File enables rotating file output when set.
	File       string `mapstructure:"file" yaml:"file,omitempty" toml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
}

// DashboardConfig configures the WebSocket dashboard of the daemon.
type DashboardConfig struct {
	// Port 0 disables the dashboard.
	Port int    `mapstructure:"port" yaml:"port" toml:"port"`
	Host string `mapstructure:"host" yaml:"host" toml:"host"`
}

// DefaultDir returns the directory holding config.yaml and the database.
func DefaultDir() string {
	if dir := os.Getenv(EnvPrefix + "_HOME"); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "encryptic")
	}
	return ".encryptic"
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Backend:  string(cloud.BackendRemoteStorage),
		Profile:  "default",
		Database: filepath.Join(DefaultDir(), "encryptic.db"),
		Overlap:  "queue",
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Dashboard: DashboardConfig{Host: "localhost"},
	}
}

// New returns a viper instance with defaults and environment binding. The
// CLI binds its flags on top of it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	d := Default()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("profile", d.Profile)
	v.SetDefault("database", d.Database)
	v.SetDefault("watch", d.Watch)
	v.SetDefault("overlap", d.Overlap)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("dashboard.host", d.Dashboard.Host)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Backend settings have no defaults, so the common ones are bound
	// explicitly to make them visible through the environment.
	for _, key := range []string{
		"remote-storage.url", "remote-storage.token", "remote-storage.module",
		"dropbox-like.root",
	} {
		_ = v.BindEnv(key)
	}

	return v
}

// Load reads path, or config.{yaml,toml} from DefaultDir when path is
// empty, into v and decodes the result. A missing default file is not an
// error; a missing explicit file is.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(DefaultDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that have a fixed set of values.
func (c *Config) Validate() error {
	if _, err := cloud.ParseBackend(c.Backend); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Profile == "" {
		return fmt.Errorf("invalid config: profile is required")
	}
	switch c.Overlap {
	case "", "queue", "skip":
	default:
		return fmt.Errorf("invalid config: overlap must be queue or skip (got %q)", c.Overlap)
	}
	return nil
}

// BackendName returns the parsed backend.
func (c *Config) BackendName() cloud.Backend {
	b, _ := cloud.ParseBackend(c.Backend)
	return b
}

// BackendSettings returns the settings of the selected backend.
func (c *Config) BackendSettings() cloud.Settings {
	var raw map[string]any
	switch c.BackendName() {
	case cloud.BackendDropbox:
		raw = c.DropboxLike
	default:
		raw = c.RemoteStorage
	}

	settings := make(cloud.Settings, len(raw))
	for k, v := range raw {
		settings[k] = v
	}
	return settings
}

// SetBackendSetting stores key in the selected backend's settings.
func (c *Config) SetBackendSetting(key string, value any) {
	switch c.BackendName() {
	case cloud.BackendDropbox:
		if c.DropboxLike == nil {
			c.DropboxLike = map[string]any{}
		}
		c.DropboxLike[key] = value
	default:
		if c.RemoteStorage == nil {
			c.RemoteStorage = map[string]any{}
		}
		c.RemoteStorage[key] = value
	}
}
