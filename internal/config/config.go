// Package config provides Viper-based configuration for the session daemon and CLI.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harrylevesque/firenet/internal/utils"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config represents the complete configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Secure    SecureConfig    `mapstructure:"secure"`
	Push      PushConfig      `mapstructure:"push"`
	Control   ControlConfig   `mapstructure:"control"`
	Transport TransportConfig `mapstructure:"transport"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig identifies the installed app
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Platform    string `mapstructure:"platform"`
	DeviceModel string `mapstructure:"device_model"`
}

// RemoteConfig lists the service domains in fallback order
type RemoteConfig struct {
	Domains        []string      `mapstructure:"domains"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	CADir          string        `mapstructure:"ca_dir"`
}

// SyncConfig contains status refresh timing
type SyncConfig struct {
	Deadline              time.Duration `mapstructure:"deadline"`
	RefreshInterval       time.Duration `mapstructure:"refresh_interval"`
	KeepAliveInterval     time.Duration `mapstructure:"keepalive_interval"`
	ManualRefreshInterval time.Duration `mapstructure:"manual_refresh_interval"`
}

// StorageConfig selects the prefs backend
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisDB     int    `mapstructure:"redis_db"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

// SecureConfig locates the master key for the encrypted state
type SecureConfig struct {
	MasterKeyFile string `mapstructure:"master_key_file"`
	GenerateKey   bool   `mapstructure:"generate_key"`
}

// PushConfig controls the push channel listener
type PushConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Path           string        `mapstructure:"path"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// ControlConfig contains the local control API settings
type ControlConfig struct {
	Listen string `mapstructure:"listen"`
}

// TransportConfig describes how to stop the VPN transport
type TransportConfig struct {
	StopCommand []string `mapstructure:"stop_command"`
}

// WorkersConfig bounds background work
type WorkersConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment variables
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("firenet")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/firenet")
	}

	// FIRENET_REMOTE_DOMAINS, FIRENET_STORAGE_BACKEND, ...
	v.SetEnvPrefix("FIRENET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Firenet")
	v.SetDefault("app.version", "0.0.0")
	v.SetDefault("app.platform", "android")

	v.SetDefault("remote.domains", []string{})
	v.SetDefault("remote.attempt_timeout", 5*time.Second)

	v.SetDefault("sync.deadline", 60*time.Second)
	v.SetDefault("sync.refresh_interval", 5*time.Minute)
	v.SetDefault("sync.keepalive_interval", 2*time.Minute)
	v.SetDefault("sync.manual_refresh_interval", 10*time.Second)

	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.dir", utils.DefaultDataDir())
	v.SetDefault("storage.redis_addr", "127.0.0.1:6379")
	v.SetDefault("storage.redis_prefix", "firenet")

	v.SetDefault("secure.generate_key", true)

	v.SetDefault("push.enabled", false)
	v.SetDefault("push.path", "/api/push")
	v.SetDefault("push.reconnect_delay", 10*time.Second)

	v.SetDefault("control.listen", "127.0.0.1:8787")

	v.SetDefault("workers.max_concurrent", 4)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks the configuration and fills derived paths
func (c *Config) Validate() error {
	for i, d := range c.Remote.Domains {
		d = strings.TrimRight(strings.TrimSpace(d), "/")
		if !strings.HasPrefix(d, "https://") && !strings.HasPrefix(d, "http://") {
			return fmt.Errorf("invalid remote domain: %q (must start with http:// or https://)", d)
		}
		c.Remote.Domains[i] = d
	}
	if c.Remote.AttemptTimeout <= 0 {
		c.Remote.AttemptTimeout = 5 * time.Second
	}
	if c.Sync.Deadline <= 0 {
		c.Sync.Deadline = 60 * time.Second
	}
	if c.Sync.Deadline < c.Remote.AttemptTimeout {
		return fmt.Errorf("sync deadline %s is shorter than one attempt timeout %s", c.Sync.Deadline, c.Remote.AttemptTimeout)
	}
	if c.Workers.MaxConcurrent < 1 {
		c.Workers.MaxConcurrent = 1
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendFile, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory, file, sqlite, or redis)", c.Storage.Backend)
	}
	c.Storage.Dir = utils.ExpandHome(c.Storage.Dir)
	if c.Storage.Dir == "" {
		c.Storage.Dir = utils.DefaultDataDir()
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.Storage.Dir, "firenet.db")
	}
	c.Storage.SQLitePath = utils.ExpandHome(c.Storage.SQLitePath)
	if c.Secure.MasterKeyFile == "" {
		c.Secure.MasterKeyFile = filepath.Join(c.Storage.Dir, "master.key")
	}
	c.Secure.MasterKeyFile = utils.ExpandHome(c.Secure.MasterKeyFile)
	c.Remote.CADir = utils.ExpandHome(c.Remote.CADir)
	c.Logging.File = utils.ExpandHome(c.Logging.File)

	if c.Push.Path != "" && !strings.HasPrefix(c.Push.Path, "/") {
		c.Push.Path = "/" + c.Push.Path
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s (must be text or json)", c.Logging.Format)
	}
	return nil
}
