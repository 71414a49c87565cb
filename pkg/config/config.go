// Package config loads the MezzoFS server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (MEZZOFS_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mezzofs/mezzofs/internal/bytesize"
	"github.com/mezzofs/mezzofs/pkg/metastore"
)

// Config is the complete MezzoFS server configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures the metadata store (SQLite or PostgreSQL)
	Database metastore.Config `mapstructure:"database" yaml:"database"`

	// Redis configures the distributed queue and lock backend.
	// When disabled, in-process implementations are used (single node).
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`

	// Storage configures the two content tiers
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Sync tunes the NAS sync workers and the outbox sweeper
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`

	// Lock tunes the per-entity distributed lock
	Lock LockConfig `mapstructure:"lock" yaml:"lock"`

	// Upload tunes the multipart upload engine
	Upload UploadConfig `mapstructure:"upload" yaml:"upload"`

	// Admission caps concurrent multipart uploads
	Admission AdmissionConfig `mapstructure:"admission" yaml:"admission"`

	// Trash controls retention of trashed entities
	Trash TrashConfig `mapstructure:"trash" yaml:"trash"`

	// Health tunes the NAS health probe
	Health HealthConfig `mapstructure:"health" yaml:"health"`

	// API configures the HTTP server
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// RedisConfig configures the Redis-backed queue and lock.
type RedisConfig struct {
	// Enabled switches from the in-process queue/lock to Redis.
	// Required for multi-node deployments.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Addr is the Redis server address (host:port)
	Addr string `mapstructure:"addr" yaml:"addr"`

	// Password authenticates against Redis (optional)
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// DB is the Redis logical database number
	DB int `mapstructure:"db" yaml:"db"`
}

// StorageConfig configures the content tiers.
type StorageConfig struct {
	// NASPath is the NAS mount point (required). All durable content
	// lives under this directory.
	NASPath string `mapstructure:"nas_path" validate:"required" yaml:"nas_path"`

	// CachePath is the local fast tier directory (required). Fresh
	// ingests and multipart parts are staged here.
	CachePath string `mapstructure:"cache_path" validate:"required" yaml:"cache_path"`
}

// SyncConfig tunes the NAS sync workers.
type SyncConfig struct {
	// Concurrency is the worker count per stream.
	// Default: 5
	Concurrency int `mapstructure:"concurrency" validate:"omitempty,min=1" yaml:"concurrency"`

	// MaxAttempts is the broker delivery cap per job.
	// Default: 3
	MaxAttempts int `mapstructure:"max_attempts" validate:"omitempty,min=1" yaml:"max_attempts"`

	// Backoff is the delay between redeliveries.
	// Default: 3s
	Backoff time.Duration `mapstructure:"backoff" yaml:"backoff"`

	// SweepInterval is how often the outbox sweeper scans for stale
	// PENDING events. Default: 30s
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// SweepMinAge is how long an event must sit PENDING before the
	// sweeper re-drives it. Default: 15s
	SweepMinAge time.Duration `mapstructure:"sweep_min_age" yaml:"sweep_min_age"`
}

// LockConfig tunes the per-entity distributed lock.
type LockConfig struct {
	// TTL is the lease duration. Default: 60s
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`

	// WaitTimeout bounds acquisition wait. Default: 30s
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`

	// RenewInterval is the auto-renew period while held. Default: 25s
	RenewInterval time.Duration `mapstructure:"renew_interval" yaml:"renew_interval"`
}

// UploadConfig tunes the multipart upload engine.
type UploadConfig struct {
	// Threshold is the minimum total size routed to multipart.
	// Supports human-readable formats: "100MB", "1Gi".
	// Default: 100Mi
	Threshold bytesize.ByteSize `mapstructure:"threshold" yaml:"threshold,omitempty"`

	// PartSize is the fixed non-final part size. Default: 10Mi
	PartSize bytesize.ByteSize `mapstructure:"part_size" yaml:"part_size,omitempty"`

	// SessionTTL bounds how long a session may stay open. Default: 24h
	SessionTTL time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`

	// SweepInterval is how often expired sessions are collected.
	// Default: 1m
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// AdmissionConfig caps concurrent multipart upload capacity.
type AdmissionConfig struct {
	// MaxActiveSessions caps concurrently open sessions. Default: 10
	MaxActiveSessions int `mapstructure:"max_active_sessions" validate:"omitempty,min=1" yaml:"max_active_sessions"`

	// MaxTotalUploadBytes caps the declared bytes of open sessions.
	// Default: 10Gi
	MaxTotalUploadBytes bytesize.ByteSize `mapstructure:"max_total_upload_bytes" yaml:"max_total_upload_bytes,omitempty"`

	// ClaimTTL is how long a promoted ticket stays claimable.
	// Default: 5m
	ClaimTTL time.Duration `mapstructure:"claim_ttl" yaml:"claim_ttl"`
}

// TrashConfig controls trash retention.
type TrashConfig struct {
	// Retention is how long trashed entities are kept before they are
	// eligible for purge. Default: 720h (30 days)
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`
}

// HealthConfig tunes the NAS health probe.
type HealthConfig struct {
	// ProbeInterval is the period between NAS probes. Default: 15s
	ProbeInterval time.Duration `mapstructure:"probe_interval" yaml:"probe_interval"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	// Host is the listen address. Default: 0.0.0.0
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the listen port. Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the scrape endpoint. Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !configFileFound {
		cfg := GetDefaultConfig()
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file
// is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  mezzofs init\n\n"+
				"Or specify a custom config file:\n"+
				"  mezzofs <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  mezzofs init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the database section may carry credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variables and config file search.
func setupViper(v *viper.Viper, configPath string) {
	// Example: MEZZOFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("MEZZOFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is acceptable; defaults apply.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize,
// so config files can use "100MB", "1Gi" or plain byte counts.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s", "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME or
// ~/.config, falling back to the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "mezzofs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mezzofs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
