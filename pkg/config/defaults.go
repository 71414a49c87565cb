package config

import (
	"strings"
	"time"

	"github.com/mezzofs/mezzofs/internal/bytesize"
	"github.com/mezzofs/mezzofs/pkg/metastore"
)

// ApplyDefaults fills in unspecified fields. Zero values are replaced,
// explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	cfg.Database.ApplyDefaults()
	applyRedisDefaults(&cfg.Redis)
	applySyncDefaults(&cfg.Sync)
	applyLockDefaults(&cfg.Lock)
	applyUploadDefaults(&cfg.Upload)
	applyAdmissionDefaults(&cfg.Admission)
	if cfg.Trash.Retention == 0 {
		cfg.Trash.Retention = 30 * 24 * time.Hour
	}
	if cfg.Health.ProbeInterval == 0 {
		cfg.Health.ProbeInterval = 15 * time.Second
	}
	applyAPIDefaults(&cfg.API)
	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyRedisDefaults(cfg *RedisConfig) {
	if cfg.Enabled && cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
}

func applySyncDefaults(cfg *SyncConfig) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 5
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 3 * time.Second
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.SweepMinAge == 0 {
		cfg.SweepMinAge = 15 * time.Second
	}
}

func applyLockDefaults(cfg *LockConfig) {
	if cfg.TTL == 0 {
		cfg.TTL = 60 * time.Second
	}
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = 30 * time.Second
	}
	if cfg.RenewInterval == 0 {
		cfg.RenewInterval = 25 * time.Second
	}
}

func applyUploadDefaults(cfg *UploadConfig) {
	if cfg.Threshold == 0 {
		cfg.Threshold = 100 * bytesize.MiB
	}
	if cfg.PartSize == 0 {
		cfg.PartSize = 10 * bytesize.MiB
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}
}

func applyAdmissionDefaults(cfg *AdmissionConfig) {
	if cfg.MaxActiveSessions == 0 {
		cfg.MaxActiveSessions = 10
	}
	if cfg.MaxTotalUploadBytes == 0 {
		cfg.MaxTotalUploadBytes = 10 * bytesize.GiB
	}
	if cfg.ClaimTTL == 0 {
		cfg.ClaimTTL = 5 * time.Minute
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	// Content streaming can be slow on large files; keep the write
	// timeout generous.
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

// GetDefaultConfig returns a Config with all defaults applied. Useful
// for generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: metastore.Config{
			Type: metastore.DatabaseTypeSQLite,
		},
		Storage: StorageConfig{
			NASPath:   "/mnt/nas/mezzofs",
			CachePath: "/var/lib/mezzofs/cache",
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
