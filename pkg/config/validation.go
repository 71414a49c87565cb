package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against its struct tags plus the
// cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis: addr is required when enabled")
	}
	if cfg.Storage.NASPath == cfg.Storage.CachePath {
		return fmt.Errorf("storage: nas_path and cache_path must differ")
	}
	if cfg.Upload.PartSize > cfg.Upload.Threshold {
		return fmt.Errorf("upload: part_size %s exceeds threshold %s",
			cfg.Upload.PartSize, cfg.Upload.Threshold)
	}
	if cfg.Lock.RenewInterval >= cfg.Lock.TTL {
		return fmt.Errorf("lock: renew_interval must be below ttl")
	}
	return nil
}
