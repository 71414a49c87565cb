package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/admission"
	"github.com/mezzofs/mezzofs/pkg/api"
	"github.com/mezzofs/mezzofs/pkg/command"
	"github.com/mezzofs/mezzofs/pkg/config"
	"github.com/mezzofs/mezzofs/pkg/lock"
	"github.com/mezzofs/mezzofs/pkg/lock/memlock"
	"github.com/mezzofs/mezzofs/pkg/lock/redlock"
	"github.com/mezzofs/mezzofs/pkg/metastore"
	"github.com/mezzofs/mezzofs/pkg/metrics"
	prom "github.com/mezzofs/mezzofs/pkg/metrics/prometheus"
	"github.com/mezzofs/mezzofs/pkg/nashealth"
	"github.com/mezzofs/mezzofs/pkg/outbox"
	"github.com/mezzofs/mezzofs/pkg/queue"
	"github.com/mezzofs/mezzofs/pkg/queue/memq"
	"github.com/mezzofs/mezzofs/pkg/queue/redisq"
	"github.com/mezzofs/mezzofs/pkg/storage/fsstore"
	"github.com/mezzofs/mezzofs/pkg/syncer"
	"github.com/mezzofs/mezzofs/pkg/upload"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the MezzoFS server",
	Long: `Start the MezzoFS server with the specified configuration.

The server runs in the foreground; use a process supervisor (systemd,
containers) for background operation.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/mezzofs/config.yaml.

Examples:
  # Start with default config location
  mezzofs start

  # Start with custom config file
  mezzofs start --config /etc/mezzofs/config.yaml

  # Start with environment variable overrides
  MEZZOFS_LOGGING_LEVEL=DEBUG mezzofs start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("MezzoFS starting", "version", Version)
	logger.Info("Configuration loaded", "source", configSource(GetConfigFile()))

	// Metrics registry must exist before collectors are constructed.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		startMetricsServer(ctx, cfg.Metrics.Port)
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	store, err := metastore.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize metadata store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("metadata store close error", logger.KeyError, err.Error())
		}
	}()
	logger.Info("Metadata store ready", "type", cfg.Database.Type)

	nas, err := fsstore.New(cfg.Storage.NASPath)
	if err != nil {
		return fmt.Errorf("failed to open NAS tier: %w", err)
	}
	cache, err := fsstore.New(cfg.Storage.CachePath)
	if err != nil {
		return fmt.Errorf("failed to open cache tier: %w", err)
	}
	logger.Info("Content tiers ready", "nas", cfg.Storage.NASPath, "cache", cfg.Storage.CachePath)

	health := nashealth.New()
	prober := nashealth.NewProber(health, nas, cfg.Health.ProbeInterval)
	go prober.Run(ctx)

	var (
		q      queue.Queue
		locker lock.Locker
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("redis close error", logger.KeyError, err.Error())
			}
		}()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
		}
		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "mezzofs"
		}
		q = redisq.New(rdb, hostname)
		locker = redlock.New(rdb)
		logger.Info("Redis queue and lock enabled", "addr", cfg.Redis.Addr)
	} else {
		mq := memq.New()
		defer mq.Close()
		q = mq
		locker = memlock.New()
		logger.Info("In-process queue and lock enabled (single node)")
	}

	tracker := outbox.NewTracker(store)

	sync := syncer.New(store, tracker, nas, cache, locker, health, prom.NewSyncMetrics(), syncer.Options{
		Concurrency: cfg.Sync.Concurrency,
		MaxAttempts: cfg.Sync.MaxAttempts,
		Backoff:     cfg.Sync.Backoff,
		Lock: lock.Options{
			TTL:           cfg.Lock.TTL,
			WaitTimeout:   cfg.Lock.WaitTimeout,
			RenewInterval: cfg.Lock.RenewInterval,
		},
	})
	if err := sync.Start(ctx, q); err != nil {
		return fmt.Errorf("failed to start sync workers: %w", err)
	}
	logger.Info("Sync workers started", "concurrency", cfg.Sync.Concurrency)

	sweeper := outbox.NewSweeper(store, sync.ReEnqueue(ctx, q), cfg.Sync.SweepInterval, cfg.Sync.SweepMinAge)
	go sweeper.Run(ctx)

	engine := upload.New(store, cache, q, tracker, health, upload.Options{
		Threshold:  int64(cfg.Upload.Threshold),
		PartSize:   int64(cfg.Upload.PartSize),
		SessionTTL: cfg.Upload.SessionTTL,
	})
	controller := admission.New(engine, admission.Options{
		MaxActiveSessions:   cfg.Admission.MaxActiveSessions,
		MaxTotalUploadBytes: int64(cfg.Admission.MaxTotalUploadBytes),
		ClaimTTL:            cfg.Admission.ClaimTTL,
	})
	go runUploadSweeps(ctx, engine, controller, cfg.Upload.SweepInterval)

	if metrics.IsEnabled() {
		prom.RegisterAdmissionMetrics(controller)
		prom.RegisterHealthMetrics(health)
	}

	cmdOpts := command.Options{TrashRetention: cfg.Trash.Retention}
	folders := command.NewFolderService(store, q, tracker, health, cmdOpts)
	files := command.NewFileService(store, q, tracker, health, cache, nas, locker, cmdOpts)

	root, err := folders.BootstrapRoot(ctx)
	if err != nil {
		return fmt.Errorf("failed to bootstrap root folder: %w", err)
	}
	logger.Info("Root folder ready", logger.KeyFolderID, root.ID)

	server := api.NewServer(cfg.API, api.Deps{
		Store:     store,
		Folders:   folders,
		Files:     files,
		Uploads:   engine,
		Admission: controller,
		Health:    health,
	})

	logger.Info("Server is running. Press Ctrl+C to stop.")
	if err := server.Start(ctx); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// startMetricsServer serves the Prometheus scrape endpoint on its own
// port so operational traffic stays off the API listener.
func startMetricsServer(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", logger.KeyError, err.Error())
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", logger.KeyError, err.Error())
		}
	}()
}

// runUploadSweeps periodically collects expired upload sessions and
// admission tickets.
func runUploadSweeps(ctx context.Context, engine *upload.Engine, controller *admission.Controller, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := engine.SweepExpired(ctx); err != nil {
				logger.Warn("upload session sweep failed", logger.KeyError, err.Error())
			}
			controller.SweepExpiredTickets(ctx)
		}
	}
}

// configSource returns a description of where the config was loaded from.
func configSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
