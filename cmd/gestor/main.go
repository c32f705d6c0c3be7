package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gfmeira/gestor/internal/config"
	"github.com/gfmeira/gestor/internal/handler"
	"github.com/gfmeira/gestor/internal/infra/cache"
	"github.com/gfmeira/gestor/internal/infra/entities"
	"github.com/gfmeira/gestor/internal/infra/localstore"
	"github.com/gfmeira/gestor/internal/infra/observability"
	"github.com/gfmeira/gestor/internal/infra/remote"
	"github.com/gfmeira/gestor/internal/infra/resilience"
	"github.com/gfmeira/gestor/internal/scheduler"
	"github.com/gfmeira/gestor/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("data_path", cfg.DataPath),
		zap.String("external_store_url", cfg.ExternalStoreURL),
		zap.String("entity_api_url", cfg.EntityAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("sync_interval", cfg.SyncInterval),
		zap.Duration("backup_interval", cfg.BackupInterval),
		zap.Duration("backup_retention", cfg.BackupRetention),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "gestor")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Local store ---
	store, err := localstore.Open(cfg.DataPath, cfg.StorageQuota)
	if err != nil {
		logger.Fatal("failed to open local store",
			zap.String("path", cfg.DataPath),
			zap.Error(err),
		)
	}
	defer store.Close()

	// --- Cache ---
	entityCache := cache.New[[]map[string]any](cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	// One breaker per host so an outage on the external store never
	// opens the circuit for the entity API, and vice versa.
	storeCB := resilience.NewCircuitBreaker("external-store")
	entityCB := resilience.NewCircuitBreaker("entity-api")

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	remoteClient := remote.NewClient(httpClient, cfg.ExternalStoreURL, storeCB, resilienceCfg, logger)
	entityClient := entities.NewClient(httpClient, cfg.EntityAPIURL, cfg.EntityAPIKey, entityCB, resilienceCfg, store, logger)

	// --- Services ---
	userSvc := service.NewUserService(store, cfg.JWTSecret, cfg.JWTAccessTTL, logger)
	if err := userSvc.EnsureAdmin(cfg.AdminPassword); err != nil {
		logger.Fatal("failed to ensure admin user", zap.Error(err))
	}

	cashSvc := service.NewCashbookService(store, logger)
	ordersSvc := service.NewMarketplaceService(store, logger)
	fileSvc := service.NewFileService(store, metrics, logger)
	backupSvc := service.NewBackupService(store, remoteClient, cfg.BackupRetention, metrics, logger)
	syncSvc := service.NewSyncService(store, remoteClient, metrics, logger)
	catalogSvc := service.NewCatalogService(entityClient, store, entityCache, metrics, logger)
	settingsSvc := service.NewSettingsService(store)

	// --- Background tasks ---
	sched := scheduler.New(metrics, logger)
	sched.Add(scheduler.Task{
		Name:       "sync",
		Interval:   cfg.SyncInterval,
		RunAtStart: true,
		Run: func(ctx context.Context) error {
			report, err := syncSvc.SyncAll(ctx)
			if err != nil {
				return err
			}
			if report.Failed() {
				logger.Warn("sync cycle completed with failures")
			}
			return nil
		},
	})
	sched.Add(scheduler.Task{
		Name:       "backup",
		Interval:   cfg.BackupInterval,
		RunAtStart: true,
		Run: func(ctx context.Context) error {
			// force=false: the service skips the run if a backup for
			// today's date already exists.
			_, err := backupSvc.Perform(ctx, false)
			return err
		},
	})
	sched.Add(scheduler.Task{
		Name:     "backup-prune",
		Interval: cfg.BackupInterval,
		Run: func(ctx context.Context) error {
			removed, err := backupSvc.CleanOld(ctx)
			if removed > 0 {
				logger.Info("pruned old backups", zap.Int("removed", removed))
			}
			return err
		},
	})
	sched.Add(scheduler.Task{
		Name:     "queue-flush",
		Interval: cfg.SyncInterval,
		Run: func(ctx context.Context) error {
			flushed, err := entityClient.FlushAllQueues(ctx)
			if flushed > 0 {
				logger.Info("flushed queued records", zap.Int("flushed", flushed))
			}
			return err
		},
	})
	if cfg.FileMaxAgeDays > 0 {
		sched.Add(scheduler.Task{
			Name:     "file-clean",
			Interval: cfg.BackupInterval,
			Run: func(ctx context.Context) error {
				removed, err := fileSvc.CleanOld(cfg.FileMaxAgeDays)
				if removed > 0 {
					logger.Info("removed old files", zap.Int("removed", removed))
				}
				return err
			},
		})
	}

	schedCtx, cancelSched := context.WithCancel(context.Background())
	defer cancelSched()
	sched.Start(schedCtx)

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Users:    userSvc,
		Cash:     cashSvc,
		Orders:   ordersSvc,
		Files:    fileSvc,
		Backup:   backupSvc,
		Sync:     syncSvc,
		Catalog:  catalogSvc,
		Settings: settingsSvc,
	}, store, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
