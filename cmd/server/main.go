package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"ledger-sync-service/internal/app"
	"ledger-sync-service/internal/config"
	"ledger-sync-service/internal/database"
	"ledger-sync-service/internal/handlers"
	"ledger-sync-service/internal/locking"
	"ledger-sync-service/internal/logging"
	"ledger-sync-service/internal/metrics"
	"ledger-sync-service/internal/services"
	"ledger-sync-service/internal/session"
	"ledger-sync-service/internal/snapshot"
)

func main() {
	migrateCmd := flag.String("migrate", "", "Migration command (up/down/version)")
	steps := flag.Int("steps", 0, "Number of migration steps (0 means all)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Error loading config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	if *migrateCmd != "" {
		handleMigration(cfg, logger, *migrateCmd, *steps)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(cfg, logger)
	if err != nil {
		logger.Fatalf("Error opening store: %v", err)
	}
	defer store.Close()

	rdb, err := app.OpenRedis(ctx, cfg)
	if err != nil {
		logger.Fatalf("Error connecting to redis: %v", err)
	}

	var (
		locker   locking.Locker = locking.NoopLocker{}
		sessions session.Store
	)
	if rdb != nil {
		defer rdb.Close()
		locker = locking.NewRedisLocker(rdb, cfg.Sync.LockTTL, cfg.Sync.TxTimeout, logger)
		sessions = session.NewRedisStore(rdb, cfg.Session.TTL)
	} else {
		memSessions := session.NewMemoryStore(cfg.Session.TTL)
		go memSessions.Run(ctx, cfg.Session.SweepInterval)
		sessions = memSessions
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ingestion := services.NewIngestionService(store, snapshot.NewValidator(), locker, m, logger, services.IngestionConfig{
		PaymentsCutoff: cfg.Sync.PaymentsCutoff,
		SalesCutoff:    cfg.Sync.SalesCutoff,
		TxTimeout:      cfg.Sync.TxTimeout,
	})

	router := handlers.SetupRouter(handlers.Dependencies{
		Ingestion:  ingestion,
		Cleanup:    services.NewCleanupService(store, m, logger),
		SyncStatus: services.NewSyncStatusService(store, logger),
		Sessions:   sessions,
		APIKey:     cfg.Sync.APIKey,
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:     logger,
	})

	// Large snapshots take a while to apply; the write timeout covers the
	// whole ingestion transaction.
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Sync.TxTimeout + 30*time.Second,
	}

	go func() {
		logger.WithField("driver", cfg.Database.Driver).Infof("Server is running on %s", cfg.ServerAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server Shutdown Failed: %v", err)
		return
	}
	logger.Info("Server exited gracefully")
}

func handleMigration(cfg *config.Config, logger *logrus.Logger, command string, steps int) {
	if cfg.Database.Driver != config.DriverMySQL {
		logger.Fatalf("Migrations only apply to the %s store", config.DriverMySQL)
	}

	db, err := database.NewConnection(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to ensure database exists: %v", err)
	}
	db.Close()

	m, err := migrate.New(
		fmt.Sprintf("file://%s", cfg.Migration.Dir),
		cfg.GetMigrationDBURL(),
	)
	if err != nil {
		logger.Fatalf("Failed to initialize migrate: %v", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verErr := m.Version()
		if verErr != nil {
			if errors.Is(verErr, migrate.ErrNilVersion) {
				logger.Info("No migrations have been applied yet")
				return
			}
			logger.Fatalf("Failed to get version: %v", verErr)
		}
		fmt.Printf("Current migration version: %d (dirty: %v)\n", version, dirty)
		return
	default:
		logger.Fatalf("Invalid migration command: %s", command)
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("No migration changes to apply")
			return
		}
		logger.Fatalf("Migration failed: %v", err)
	}

	logger.Info("Migration completed successfully")
}
