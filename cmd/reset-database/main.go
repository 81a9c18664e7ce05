// Command reset-database deletes every customer, record, payment, sale,
// import control entry and sync status. The schema is left in place.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"ledger-sync-service/internal/app"
	"ledger-sync-service/internal/config"
	"ledger-sync-service/internal/logging"
)

func main() {
	yes := flag.Bool("yes", false, "Confirm that all ingested data should be deleted")
	flag.Parse()

	if !*yes {
		fmt.Fprintln(os.Stderr, "refusing to reset without -yes")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Error loading config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	store, err := app.OpenStore(cfg, logger)
	if err != nil {
		logger.Fatalf("Error opening store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := store.Reset(ctx); err != nil {
		logger.Fatalf("Reset failed: %v", err)
	}
	logger.WithField("driver", cfg.Database.Driver).Info("Database reset completed")
}
