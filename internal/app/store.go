// Package app wires configuration into the store and redis clients shared
// by the commands.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ledger-sync-service/internal/config"
	"ledger-sync-service/internal/database"
	"ledger-sync-service/internal/repositories"
	"ledger-sync-service/internal/repositories/memory"
)

// OpenStore returns the store selected by STORE_DRIVER.
func OpenStore(cfg *config.Config, logger logrus.FieldLogger) (repositories.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("using the in-memory store; data is lost on restart")
		var opts []memory.Option
		if cfg.Database.IdleReset > 0 {
			opts = append(opts, memory.WithIdleReset(cfg.Database.IdleReset))
		}
		return memory.NewStore(opts...), nil
	case config.DriverMySQL:
		db, err := database.NewConnection(cfg, logger)
		if err != nil {
			return nil, err
		}
		return repositories.NewMySQLStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Database.Driver)
	}
}

// OpenRedis returns nil when no redis address is configured.
func OpenRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Address == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}
