package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/config"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
)

// openBackend connects the configured persistence backend. The returned
// close func is never nil.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Backend, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{})
		if err != nil {
			return nil, func() {}, fmt.Errorf("postgres: %w", err)
		}
		logger.Info("store backend ready", "backend", cfg.StoreBackend)
		return storage.NewPostgresBackend(pool), pool.Close, nil

	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, func() {}, fmt.Errorf("redis: %w", err)
		}
		logger.Info("store backend ready", "backend", cfg.StoreBackend, "prefix", cfg.StateKeyPrefix)
		return storage.NewRedisBackend(rdb, cfg.StateKeyPrefix), func() { _ = rdb.Close() }, nil

	default:
		logger.Warn("using in-memory store; state is lost on restart")
		return storage.NewMemoryBackend(), func() {}, nil
	}
}

func readyChecks(store *storage.Store, cfg config.Config, kafkaCheck func(context.Context) error) []runtime.ReadyCheck {
	checks := []runtime.ReadyCheck{{Name: "store", Check: store.Ping}}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkaCheck})
	}
	return checks
}
