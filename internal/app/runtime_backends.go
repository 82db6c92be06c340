package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/iteration-report/internal/config"
	"github.com/cam3ron2/iteration-report/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	metricRetention = 0
	metricMaxSeries = 10_000
)

// newStoreBackend returns the configured store, falling back to memory when
// Redis cannot be reached.
func newStoreBackend(cfg *config.Config, logger *zap.Logger) store.Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	storeBackend := store.Store(store.NewMemoryStore(metricRetention, metricMaxSeries))
	if cfg != nil && strings.EqualFold(strings.TrimSpace(cfg.Store.Backend), "redis") {
		redisStore, err := newRedisStoreFromConfig(cfg, metricRetention, metricMaxSeries)
		if err != nil {
			logger.Warn("failed to initialize redis store; falling back to in-memory store", zap.Error(err))
		} else {
			storeBackend = redisStore
		}
	}
	return storeBackend
}

func newRedisStoreFromConfig(cfg *config.Config, retention time.Duration, maxSeries int) (*store.RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var redisClient redis.UniversalClient
	if strings.EqualFold(cfg.Store.RedisMode, "sentinel") {
		redisClient = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.Store.RedisMasterSet,
			SentinelAddrs: cfg.Store.RedisSentinelAddrs,
			Password:      cfg.Store.RedisPassword,
			DB:            cfg.Store.RedisDB,
		})
	} else {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return store.NewRedisStore(redisClient, store.RedisStoreConfig{
		Namespace: cfg.Store.KeyPrefix,
		Retention: retention,
		MaxSeries: maxSeries,
	}), nil
}
