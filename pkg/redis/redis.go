package redis

import (
	"context"
	"time"

	"guarantee-controlplane/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
)

const (
	pingAttempts = 5
	pingDelay    = 3 * time.Second
)

// New connects to redis and waits for it to answer PING. The client is still
// returned when redis never answers: callers treat it as a cache and degrade.
func New(lc fx.Lifecycle, c *config.Config) *redis.Client {
	log := zap.L().With(
		zap.String("addr", c.Redis.Addr),
		zap.Int("db", c.Redis.DB),
		zap.Int("pool_size", c.Redis.PoolSize),
	)

	rdb := redis.NewClient(Options(c))

	if err := waitReady(context.Background(), rdb, pingAttempts, pingDelay, log); err != nil {
		log.Error("[Redis] Redis unreachable", zap.Error(err))
	} else {
		log.Info("[Redis] Connected to Redis")
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})

	return rdb
}

func Options(c *config.Config) *redis.Options {
	return &redis.Options{
		Addr:        c.Redis.Addr,
		Password:    c.Redis.Password,
		DB:          c.Redis.DB,
		PoolSize:    c.Redis.PoolSize,
		PoolTimeout: c.Redis.PoolTimeout,
	}
}

func waitReady(ctx context.Context, rdb *redis.Client, attempts int, delay time.Duration, log *zap.Logger) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			return nil
		}

		log.Warn("[Redis] Redis not ready, retrying", zap.Int("retry", i+1), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
