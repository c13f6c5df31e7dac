// Package bootstrap assembles the shared runtime for canvas services:
// configuration, logging, Postgres, Redis, the progress-event queue, the
// blob cache and the debug endpoints, torn down in reverse order on
// shutdown.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/framefold/canvas/common/cache"
	"github.com/framefold/canvas/common/config"
	"github.com/framefold/canvas/common/db"
	"github.com/framefold/canvas/common/logger"
	"github.com/framefold/canvas/common/queue"
	redisWrapper "github.com/framefold/canvas/common/redis"
	"github.com/framefold/canvas/common/telemetry"
	"github.com/redis/go-redis/v9"
)

// Setup initializes service components in dependency order and registers a
// cleanup for each. On any failure it tears down what already started and
// returns the error.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	var options options
	for _, opt := range opts {
		opt(&options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	var err error
	if options.config != nil {
		components.Config = options.config
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if options.logger != nil {
		components.Logger = options.logger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	if !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing database connection")
			components.DB.Close()
			return nil
		})
	}

	if !options.skipRedis {
		components.Logger.Info("connecting to redis", "addr", components.Config.RedisAddr())

		raw := redis.NewClient(&redis.Options{
			Addr:     components.Config.RedisAddr(),
			Password: components.Config.Redis.Password,
			DB:       components.Config.Redis.DB,
		})
		components.Redis = redisWrapper.NewClient(raw, components.Logger)

		if err := components.Redis.Ping(ctx); err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return raw.Close()
		})
	}

	// Progress events. The redis queue feeds the fanout service; the memory
	// queue keeps single-binary development runs working.
	components.Logger.Info("initializing queue", "type", components.Config.Queue.Type)
	switch components.Config.Queue.Type {
	case "memory":
		components.Queue = queue.NewMemoryQueue(components.Logger)
	case "redis":
		if components.Redis == nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("redis queue requires redis (remove WithoutRedis or set QUEUE_TYPE=memory)")
		}
		components.Queue = queue.NewRedisQueue(components.Redis, components.Logger)
	default:
		components.Shutdown(ctx)
		return nil, fmt.Errorf("unknown queue type: %s", components.Config.Queue.Type)
	}

	components.addCleanup(func() error {
		components.Logger.Info("closing queue")
		return components.Queue.Close()
	})

	if components.Config.Cache.Enabled {
		components.Logger.Info("initializing cache")
		components.Cache = cache.NewMemoryCache(components.Logger)

		components.addCleanup(func() error {
			components.Logger.Info("closing cache")
			return components.Cache.Close()
		})
	}

	if components.Config.Telemetry.EnablePprof {
		components.Logger.Info("initializing telemetry")
		components.Telemetry = telemetry.New(
			components.Config.Telemetry.PprofPort,
			components.Config.Telemetry.MetricsPort,
			components.Logger,
		)

		// Debug endpoints are best effort; the service runs without them.
		if err := components.Telemetry.Start(ctx); err != nil {
			components.Logger.Warn("failed to start telemetry", "error", err)
		}
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"queue", components.Queue != nil,
		"cache", components.Cache != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}
