package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/framefold/canvas/common/cache"
	"github.com/framefold/canvas/common/config"
	"github.com/framefold/canvas/common/db"
	"github.com/framefold/canvas/common/logger"
	"github.com/framefold/canvas/common/queue"
	redisWrapper "github.com/framefold/canvas/common/redis"
	"github.com/framefold/canvas/common/telemetry"
)

// Components holds everything Setup initialized. Fields left nil were skipped
// by option or configuration; callers check for what they require.
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.DB
	Redis     *redisWrapper.Client
	Queue     queue.Queue
	Cache     cache.Cache
	Telemetry *telemetry.Telemetry

	cleanupFuncs []func() error
}

// Shutdown releases components in reverse initialization order, so consumers
// close before the connections they sit on. Callers defer this right after
// Setup succeeds.
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errs []error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errs = append(errs, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %w", errors.Join(errs...))
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// Health pings the stateful backends. Used by the HTTP health endpoint, so it
// must stay cheap enough to call on every probe.
func (c *Components) Health(ctx context.Context) error {
	if c.DB != nil {
		if err := c.DB.Health(ctx); err != nil {
			return fmt.Errorf("database unhealthy: %w", err)
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
	}

	return nil
}

func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}
