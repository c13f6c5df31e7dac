package bootstrap

import (
	"github.com/framefold/canvas/common/config"
	"github.com/framefold/canvas/common/logger"
)

// Option adjusts what Setup initializes. Queue, cache and telemetry are
// governed by configuration; options exist for the pieces tests and
// auxiliary tools need to unplug entirely.
type Option func(*options)

type options struct {
	skipDB    bool
	skipRedis bool
	config    *config.Config
	logger    *logger.Logger
}

// WithoutDB skips the Postgres pool. For tooling that only talks to Redis.
func WithoutDB() Option {
	return func(o *options) {
		o.skipDB = true
	}
}

// WithoutRedis skips the Redis client. Combine with a memory queue; the
// engine itself cannot run without Redis.
func WithoutRedis() Option {
	return func(o *options) {
		o.skipRedis = true
	}
}

// WithConfig injects a prebuilt configuration instead of reading the
// environment.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithLogger injects a logger instead of building one from configuration.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}
