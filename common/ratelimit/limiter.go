package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Logger is the logging surface the limiter needs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// RateLimitResult reports one limit check. RetryAfterSeconds is zero when
// the request was allowed.
type RateLimitResult struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// RateLimiter counts requests in fixed windows, one Redis key per scope.
// The count-and-expire runs as an embedded Lua script so concurrent checks
// cannot race past the limit.
type RateLimiter struct {
	redis  *redis.Client
	script *redis.Script
	logger Logger
}

// NewRateLimiter creates a limiter sharing the service's Redis client.
func NewRateLimiter(redisClient *redis.Client, logger Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		script: redis.NewScript(rateLimitScript),
		logger: logger,
	}
}

// CheckGlobalLimit counts every request against one service-wide window.
func (r *RateLimiter) CheckGlobalLimit(ctx context.Context, limit int64) (*RateLimitResult, error) {
	return r.checkLimit(ctx, "rate_limit:global", limit, 60)
}

// CheckUserLimit counts requests per authenticated user.
func (r *RateLimiter) CheckUserLimit(ctx context.Context, username string, limit int64, windowSec int) (*RateLimitResult, error) {
	key := fmt.Sprintf("rate_limit:user:%s", username)
	return r.checkLimit(ctx, key, limit, windowSec)
}

// CheckCanvasLimit counts runs of one canvas by one user, so a client stuck
// in a retry loop on a single canvas exhausts its own budget and nothing
// else.
func (r *RateLimiter) CheckCanvasLimit(ctx context.Context, username, canvasID string, limit int64, windowSec int) (*RateLimitResult, error) {
	key := fmt.Sprintf("rate_limit:canvas:%s:%s", username, canvasID)
	return r.checkLimit(ctx, key, limit, windowSec)
}

// CheckTieredLimit counts runs against the user's budget for the canvas's
// cost tier. Each tier has its own key: burning the heavy budget must not
// block text-only canvases.
func (r *RateLimiter) CheckTieredLimit(ctx context.Context, username string, tier CanvasTier) (*RateLimitResult, error) {
	key := fmt.Sprintf("rate_limit:user:%s:tier:%s", username, tier)
	limit := GetLimitForTier(tier)
	return r.checkLimit(ctx, key, limit, GetWindowForTier(tier))
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int64, windowSec int) (*RateLimitResult, error) {
	reply, err := r.script.Run(ctx, r.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		r.logger.Error("rate limit check failed", "key", key, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	result, err := parseScriptReply(reply)
	if err != nil {
		return nil, err
	}

	if !result.Allowed {
		r.logger.Warn("rate limit exceeded",
			"key", key,
			"current", result.CurrentCount,
			"limit", result.Limit,
			"retry_after", result.RetryAfterSeconds)
	} else {
		r.logger.Debug("rate limit check passed",
			"key", key,
			"current", result.CurrentCount,
			"limit", result.Limit)
	}

	return result, nil
}

// parseScriptReply decodes the script's {allowed, current, limit, retry}
// array without trusting its shape.
func parseScriptReply(reply interface{}) (*RateLimitResult, error) {
	arr, ok := reply.([]interface{})
	if !ok || len(arr) != 4 {
		return nil, fmt.Errorf("unexpected rate limit script reply: %v", reply)
	}

	fields := make([]int64, 4)
	for i, v := range arr {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected rate limit script reply: %v", reply)
		}
		fields[i] = n
	}

	return &RateLimitResult{
		Allowed:           fields[0] == 1,
		CurrentCount:      fields[1],
		Limit:             fields[2],
		RetryAfterSeconds: fields[3],
	}, nil
}
