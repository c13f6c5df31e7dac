package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/framefold/canvas/common/logger"
	redisWrapper "github.com/framefold/canvas/common/redis"
)

// RedisQueue implements Queue over Redis PubSub. Messages published under
// (topic, key) go to channel "{topic}:{key}" so downstream consumers (the
// fanout service) can pattern-subscribe per topic and recover the key from
// the channel name.
type RedisQueue struct {
	redis *redisWrapper.Client
	log   *logger.Logger
}

// NewRedisQueue creates a Redis-backed queue
func NewRedisQueue(redis *redisWrapper.Client, log *logger.Logger) *RedisQueue {
	return &RedisQueue{
		redis: redis,
		log:   log,
	}
}

// Publish publishes a message to a topic
func (q *RedisQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	channel := topic
	if key != "" {
		channel = fmt.Sprintf("%s:%s", topic, key)
	}

	if err := q.redis.PublishEvent(ctx, channel, string(message)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe subscribes to every key under a topic and processes messages
func (q *RedisQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	pubsub := q.redis.GetUnderlying().PSubscribe(ctx, topic+":*")

	// Wait for subscription confirmation before returning
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	q.log.Info("subscribed to topic", "topic", topic)

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				q.log.Info("subscription cancelled", "topic", topic)
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				key := strings.TrimPrefix(msg.Channel, topic+":")
				if err := handler(ctx, key, []byte(msg.Payload)); err != nil {
					q.log.Error("message handler error", "topic", topic, "key", key, "error", err)
				}
			}
		}
	}()

	return nil
}

// Close closes the queue. The underlying Redis client is shared and closed by
// its own lifecycle.
func (q *RedisQueue) Close() error {
	return nil
}
