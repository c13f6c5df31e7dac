package main

import (
	"context"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

// eventChannelPrefix matches the engine's queue channel layout: the
// scheduler publishes to topic "canvas:events" keyed by user, which the
// Redis queue maps to channel canvas:events:{userId}.
const eventChannelPrefix = "canvas:events:"

// Subscriber bridges Redis PubSub into the hub
type Subscriber struct {
	redis *redis.Client
	hub   *Hub
}

// NewSubscriber creates a new Subscriber instance
func NewSubscriber(redisClient *redis.Client, hub *Hub) *Subscriber {
	return &Subscriber{
		redis: redisClient,
		hub:   hub,
	}
}

// Start subscribes to every user's event channel and forwards payloads to
// the hub until the context is cancelled
func (s *Subscriber) Start(ctx context.Context) {
	pubsub := s.redis.PSubscribe(ctx, eventChannelPrefix+"*")
	defer pubsub.Close()

	// Confirm the subscription before consuming
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Fatalf("failed to subscribe to redis: %v", err)
	}

	log.Printf("subscribed to %s*", eventChannelPrefix)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Println("subscriber stopping")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			// The suffix is the user ID; user IDs may contain colons, so
			// trim the prefix instead of splitting.
			userID := strings.TrimPrefix(msg.Channel, eventChannelPrefix)
			if userID == "" || userID == msg.Channel {
				log.Printf("ignoring unexpected channel: %s", msg.Channel)
				continue
			}

			s.hub.events <- &UserEvent{
				UserID:  userID,
				Payload: []byte(msg.Payload),
			}
		}
	}
}
