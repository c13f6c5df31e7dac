// Package queue carries progress events from the engine to whoever streams
// them onward. Both implementations are fire-and-forget pub/sub: a message
// published while nobody listens is gone, and that is fine for progress
// frames the client can re-derive from batch state.
package queue

import (
	"context"
	"sync"

	"github.com/framefold/canvas/common/logger"
)

// Queue publishes messages under (topic, key) and fans them out to every
// subscriber of the topic.
type Queue interface {
	Publish(ctx context.Context, topic string, key string, message []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}

// MessageHandler processes one message. The key is the routing key the
// publisher used, typically a user ID.
type MessageHandler func(ctx context.Context, key string, value []byte) error

// Message is one published event.
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// subscriberBuffer bounds how far a slow handler can fall behind before
// frames get dropped for it.
const subscriberBuffer = 256

// MemoryQueue is an in-process Queue with the same broadcast semantics as the
// Redis one, for single-binary development runs.
type MemoryQueue struct {
	mu     sync.RWMutex
	subs   map[string][]chan *Message
	closed bool
	log    *logger.Logger
}

// NewMemoryQueue creates an in-process queue.
func NewMemoryQueue(log *logger.Logger) *MemoryQueue {
	return &MemoryQueue{
		subs: make(map[string][]chan *Message),
		log:  log,
	}
}

// Publish delivers the message to every current subscriber of topic. A full
// subscriber drops the message rather than stalling the publisher; the
// scheduler must never block on a slow listener.
func (q *MemoryQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil
	}

	msg := &Message{Topic: topic, Key: key, Value: message}
	for _, ch := range q.subs[topic] {
		select {
		case ch <- msg:
		default:
			q.log.Warn("dropping event for slow subscriber", "topic", topic, "key", key)
		}
	}
	return nil
}

// Subscribe registers a handler for topic. Every subscriber sees every
// message published after it subscribed. The handler runs on its own
// goroutine until ctx is cancelled.
func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	ch := make(chan *Message, subscriberBuffer)

	q.mu.Lock()
	q.subs[topic] = append(q.subs[topic], ch)
	q.mu.Unlock()

	q.log.Info("subscribed to topic", "topic", topic)

	go func() {
		defer q.unsubscribe(topic, ch)
		for {
			select {
			case <-ctx.Done():
				q.log.Info("subscription cancelled", "topic", topic)
				return
			case msg := <-ch:
				if msg == nil {
					return
				}
				if err := handler(ctx, msg.Key, msg.Value); err != nil {
					q.log.Error("message handler error", "topic", topic, "key", msg.Key, "error", err)
				}
			}
		}
	}()

	return nil
}

// Close stops delivery. Subscriber goroutines exit as they observe their
// channels close.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	for topic, chans := range q.subs {
		for _, ch := range chans {
			close(ch)
		}
		delete(q.subs, topic)
	}
	return nil
}

func (q *MemoryQueue) unsubscribe(topic string, ch chan *Message) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	chans := q.subs[topic]
	for i, c := range chans {
		if c == ch {
			q.subs[topic] = append(chans[:i], chans[i+1:]...)
			return
		}
	}
}
