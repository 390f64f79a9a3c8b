package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/kp-forecasting/forecast-client/common/logger"
)

var (
	// ErrQueueFull is returned when a topic buffer has no room
	ErrQueueFull = errors.New("queue full")
	// ErrQueueClosed is returned after Close
	ErrQueueClosed = errors.New("queue closed")
)

// Queue interface for message passing
type Queue interface {
	Publish(ctx context.Context, topic string, key string, message []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}

// MessageHandler processes messages
type MessageHandler func(ctx context.Context, key string, value []byte) error

// Message represents a queue message
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// MemoryQueue is an in-process queue with one bounded buffer per topic.
// Several subscriptions on one topic share its messages.
type MemoryQueue struct {
	topics   map[string]chan *Message
	capacity int
	closed   bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
	log      *logger.Logger
}

// NewMemoryQueue creates a new in-memory queue; capacity is the per-topic buffer size
func NewMemoryQueue(capacity int, log *logger.Logger) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryQueue{
		topics:   make(map[string]chan *Message),
		capacity: capacity,
		log:      log,
	}
}

// topic returns the channel for name, creating it; callers hold mu for writing
func (q *MemoryQueue) topic(name string) chan *Message {
	ch, exists := q.topics[name]
	if !exists {
		ch = make(chan *Message, q.capacity)
		q.topics[name] = ch
	}
	return ch
}

// Publish publishes a message to a topic without blocking
func (q *MemoryQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	msg := &Message{
		Topic: topic,
		Key:   key,
		Value: message,
	}

	select {
	case q.topic(topic) <- msg:
		return nil
	default:
		q.log.Warn("queue full", "topic", topic, "key", key)
		return ErrQueueFull
	}
}

// Subscribe processes messages of a topic in a goroutine until ctx is done or the queue closes
func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	ch := q.topic(topic)
	q.wg.Add(1)
	q.mu.Unlock()

	q.log.Debug("subscribing to topic", "topic", topic)

	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				q.log.Debug("subscription cancelled", "topic", topic)
				return
			case msg, ok := <-ch:
				if !ok {
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

// Close closes all topics and waits for subscribers to finish their current message
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for topic, ch := range q.topics {
		close(ch)
		q.log.Debug("closed topic", "topic", topic)
	}
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
