package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// QueueConfig bounds the in-memory queue.
type QueueConfig struct {
	Buffer     int
	MaxRetries int
}

// DefaultQueueConfig returns the standard queue sizing.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{Buffer: 100, MaxRetries: 3}
}

// Message wraps a queued payload with its delivery state.
type Message[T any] struct {
	id         string
	payload    T
	queue      *Queue[T]
	retryCount int
	mu         sync.Mutex
	processed  bool
}

// T returns the message payload.
func (m *Message[T]) T() *T {
	return &m.payload
}

// Ack acknowledges the message as processed successfully.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.processed = true
	return nil
}

// Nack reports a processing failure; the message is requeued until the
// retry budget runs out.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return fmt.Errorf("message %s already processed", m.id)
	}
	m.processed = true
	m.retryCount++
	if m.retryCount <= m.queue.config.MaxRetries {
		m.queue.requeue(&Message[T]{
			id:         m.id,
			payload:    m.payload,
			queue:      m.queue,
			retryCount: m.retryCount,
		})
	}
	return nil
}

// Queue is a bounded in-memory message queue.
type Queue[T any] struct {
	config   QueueConfig
	messages chan *Message[T]
	closed   chan struct{}
	once     sync.Once
}

// NewQueue creates a queue with the config.
func NewQueue[T any](config QueueConfig) *Queue[T] {
	if config.Buffer <= 0 {
		config.Buffer = DefaultQueueConfig().Buffer
	}
	return &Queue[T]{
		config:   config,
		messages: make(chan *Message[T], config.Buffer),
		closed:   make(chan struct{}),
	}
}

// Publish adds a payload. A full queue drops the oldest message rather
// than stalling the publisher.
func (q *Queue[T]) Publish(_ context.Context, t *T) error {
	msg := &Message[T]{id: uuid.New().String(), payload: *t, queue: q}
	for {
		select {
		case <-q.closed:
			return fmt.Errorf("queue closed")
		case q.messages <- msg:
			return nil
		default:
			select {
			case <-q.messages:
			default:
			}
		}
	}
}

// Consume retrieves a single message, waiting until one arrives, the
// context ends, or the queue closes.
func (q *Queue[T]) Consume(ctx context.Context) (*Message[T], error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closed:
		return nil, nil
	case msg := <-q.messages:
		return msg, nil
	}
}

// Close stops the queue; pending messages are discarded.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.closed) })
}

func (q *Queue[T]) requeue(msg *Message[T]) {
	select {
	case q.messages <- msg:
	default:
	}
}
