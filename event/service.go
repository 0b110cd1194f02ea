package event

import (
	"context"
	"sync"

	"github.com/viant/kernos/klog"
)

// KernelEvent is the payload the core publishes.
type KernelEvent struct {
	Type   string `json:"type"`
	PID    uint64 `json:"pid,omitempty"`
	Name   string `json:"name,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Service fans kernel events out to subscribed handlers on a consumer
// goroutine.
type Service struct {
	queue    *Queue[Event[KernelEvent]]
	mu       sync.RWMutex
	handlers []func(*Event[KernelEvent])
	cancel   context.CancelFunc
	done     chan struct{}
}

// New starts the event service.
func New() *Service {
	s := &Service{
		queue: NewQueue[Event[KernelEvent]](DefaultQueueConfig()),
		done:  make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.consume(ctx)
	return s
}

// Subscribe registers a handler for every subsequent event.
func (s *Service) Subscribe(handler func(*Event[KernelEvent])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Publish queues a kernel event; it never blocks the caller.
func (s *Service) Publish(eventType string, data KernelEvent) {
	data.Type = eventType
	evt := NewEvent(&Context{
		PID:       data.PID,
		EventType: eventType,
		Component: "kernos",
	}, data)
	if err := s.queue.Publish(context.Background(), evt); err != nil {
		klog.Debugf("event: publish %s: %v", eventType, err)
	}
}

// Shutdown stops the consumer; undelivered events are dropped.
func (s *Service) Shutdown() {
	s.cancel()
	s.queue.Close()
	<-s.done
}

func (s *Service) consume(ctx context.Context) {
	defer close(s.done)
	for {
		msg, err := s.queue.Consume(ctx)
		if err != nil || msg == nil {
			return
		}
		if err := msg.Ack(); err != nil {
			klog.Debugf("event: ack: %v", err)
		}
		s.mu.RLock()
		handlers := s.handlers
		s.mu.RUnlock()
		for _, handler := range handlers {
			handler(msg.T())
		}
	}
}
