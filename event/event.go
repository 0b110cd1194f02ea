// Package event distributes kernel lifecycle events to external
// collaborators: process creation and exit, preemptions, allocation
// failures and fatal exceptions. Delivery is asynchronous over a bounded
// in-memory queue so the CPU path never blocks on a slow consumer.
package event

import (
	"time"

	"github.com/viant/kernos/internal/clock"
)

// Kernel event types.
const (
	TypeProcessCreated    = "process.created"
	TypeProcessExited     = "process.exited"
	TypePreemption        = "sched.preemption"
	TypeAllocationFailure = "mem.allocationFailure"
	TypeFatalException    = "irq.fatal"
	TypeBoot              = "system.boot"
	TypeShutdown          = "system.shutdown"
)

// Context identifies the origin of an event.
type Context struct {
	PID       uint64 `json:"pid,omitempty"`
	ProcessID string `json:"processID,omitempty"` // correlation id
	EventType string `json:"eventType"`
	Component string `json:"component"`
}

// Event carries a typed payload with its origin.
type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Data      T                      `json:"data"`
}

// NewEvent builds an event stamped with the kernel clock.
func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: clock.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}
