package irq

import (
	"errors"
	"sync"

	"github.com/viant/kernos/klog"
)

const (
	// MaxIRQ is the number of interrupt lines the distributor models.
	MaxIRQ = 1024
	// Spurious is the id returned by Acknowledge when nothing is pending.
	Spurious = 1023
	// TimerIRQ is the physical generic timer line on the virt machine.
	TimerIRQ = 30
	// maxSGI bounds software-generated interrupt numbers.
	maxSGI = 16
)

// Distributor priorities; lower value is more urgent.
const (
	PriorityHigh   = 0x00
	PriorityNormal = 0x80
	PriorityLow    = 0xF0
	PriorityLowest = 0xFF
)

var (
	// ErrInvalidIRQ reports a line number outside the distributor.
	ErrInvalidIRQ = errors.New("irq: invalid interrupt number")
	// ErrInvalidSGI reports a software-generated interrupt above 15.
	ErrInvalidSGI = errors.New("irq: invalid software-generated interrupt")
	// ErrInvalidCPU reports a target CPU other than 0 on this single-core
	// machine.
	ErrInvalidCPU = errors.New("irq: invalid target cpu")
)

// Controller models the GICv2 distributor and CPU interface. Raise may be
// called from device goroutines; all other methods run on the CPU side.
type Controller struct {
	mu       sync.Mutex
	enabled  [MaxIRQ]bool
	fiq      [MaxIRQ]bool
	priority [MaxIRQ]uint8
	pending  [MaxIRQ]bool
	active   int32 // acknowledged, pre-EOI line; -1 when none
	raised   int   // pending line count
}

// NewController returns a controller with all lines disabled and at the
// lowest priority, as the distributor comes out of reset.
func NewController() *Controller {
	c := &Controller{active: -1}
	for i := range c.priority {
		c.priority[i] = PriorityLowest
	}
	return c
}

// Enable opens the line for delivery.
func (c *Controller) Enable(irq uint32) error {
	if irq >= MaxIRQ {
		klog.Errorf("irq: enable of invalid line %d", irq)
		return ErrInvalidIRQ
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled[irq] = true
	return nil
}

// Disable closes the line; pending state is kept but not delivered.
func (c *Controller) Disable(irq uint32) error {
	if irq >= MaxIRQ {
		klog.Errorf("irq: disable of invalid line %d", irq)
		return ErrInvalidIRQ
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled[irq] = false
	return nil
}

// SetPriority sets the line's 8-bit priority; lower is more urgent.
func (c *Controller) SetPriority(irq uint32, priority uint8) error {
	if irq >= MaxIRQ {
		klog.Errorf("irq: set priority of invalid line %d", irq)
		return ErrInvalidIRQ
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.priority[irq] = priority
	return nil
}

// RouteFIQ moves the line to the fast-interrupt group, bypassing the
// general handler table.
func (c *Controller) RouteFIQ(irq uint32) error {
	if irq >= MaxIRQ {
		return ErrInvalidIRQ
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fiq[irq] = true
	return nil
}

// Raise marks the line pending. Safe to call from device goroutines.
func (c *Controller) Raise(irq uint32) error {
	if irq >= MaxIRQ {
		klog.Errorf("irq: raise of invalid line %d", irq)
		return ErrInvalidIRQ
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pending[irq] {
		c.pending[irq] = true
		c.raised++
	}
	return nil
}

// SendSGI raises a software-generated interrupt. The target must be CPU 0;
// the signature keeps the target so multi-core callers stay source
// compatible.
func (c *Controller) SendSGI(sgi, targetCPU uint32) error {
	if sgi >= maxSGI {
		klog.Errorf("irq: invalid SGI %d", sgi)
		return ErrInvalidSGI
	}
	if targetCPU != 0 {
		klog.Errorf("irq: invalid target cpu %d", targetCPU)
		return ErrInvalidCPU
	}
	return c.Raise(sgi)
}

// Acknowledge claims the highest-priority pending enabled line and returns
// its number, or Spurious when none qualifies.
func (c *Controller) Acknowledge() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acknowledgeLocked(false)
}

// AcknowledgeFIQ is the fast-interrupt flavour: only FIQ-group lines
// qualify.
func (c *Controller) AcknowledgeFIQ() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acknowledgeLocked(true)
}

func (c *Controller) acknowledgeLocked(fiq bool) uint32 {
	if c.raised == 0 {
		return Spurious
	}
	best := uint32(Spurious)
	bestPriority := 0x100
	for i := 0; i < MaxIRQ; i++ {
		if !c.pending[i] || !c.enabled[i] || c.fiq[i] != fiq {
			continue
		}
		if int(c.priority[i]) < bestPriority {
			best = uint32(i)
			bestPriority = int(c.priority[i])
		}
	}
	if best != Spurious {
		c.pending[best] = false
		c.raised--
		c.active = int32(best)
	}
	return best
}

// EndOfIRQ completes the acknowledge/EOI bracket for the line.
func (c *Controller) EndOfIRQ(irq uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == int32(irq) {
		c.active = -1
	}
}

// HasPending reports whether any enabled line in the given group awaits
// delivery.
func (c *Controller) HasPending(fiq bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raised == 0 {
		return false
	}
	for i := 0; i < MaxIRQ; i++ {
		if c.pending[i] && c.enabled[i] && c.fiq[i] == fiq {
			return true
		}
	}
	return false
}

// Enabled reports the line's enable bit.
func (c *Controller) Enabled(irq uint32) bool {
	if irq >= MaxIRQ {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled[irq]
}

// Priority returns the line's configured priority.
func (c *Controller) Priority(irq uint32) uint8 {
	if irq >= MaxIRQ {
		return PriorityLowest
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.priority[irq]
}
