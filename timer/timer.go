package timer

import (
	"errors"

	"github.com/viant/kernos/irq"
	"github.com/viant/kernos/klog"
)

const (
	// DefaultFrequency is the modelled counter frequency in Hz.
	DefaultFrequency = 62_500_000
	// DefaultTickRate is the scheduling tick rate in Hz, 10ms per tick.
	DefaultTickRate = 100
)

// ErrNotStarted reports an Advance before Start.
var ErrNotStarted = errors.New("timer: not started")

// TickFunc is invoked once per scheduling tick from the timer handler.
type TickFunc func(ticks uint64)

// Timer is the virtual generic timer. It is confined to the CPU goroutine;
// devices that need to signal the CPU raise controller lines instead.
type Timer struct {
	controller *irq.Controller
	frequency  uint64
	tickRate   uint64
	interval   uint64 // counter steps per scheduling tick
	counter    uint64 // modelled cntpct
	base       uint64 // counter value at Start
	compare    uint64 // modelled cntp_cval
	ticks      uint64
	started    bool
	onTick     TickFunc
}

// Option customises a timer.
type Option func(*Timer)

// WithFrequency overrides the modelled counter frequency.
func WithFrequency(hz uint64) Option {
	return func(t *Timer) {
		t.frequency = hz
	}
}

// WithTickRate overrides the scheduling tick rate.
func WithTickRate(hz uint64) Option {
	return func(t *Timer) {
		t.tickRate = hz
	}
}

// WithTickFunc sets the per-tick callback, normally the scheduler's Tick.
func WithTickFunc(fn TickFunc) Option {
	return func(t *Timer) {
		t.onTick = fn
	}
}

// New returns a timer wired to the controller. The timer line is configured
// at high priority and enabled, but the timer itself does not fire until
// Start, matching the bring-up order where interrupts open first.
func New(controller *irq.Controller, dispatcher *irq.Dispatcher, options ...Option) (*Timer, error) {
	t := &Timer{
		controller: controller,
		frequency:  DefaultFrequency,
		tickRate:   DefaultTickRate,
	}
	for _, option := range options {
		option(t)
	}
	if t.tickRate == 0 || t.frequency < t.tickRate {
		return nil, errors.New("timer: tick rate must be positive and at most the frequency")
	}
	t.interval = t.frequency / t.tickRate

	if err := dispatcher.Register(irq.TimerIRQ, t.handle); err != nil {
		return nil, err
	}
	if err := controller.SetPriority(irq.TimerIRQ, irq.PriorityHigh); err != nil {
		return nil, err
	}
	if err := controller.Enable(irq.TimerIRQ); err != nil {
		return nil, err
	}
	klog.Infof("timer: frequency %d Hz, tick every %d ms", t.frequency, 1000/t.tickRate)
	return t, nil
}

// Start arms the first compare value. Idempotent.
func (t *Timer) Start() {
	if t.started {
		return
	}
	t.base = t.counter
	t.compare = t.base + t.interval
	t.started = true
	klog.Infof("timer: started")
}

// Advance moves the counter forward by steps, raising the timer line when
// a compare value was crossed. Delivery still waits for a dispatch
// safepoint; the handler catches up on every tick elapsed by then, so no
// tick is lost to the line's single pending bit.
func (t *Timer) Advance(steps uint64) error {
	if !t.started {
		return ErrNotStarted
	}
	t.counter += steps
	if t.counter >= t.compare {
		return t.controller.Raise(irq.TimerIRQ)
	}
	return nil
}

// AdvanceTicks moves the counter forward by whole scheduling ticks.
func (t *Timer) AdvanceTicks(n uint64) error {
	return t.Advance(n * t.interval)
}

// handle is the timer line handler: count every elapsed tick, rearm, run
// the hook once per tick.
func (t *Timer) handle(_ uint32, _ *irq.Frame) {
	due := (t.counter - t.base) / t.interval
	for t.ticks < due {
		t.ticks++
		if t.ticks%t.tickRate == 0 {
			klog.Debugf("timer: uptime %d s", t.ticks/t.tickRate)
		}
		if t.onTick != nil {
			t.onTick(t.ticks)
		}
	}
	t.compare = t.base + (t.ticks+1)*t.interval
}

// Ticks returns the scheduling ticks counted since Start.
func (t *Timer) Ticks() uint64 { return t.ticks }

// Counter returns the modelled counter value.
func (t *Timer) Counter() uint64 { return t.counter }

// Frequency returns the modelled counter frequency in Hz.
func (t *Timer) Frequency() uint64 { return t.frequency }

// UptimeMillis returns the uptime in milliseconds of modelled time.
func (t *Timer) UptimeMillis() uint64 {
	return t.ticks * 1000 / t.tickRate
}

// UptimeSeconds returns the uptime in whole seconds of modelled time.
func (t *Timer) UptimeSeconds() uint64 {
	return t.ticks / t.tickRate
}
