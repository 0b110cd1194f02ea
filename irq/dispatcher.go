package irq

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/viant/kernos/klog"
)

// Class identifies the kind of exception taken.
type Class int

const (
	ClassSync Class = iota
	ClassIRQ
	ClassFIQ
	ClassSError
	classCount
)

// String returns the vector-table name of the class.
func (c Class) String() string {
	switch c {
	case ClassSync:
		return "sync"
	case ClassIRQ:
		return "irq"
	case ClassFIQ:
		return "fiq"
	case ClassSError:
		return "serror"
	}
	return "invalid"
}

// Source identifies where the exception came from.
type Source int

const (
	SourceCurrentSP0 Source = iota
	SourceCurrentSPx
	SourceLower64
	SourceLower32
	sourceCount
)

// String returns the vector-table name of the source.
func (s Source) String() string {
	switch s {
	case SourceCurrentSP0:
		return "current_el_sp0"
	case SourceCurrentSPx:
		return "current_el_spx"
	case SourceLower64:
		return "lower_el_aarch64"
	case SourceLower32:
		return "lower_el_aarch32"
	}
	return "invalid"
}

// Exception syndrome classes, as held in ESR_EL1 bits [31:26].
const (
	ECUnknown      = 0x00
	ECSVC          = 0x15
	ECDataAbortLow = 0x24
	ECDataAbort    = 0x25
	ECPCAlignment  = 0x22
	ECSPAlignment  = 0x26
	ECBRK          = 0x3C
)

// Syndrome is the decoded ESR_EL1 value.
type Syndrome uint64

// EC extracts the exception class field.
func (s Syndrome) EC() uint64 { return (uint64(s) >> 26) & 0x3F }

// ISS extracts the instruction-specific syndrome field.
func (s Syndrome) ISS() uint64 { return uint64(s) & 0x1FFFFFF }

// String names the exception class for diagnostics.
func (s Syndrome) String() string {
	switch s.EC() {
	case ECSVC:
		return "svc instruction"
	case ECDataAbortLow:
		return "data abort, lower level"
	case ECDataAbort:
		return "data abort, current level"
	case ECPCAlignment:
		return "pc alignment fault"
	case ECSPAlignment:
		return "sp alignment fault"
	case ECBRK:
		return "brk instruction"
	case ECUnknown:
		return "unknown reason"
	}
	return fmt.Sprintf("unhandled class %#x", s.EC())
}

// Frame is the register state captured at exception entry.
type Frame struct {
	X        [31]uint64
	SP       uint64
	ELR      uint64
	SPSR     uint64
	Syndrome Syndrome
	FAR      uint64
}

// Handler services a peripheral interrupt line.
type Handler func(irq uint32, frame *Frame)

// SVCHandler services a supervisor call taken on the sync vector.
type SVCHandler func(frame *Frame)

// Stats counts taken exceptions per class.
type Stats struct {
	Sync   uint64
	IRQ    uint64
	FIQ    uint64
	SError uint64
	Fatal  uint64
}

var (
	// ErrUnhandled reports a sync or SError exception with no recovery
	// path; the dispatcher is halted when it is returned.
	ErrUnhandled = errors.New("irq: unhandled exception")
	// ErrNoHandler reports delivery on a line with no registered handler.
	ErrNoHandler = errors.New("irq: no handler registered")
)

// Dispatcher routes the sixteen vector-table entries to Go handlers. It is
// confined to the CPU goroutine; only the controller it drains is shared.
type Dispatcher struct {
	controller *Controller
	handlers   [MaxIRQ]Handler
	fiqHandler Handler
	svcHandler SVCHandler
	masked     bool
	halted     bool
	stats      Stats
	dump       io.Writer
}

// DispatcherOption customises a dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDumpWriter directs fatal register dumps to the writer.
func WithDumpWriter(w io.Writer) DispatcherOption {
	return func(d *Dispatcher) {
		d.dump = w
	}
}

// NewDispatcher returns a dispatcher draining the controller. Interrupts
// start masked, as at boot, and are opened with the restore closure from
// Mask or with Unmask.
func NewDispatcher(controller *Controller, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		controller: controller,
		masked:     true,
		dump:       os.Stderr,
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// Register installs the handler for the line, replacing any previous one.
func (d *Dispatcher) Register(irq uint32, handler Handler) error {
	if irq >= MaxIRQ {
		return ErrInvalidIRQ
	}
	d.handlers[irq] = handler
	return nil
}

// Unregister removes the line's handler.
func (d *Dispatcher) Unregister(irq uint32) error {
	if irq >= MaxIRQ {
		return ErrInvalidIRQ
	}
	d.handlers[irq] = nil
	return nil
}

// RegisterFIQ installs the fast-interrupt handler. FIQ lines skip the
// general table so the timer path stays short.
func (d *Dispatcher) RegisterFIQ(handler Handler) {
	d.fiqHandler = handler
}

// RegisterSVC installs the supervisor-call handler.
func (d *Dispatcher) RegisterSVC(handler SVCHandler) {
	d.svcHandler = handler
}

// Mask closes interrupt delivery and returns a closure restoring the
// previous state. Nesting works: the inner restore keeps interrupts
// masked when the outer section masked them first.
func (d *Dispatcher) Mask() func() {
	prev := d.masked
	d.masked = true
	return func() {
		d.masked = prev
	}
}

// Unmask opens interrupt delivery unconditionally.
func (d *Dispatcher) Unmask() {
	d.masked = false
}

// Masked reports whether delivery is closed.
func (d *Dispatcher) Masked() bool { return d.masked }

// Halted reports whether a fatal exception stopped the dispatcher.
func (d *Dispatcher) Halted() bool { return d.halted }

// Stats returns the per-class exception counters.
func (d *Dispatcher) Stats() Stats { return d.stats }

// Vector dispatches one exception the way the vector table would. Sync
// and SError exceptions without a recovery path halt the dispatcher and
// return ErrUnhandled.
func (d *Dispatcher) Vector(source Source, class Class, frame *Frame) error {
	if d.halted {
		return ErrUnhandled
	}
	if source < 0 || source >= sourceCount || class < 0 || class >= classCount {
		return d.fatal(source, class, frame)
	}
	switch class {
	case ClassSync:
		d.stats.Sync++
		return d.sync(source, frame)
	case ClassIRQ:
		d.stats.IRQ++
		return d.deliverIRQ(frame)
	case ClassFIQ:
		d.stats.FIQ++
		return d.deliverFIQ(frame)
	case ClassSError:
		d.stats.SError++
		return d.fatal(source, class, frame)
	}
	return d.fatal(source, class, frame)
}

// DispatchPending drains the controller at a safepoint. It is a no-op
// while masked or halted.
func (d *Dispatcher) DispatchPending(frame *Frame) error {
	if d.masked || d.halted {
		return nil
	}
	if d.controller.HasPending(true) {
		if err := d.Vector(SourceCurrentSPx, ClassFIQ, frame); err != nil {
			return err
		}
	}
	for d.controller.HasPending(false) {
		if err := d.Vector(SourceCurrentSPx, ClassIRQ, frame); err != nil {
			return err
		}
		if d.masked || d.halted {
			break
		}
	}
	return nil
}

func (d *Dispatcher) sync(source Source, frame *Frame) error {
	switch frame.Syndrome.EC() {
	case ECSVC:
		if d.svcHandler == nil {
			return d.fatal(source, ClassSync, frame)
		}
		d.svcHandler(frame)
		return nil
	case ECBRK:
		klog.Warnf("irq: brk instruction at %#x", frame.ELR)
		frame.ELR += 4
		return nil
	}
	return d.fatal(source, ClassSync, frame)
}

func (d *Dispatcher) deliverIRQ(frame *Frame) error {
	irq := d.controller.Acknowledge()
	if irq == Spurious {
		return nil
	}
	handler := d.handlers[irq]
	if handler == nil {
		klog.Warnf("irq: no handler for line %d", irq)
		d.controller.EndOfIRQ(irq)
		return ErrNoHandler
	}
	handler(irq, frame)
	d.controller.EndOfIRQ(irq)
	return nil
}

func (d *Dispatcher) deliverFIQ(frame *Frame) error {
	irq := d.controller.AcknowledgeFIQ()
	if irq == Spurious {
		return nil
	}
	if d.fiqHandler == nil {
		klog.Warnf("irq: no fiq handler for line %d", irq)
		d.controller.EndOfIRQ(irq)
		return ErrNoHandler
	}
	d.fiqHandler(irq, frame)
	d.controller.EndOfIRQ(irq)
	return nil
}

func (d *Dispatcher) fatal(source Source, class Class, frame *Frame) error {
	d.stats.Fatal++
	d.halted = true
	d.masked = true
	fmt.Fprintf(d.dump, "fatal exception: %s from %s\n", class, source)
	fmt.Fprintf(d.dump, "  reason: %s\n", frame.Syndrome)
	fmt.Fprintf(d.dump, "  esr: %#016x  far: %#016x\n", uint64(frame.Syndrome), frame.FAR)
	fmt.Fprintf(d.dump, "  elr: %#016x  spsr: %#016x  sp: %#016x\n", frame.ELR, frame.SPSR, frame.SP)
	for i := 0; i < len(frame.X); i += 2 {
		if i+1 < len(frame.X) {
			fmt.Fprintf(d.dump, "  x%-2d: %#016x  x%-2d: %#016x\n", i, frame.X[i], i+1, frame.X[i+1])
			continue
		}
		fmt.Fprintf(d.dump, "  x%-2d: %#016x\n", i, frame.X[i])
	}
	klog.Errorf("irq: %s exception from %s halted the cpu (%s)", class, source, frame.Syndrome)
	return ErrUnhandled
}
