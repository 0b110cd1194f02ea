package kernos

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/viant/kernos/config"
	"github.com/viant/kernos/config/bootargs"
	"github.com/viant/kernos/event"
	"github.com/viant/kernos/irq"
	"github.com/viant/kernos/klog"
	"github.com/viant/kernos/mem"
	"github.com/viant/kernos/mem/page"
	"github.com/viant/kernos/proc"
	"github.com/viant/kernos/sched"
	"github.com/viant/kernos/snapshot"
	"github.com/viant/kernos/syscall"
	"github.com/viant/kernos/timer"
	"github.com/viant/kernos/tracing"
)

// Version is the kernel core version.
const Version = "0.1.0"

// System is the assembled machine: memory layout, interrupt plumbing,
// timer, process manager, scheduler and syscall surface.
type System struct {
	config   *config.Config
	bootArgs string
	console  io.Writer
	files    proc.FileTableFactory
	events   *event.Service

	layout     *mem.Layout
	controller *irq.Controller
	dispatcher *irq.Dispatcher
	timer      *timer.Timer
	manager    *proc.Manager
	scheduler  *sched.Scheduler
	syscalls   *syscall.Service
	snapshots  *snapshot.Service
	booted     bool
}

// New assembles an unbooted system.
func New(options ...Option) *System {
	s := &System{
		config:    config.DefaultConfig(),
		console:   os.Stdout,
		snapshots: snapshot.New(),
	}
	for _, option := range options {
		option(s)
	}
	if s.events == nil {
		s.events = event.New()
	}
	return s
}

// Boot initialises every subsystem in hardware bring-up order: memory,
// interrupt controller and dispatcher, scheduler with its idle process,
// timer, then the syscall surface. Interrupts open last.
func (s *System) Boot(ctx context.Context) error {
	if s.booted {
		return fmt.Errorf("kernos: already booted")
	}
	if err := bootargs.Apply(s.config, s.bootArgs); err != nil {
		return err
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if s.config.Tracing {
		if err := tracing.Init("kernos", Version, ""); err != nil {
			klog.Warnf("kernos: tracing init: %v", err)
		}
	}
	ctx, span := tracing.StartSpan(ctx, "kernos.boot", "INTERNAL")
	defer tracing.EndSpan(span, nil)
	_ = ctx

	s.controller = irq.NewController()
	s.dispatcher = irq.NewDispatcher(s.controller)

	layout, err := mem.NewLayout(mem.Config{
		Base:       s.config.Memory.Base,
		Size:       s.config.Memory.Size,
		KernelSize: s.config.Memory.KernelSize,
		HeapSize:   s.config.Memory.HeapSize,
		Reserved:   reservedRanges(s.config.Memory.Reserved),
	}, mem.WithMasker(s.dispatcher))
	if err != nil {
		return fmt.Errorf("kernos: memory init: %w", err)
	}
	s.layout = layout

	managerOptions := []proc.Option{proc.WithStackSize(s.config.Scheduler.StackSize)}
	if s.files != nil {
		managerOptions = append(managerOptions, proc.WithFileTableFactory(s.files))
	}
	s.manager = proc.NewManager(layout.Heap, managerOptions...)

	s.scheduler, err = sched.New(s.manager, s.dispatcher,
		sched.WithTimeSlice(s.config.Scheduler.TimeSlice),
		sched.WithMaxProcesses(s.config.Scheduler.MaxProcesses),
		sched.WithIdleFunc(s.park),
		sched.WithExitFunc(func(p *proc.Process) {
			s.events.Publish(event.TypeProcessExited, event.KernelEvent{PID: p.PID, Name: p.Name})
		}),
	)
	if err != nil {
		return fmt.Errorf("kernos: scheduler init: %w", err)
	}

	s.timer, err = timer.New(s.controller, s.dispatcher,
		timer.WithFrequency(s.config.Timer.Frequency),
		timer.WithTickRate(s.config.Timer.TickRate),
		timer.WithTickFunc(s.scheduler.Tick),
	)
	if err != nil {
		return fmt.Errorf("kernos: timer init: %w", err)
	}

	s.syscalls = syscall.New(s.scheduler,
		syscall.WithConsole(s.console),
		syscall.WithMemory(layout.RAM),
	)
	s.dispatcher.RegisterSVC(s.syscalls.HandleSVC)

	s.dispatcher.Unmask()
	s.timer.Start()
	s.booted = true
	s.events.Publish(event.TypeBoot, event.KernelEvent{Detail: s.config.Console})
	klog.Infof("kernos: booted, %d MiB ram at %#x, console %s",
		s.config.Memory.Size>>20, s.config.Memory.Base, s.config.Console)
	return nil
}

// Spawn creates a READY process. The system must be booted.
func (s *System) Spawn(entry proc.Entry, name string) (*proc.Process, error) {
	if !s.booted {
		return nil, fmt.Errorf("kernos: spawn before boot")
	}
	p, err := s.scheduler.Spawn(entry, name)
	if err != nil {
		s.events.Publish(event.TypeAllocationFailure, event.KernelEvent{Name: name, Detail: err.Error()})
		return nil, err
	}
	s.events.Publish(event.TypeProcessCreated, event.KernelEvent{PID: p.PID, Name: p.Name})
	return p, nil
}

// Run drives the CPU until every process exits, the context ends, or a
// fatal exception halts the machine.
func (s *System) Run(ctx context.Context) error {
	if !s.booted {
		return fmt.Errorf("kernos: run before boot")
	}
	ctx, span := tracing.StartSpan(ctx, "kernos.run", "INTERNAL")
	err := s.scheduler.Run(ctx)
	tracing.EndSpan(span, err)
	if s.dispatcher.Halted() {
		s.events.Publish(event.TypeFatalException, event.KernelEvent{})
	}
	return err
}

// Shutdown stops the scheduler and the event service.
func (s *System) Shutdown(context.Context) {
	if s.scheduler != nil {
		s.scheduler.Shutdown()
	}
	s.events.Publish(event.TypeShutdown, event.KernelEvent{})
	s.events.Shutdown()
}

// Snapshot captures the machine state.
func (s *System) Snapshot() *snapshot.Snapshot {
	snap := &snapshot.Snapshot{}
	if !s.booted {
		return snapshot.Stamp(snap)
	}
	snap.Uptime = s.timer.Ticks()
	snap.Pages = s.layout.Pages.Stats()
	snap.Heap = s.layout.Heap.Stats()
	snap.Scheduler = s.scheduler.Stats()
	snap.Syscalls = s.syscalls.Stats()
	snap.ReadyPIDs = s.scheduler.ReadyPIDs()
	for _, p := range s.manager.Table().List() {
		snap.Processes = append(snap.Processes, snapshot.Process{
			PID:        p.PID,
			ID:         p.ID,
			Name:       p.Name,
			State:      p.State.String(),
			StackBase:  p.StackBase,
			StackSize:  p.StackSize,
			TotalTicks: p.TotalTicks,
		})
	}
	return snapshot.Stamp(snap)
}

// SaveSnapshot captures and persists the machine state at the URL.
func (s *System) SaveSnapshot(ctx context.Context, URL string) error {
	return s.snapshots.Save(ctx, URL, s.Snapshot())
}

// Scheduler exposes the scheduler for process bodies (yield, exit, block).
func (s *System) Scheduler() *sched.Scheduler { return s.scheduler }

// Syscalls exposes the syscall surface.
func (s *System) Syscalls() *syscall.Service { return s.syscalls }

// Timer exposes the generic timer model.
func (s *System) Timer() *timer.Timer { return s.timer }

// Memory exposes the boot memory layout.
func (s *System) Memory() *mem.Layout { return s.layout }

// Events exposes the lifecycle event service.
func (s *System) Events() *event.Service { return s.events }

// park is the idle process's wait-for-interrupt analog: sleep the machine
// forward to its next timer tick.
func (s *System) park() {
	if err := s.timer.AdvanceTicks(1); err != nil {
		klog.Debugf("kernos: idle park: %v", err)
	}
}

func reservedRanges(in []config.Region) []page.Range {
	if len(in) == 0 {
		return nil
	}
	out := make([]page.Range, len(in))
	for i, r := range in {
		out[i] = page.Range{Start: r.Start, End: r.End}
	}
	return out
}
