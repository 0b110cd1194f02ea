package sched

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/kernos/irq"
	"github.com/viant/kernos/klog"
	"github.com/viant/kernos/proc"
)

const (
	// DefaultTimeSlice is the quantum granted at each dispatch, in ticks.
	DefaultTimeSlice = 10
	// DefaultMaxProcesses bounds the ready queue arena.
	DefaultMaxProcesses = 64
)

var (
	// ErrTooManyProcesses reports a spawn beyond the queue arena.
	ErrTooManyProcesses = errors.New("sched: too many processes")
	// ErrHalted reports that a fatal exception stopped the CPU.
	ErrHalted = errors.New("sched: cpu halted")
	// ErrNotRunning reports a process-side call outside a running process.
	ErrNotRunning = errors.New("sched: no current process")
)

// exitSignal unwinds a process goroutine after Exit handed the CPU away.
type exitSignal struct{ pid uint64 }

// Stats are the scheduler counters.
type Stats struct {
	Switches    uint64 `json:"switches"`
	Preemptions uint64 `json:"preemptions"`
	Spawned     uint64 `json:"spawned"`
	Reaped      uint64 `json:"reaped"`
	Ready       int    `json:"ready"`
	Live        int    `json:"live"`
}

// task pairs a process with its goroutine gate. Sending on the gate hands
// the CPU to the process; it hands back on the scheduler's cpuGate.
type task struct {
	p       *proc.Process
	gate    chan struct{}
	started bool
}

// Scheduler owns the ready rotation and the context-switch mechanism.
type Scheduler struct {
	manager    *proc.Manager
	dispatcher *irq.Dispatcher

	queue   *readyQueue
	tasks   map[uint64]*task
	current *proc.Process
	idle    *proc.Process

	cpuGate chan struct{}
	frame   irq.Frame

	timeSlice   uint64
	needResched bool
	stopping    bool
	idleFunc    func()
	exitFunc    func(*proc.Process)

	switches    uint64
	preemptions uint64
	spawned     uint64
	reaped      uint64
	live        int
}

// Option customises a scheduler.
type Option func(*Scheduler)

// WithTimeSlice overrides the dispatch quantum in ticks.
func WithTimeSlice(ticks uint64) Option {
	return func(s *Scheduler) {
		s.timeSlice = ticks
	}
}

// WithMaxProcesses overrides the ready queue capacity.
func WithMaxProcesses(n int) Option {
	return func(s *Scheduler) {
		s.queue = newReadyQueue(n)
	}
}

// WithIdleFunc sets the idle park action, the wait-for-interrupt analog.
// The virtual machine wires it to advance the timer to its next tick.
func WithIdleFunc(fn func()) Option {
	return func(s *Scheduler) {
		s.idleFunc = fn
	}
}

// WithExitFunc sets a callback invoked after a process is reaped, before
// its last reference is dropped.
func WithExitFunc(fn func(*proc.Process)) Option {
	return func(s *Scheduler) {
		s.exitFunc = fn
	}
}

// New builds a scheduler and its idle process. The idle process never
// enters the ready rotation; it is selected only when nothing else is.
func New(manager *proc.Manager, dispatcher *irq.Dispatcher, options ...Option) (*Scheduler, error) {
	s := &Scheduler{
		manager:    manager,
		dispatcher: dispatcher,
		queue:      newReadyQueue(DefaultMaxProcesses),
		tasks:      make(map[uint64]*task),
		cpuGate:    make(chan struct{}),
		timeSlice:  DefaultTimeSlice,
	}
	for _, option := range options {
		option(s)
	}
	idle, err := manager.Create(s.idleBody, "idle")
	if err != nil {
		return nil, fmt.Errorf("sched: create idle process: %w", err)
	}
	s.idle = idle
	s.tasks[idle.PID] = &task{p: idle, gate: make(chan struct{})}
	klog.Infof("sched: initialized, idle pid=%d, quantum %d ticks", idle.PID, s.timeSlice)
	return s, nil
}

// Spawn creates a READY process and enqueues it at the rotation tail. On
// failure nothing is enqueued.
func (s *Scheduler) Spawn(entry proc.Entry, name string) (*proc.Process, error) {
	p, err := s.manager.Create(entry, name)
	if err != nil {
		return nil, err
	}
	restore := s.dispatcher.Mask()
	ok := s.queue.enqueue(p)
	restore()
	if !ok {
		p.State = proc.StateZombie
		if err := s.manager.Reclaim(p); err != nil {
			klog.Errorf("sched: reclaim rejected spawn pid=%d: %v", p.PID, err)
		}
		return nil, ErrTooManyProcesses
	}
	s.tasks[p.PID] = &task{p: p, gate: make(chan struct{})}
	s.live++
	s.spawned++
	klog.Debugf("sched: spawned pid=%d %q", p.PID, p.Name)
	return p, nil
}

// Run drives the CPU until every spawned process has exited, the context
// is cancelled, Shutdown was requested, or a fatal exception halts the
// machine.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.stopping {
			return nil
		}
		if err := s.dispatcher.DispatchPending(&s.frame); err != nil && s.dispatcher.Halted() {
			return fmt.Errorf("%w: %v", ErrHalted, err)
		}
		if s.live == 0 {
			klog.Infof("sched: all processes exited")
			return nil
		}
		s.runNext()
		if s.dispatcher.Halted() {
			return ErrHalted
		}
	}
}

// Shutdown asks Run to return after the current dispatch.
func (s *Scheduler) Shutdown() {
	s.stopping = true
}

// Current returns the running process, or nil between dispatches.
func (s *Scheduler) Current() *proc.Process { return s.current }

// Stats returns the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Switches:    s.switches,
		Preemptions: s.preemptions,
		Spawned:     s.spawned,
		Reaped:      s.reaped,
		Ready:       s.queue.len(),
		Live:        s.live,
	}
}

// ReadyPIDs returns the rotation order, for diagnostics and snapshots.
func (s *Scheduler) ReadyPIDs() []uint64 { return s.queue.pids() }

// runNext dispatches the next READY process, or idle when none, and waits
// for it to hand the CPU back.
func (s *Scheduler) runNext() {
	restore := s.dispatcher.Mask()
	next := s.queue.dequeueReady()
	restore()
	if next == nil {
		next = s.idle
	}

	next.State = proc.StateRunning
	next.SliceLeft = s.timeSlice
	s.current = next
	s.switches++

	t := s.tasks[next.PID]
	if !t.started {
		t.started = true
		go s.stub(t)
	}
	t.gate <- struct{}{}
	<-s.cpuGate

	prev := s.current
	s.current = nil
	switch prev.State {
	case proc.StateReady:
		if prev != s.idle {
			restore := s.dispatcher.Mask()
			ok := s.queue.enqueue(prev)
			restore()
			if !ok {
				// cannot happen: the slot freed at dequeue is still ours
				klog.Errorf("sched: lost pid=%d, ready queue full", prev.PID)
			}
		}
	case proc.StateZombie:
		s.reap(prev)
	case proc.StateBlocked:
		// parked off-queue until Unblock
	}
}

// stub is the process goroutine body: wait for the first switch in, run
// the entry, and treat a plain return as exit.
func (s *Scheduler) stub(t *task) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(exitSignal); !ok {
				panic(r)
			}
		}
	}()
	<-t.gate
	t.p.Entry()
	s.Exit()
}

// Yield hands the CPU back voluntarily. The caller resumes here when the
// rotation comes back around.
func (s *Scheduler) Yield() {
	p := s.current
	if p == nil {
		klog.Errorf("sched: yield with no current process")
		return
	}
	if p.State == proc.StateRunning {
		p.State = proc.StateReady
	}
	t := s.tasks[p.PID]
	s.cpuGate <- struct{}{}
	<-t.gate
}

// Exit terminates the current process and hands the CPU away. It never
// returns to its caller.
func (s *Scheduler) Exit() {
	p := s.current
	if p == nil {
		klog.Fatalf("sched: exit with no current process")
		panic(exitSignal{})
	}
	klog.Infof("sched: pid=%d %q exiting", p.PID, p.Name)
	p.State = proc.StateZombie
	s.cpuGate <- struct{}{}
	panic(exitSignal{pid: p.PID})
}

// Block parks the current process off the rotation and hands the CPU away.
// It resumes after Unblock requeues the process.
func (s *Scheduler) Block() {
	p := s.current
	if p == nil {
		klog.Errorf("sched: block with no current process")
		return
	}
	p.State = proc.StateBlocked
	t := s.tasks[p.PID]
	s.cpuGate <- struct{}{}
	<-t.gate
}

// Unblock returns a BLOCKED process to the rotation tail.
func (s *Scheduler) Unblock(p *proc.Process) error {
	if p == nil || p.State != proc.StateBlocked {
		return fmt.Errorf("sched: unblock pid=%d in state %s", pidOf(p), stateOf(p))
	}
	p.State = proc.StateReady
	restore := s.dispatcher.Mask()
	ok := s.queue.enqueue(p)
	restore()
	if !ok {
		p.State = proc.StateBlocked
		return ErrTooManyProcesses
	}
	return nil
}

// Tick is the timer hook. It charges the current process and requests a
// reschedule when the quantum is spent and other work is ready; the switch
// itself waits for the next safepoint.
func (s *Scheduler) Tick(uint64) {
	p := s.current
	if p == nil {
		return
	}
	p.TotalTicks++
	if p.SliceLeft > 0 {
		p.SliceLeft--
	}
	if p == s.idle {
		if !s.queue.empty() {
			s.needResched = true
		}
		return
	}
	if p.SliceLeft == 0 && !s.queue.empty() {
		s.needResched = true
	}
}

// Checkpoint is the in-process safepoint: deliver pending interrupts and
// honor a requested reschedule. Long-running process bodies call it where
// a real CPU would take the interrupt.
func (s *Scheduler) Checkpoint() {
	if err := s.dispatcher.DispatchPending(&s.frame); err != nil {
		klog.Errorf("sched: dispatch at safepoint: %v", err)
	}
	if s.needResched {
		s.needResched = false
		s.preemptions++
		klog.Debugf("sched: preempting pid=%d", s.current.PID)
		s.Yield()
	}
}

func (s *Scheduler) reap(p *proc.Process) {
	delete(s.tasks, p.PID)
	if p == s.idle {
		s.idle = nil
	} else {
		s.live--
	}
	if err := s.manager.Reclaim(p); err != nil {
		klog.Errorf("sched: reap pid=%d: %v", p.PID, err)
	}
	s.reaped++
	if s.exitFunc != nil {
		s.exitFunc(p)
	}
}

// idleBody parks the CPU until work arrives or shutdown is requested.
func (s *Scheduler) idleBody() {
	for !s.stopping {
		if s.idleFunc != nil {
			s.idleFunc()
		}
		s.Checkpoint()
		s.Yield()
	}
}

func pidOf(p *proc.Process) uint64 {
	if p == nil {
		return 0
	}
	return p.PID
}

func stateOf(p *proc.Process) proc.State {
	if p == nil {
		return proc.StateZombie
	}
	return p.State
}
