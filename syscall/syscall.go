package syscall

import (
	"io"

	"github.com/viant/kernos/irq"
	"github.com/viant/kernos/klog"
	"github.com/viant/kernos/sched"
)

// Call numbers.
const (
	NumExit = iota
	NumWrite
	NumRead
	NumGetPID
	NumYield
	// MaxCalls is the dispatch table size; 5..31 are reserved.
	MaxCalls = 32
)

// Descriptor numbers accepted by write.
const (
	fdStdout = 1
	fdStderr = 2
)

// errResult is the all-ones error return.
const errResult = ^uint64(0)

// Regs is the register window a call sees: arguments in X0..X5, the call
// number in X8.
type Regs struct {
	X0, X1, X2, X3, X4, X5 uint64
	X8                     uint64
}

// Handler implements one call. The return value lands in x0.
type Handler func(r *Regs) uint64

// Memory reads simulated RAM; write copies user buffers through it.
type Memory interface {
	Slice(addr, size uint64) []byte
}

// Stats counts dispatched calls.
type Stats struct {
	Total   uint64           `json:"total"`
	Invalid uint64           `json:"invalid"`
	PerCall [MaxCalls]uint64 `json:"perCall"`
}

// Service owns the dispatch table.
type Service struct {
	scheduler *sched.Scheduler
	memory    Memory
	console   io.Writer
	table     [MaxCalls]Handler
	stats     Stats
}

// Option customises the service.
type Option func(*Service)

// WithConsole sets the sink behind the stdout and stderr descriptors.
func WithConsole(w io.Writer) Option {
	return func(s *Service) {
		s.console = w
	}
}

// WithMemory sets the simulated RAM user buffers are read from.
func WithMemory(m Memory) Option {
	return func(s *Service) {
		s.memory = m
	}
}

// New builds the service with the five implemented calls installed.
func New(scheduler *sched.Scheduler, options ...Option) *Service {
	s := &Service{scheduler: scheduler, console: io.Discard}
	for _, option := range options {
		option(s)
	}
	s.table[NumExit] = s.sysExit
	s.table[NumWrite] = s.sysWrite
	s.table[NumRead] = s.sysRead
	s.table[NumGetPID] = s.sysGetPID
	s.table[NumYield] = s.sysYield
	klog.Infof("syscall: implemented calls: exit, write, read, getpid, yield")
	return s
}

// Register installs a handler on a reserved number, for external
// collaborators such as the VFS front end.
func (s *Service) Register(num uint64, handler Handler) bool {
	if num >= MaxCalls || s.table[num] != nil {
		return false
	}
	s.table[num] = handler
	return true
}

// Invoke dispatches one call.
func (s *Service) Invoke(r *Regs) uint64 {
	if r.X8 >= MaxCalls {
		klog.Errorf("syscall: invalid number %d", r.X8)
		s.stats.Invalid++
		return errResult
	}
	handler := s.table[r.X8]
	if handler == nil {
		klog.Errorf("syscall: unimplemented number %d", r.X8)
		s.stats.Invalid++
		return errResult
	}
	s.stats.Total++
	s.stats.PerCall[r.X8]++
	return handler(r)
}

// HandleSVC adapts the exception frame to Invoke; register it with the
// dispatcher's SVC hook. The result replaces x0 in the frame.
func (s *Service) HandleSVC(frame *irq.Frame) {
	r := Regs{
		X0: frame.X[0], X1: frame.X[1], X2: frame.X[2],
		X3: frame.X[3], X4: frame.X[4], X5: frame.X[5],
		X8: frame.X[8],
	}
	frame.X[0] = s.Invoke(&r)
}

// Stats returns the call counters.
func (s *Service) Stats() Stats { return s.stats }

func (s *Service) sysExit(r *Regs) uint64 {
	p := s.scheduler.Current()
	if p == nil {
		klog.Errorf("syscall: exit with no current process")
		return errResult
	}
	klog.Infof("syscall: pid=%d exit status %d", p.PID, int64(r.X0))
	s.scheduler.Exit()
	return 0 // unreachable
}

func (s *Service) sysWrite(r *Regs) uint64 {
	fd, addr, count := r.X0, r.X1, r.X2
	if fd != fdStdout && fd != fdStderr {
		klog.Errorf("syscall: write to unsupported fd %d", fd)
		return errResult
	}
	if count == 0 {
		return 0
	}
	if addr == 0 || s.memory == nil {
		klog.Errorf("syscall: write from invalid buffer %#x", addr)
		return errResult
	}
	buf := s.memory.Slice(addr, count)
	if buf == nil {
		klog.Errorf("syscall: write buffer %#x+%d outside ram", addr, count)
		return errResult
	}
	n, err := s.console.Write(buf)
	if err != nil {
		klog.Errorf("syscall: console write: %v", err)
		return errResult
	}
	return uint64(n)
}

// sysRead has no input source wired; it reports end of file.
func (s *Service) sysRead(r *Regs) uint64 {
	return 0
}

func (s *Service) sysGetPID(r *Regs) uint64 {
	p := s.scheduler.Current()
	if p == nil {
		return errResult
	}
	return p.PID
}

func (s *Service) sysYield(r *Regs) uint64 {
	s.scheduler.Yield()
	return 0
}
