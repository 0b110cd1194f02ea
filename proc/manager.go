package proc

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/viant/kernos/internal/clock"
	"github.com/viant/kernos/internal/idgen"
	"github.com/viant/kernos/klog"
	"github.com/viant/kernos/mem/heap"
)

const (
	// DefaultStackSize matches the fixed per-process stack carve-out.
	DefaultStackSize = 4096
	// pcbRecordSize is the modelled heap footprint of one control block.
	pcbRecordSize = 192
	// defaultPState is SPSR for EL1h with interrupts open.
	defaultPState = 0x305
)

var (
	// ErrNilEntry reports a create call without a process body.
	ErrNilEntry = errors.New("proc: nil entry point")
	// ErrNoMemory reports a create that could not carve its regions.
	ErrNoMemory = errors.New("proc: out of memory")
)

// FileTableFactory builds the descriptor table for a new process.
type FileTableFactory func(pid uint64) (FileTable, error)

// Manager creates and reclaims processes. It carves PCB records and stacks
// from the kernel heap and keys every live process in its table.
type Manager struct {
	heap      *heap.Allocator
	table     *Table
	nextPID   uint64
	stackSize uint64
	files     FileTableFactory
}

// Option customises a manager.
type Option func(*Manager)

// WithStackSize overrides the per-process stack size.
func WithStackSize(size uint64) Option {
	return func(m *Manager) {
		m.stackSize = size
	}
}

// WithFileTableFactory supplies the descriptor table constructor.
func WithFileTableFactory(factory FileTableFactory) Option {
	return func(m *Manager) {
		m.files = factory
	}
}

// NewManager returns a manager carving from the heap allocator. PIDs start
// at 1 and are never reused.
func NewManager(heapAllocator *heap.Allocator, options ...Option) *Manager {
	m := &Manager{
		heap:      heapAllocator,
		table:     NewTable(),
		nextPID:   1,
		stackSize: DefaultStackSize,
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Create builds a READY process around entry. On any allocation failure the
// partial construction is rolled back and an error is returned; nothing is
// left behind for the scheduler to pick up.
func (m *Manager) Create(entry Entry, name string) (*Process, error) {
	if entry == nil {
		klog.Errorf("proc: create %q with nil entry", name)
		return nil, ErrNilEntry
	}
	pcbAddr := m.heap.Alloc(pcbRecordSize)
	if pcbAddr == 0 {
		klog.Errorf("proc: create %q: no memory for control block", name)
		return nil, ErrNoMemory
	}
	stackBase := m.heap.Alloc(m.stackSize)
	if stackBase == 0 {
		klog.Errorf("proc: create %q: no memory for stack", name)
		m.mustFree(pcbAddr)
		return nil, ErrNoMemory
	}

	pid := m.nextPID
	var files FileTable
	if m.files != nil {
		var err error
		if files, err = m.files(pid); err != nil {
			klog.Errorf("proc: create %q: file table: %v", name, err)
			m.mustFree(stackBase)
			m.mustFree(pcbAddr)
			return nil, fmt.Errorf("proc: create file table: %w", err)
		}
	}
	m.nextPID++

	p := &Process{
		PID:       pid,
		ID:        idgen.New(),
		Name:      name,
		State:     StateReady,
		Entry:     entry,
		StackBase: stackBase,
		StackSize: m.stackSize,
		pcbAddr:   pcbAddr,
		Files:     files,
		CreatedAt: clock.Now(),
	}
	// first switch in enters at the stack top with the entry as the
	// return address and a clean register file
	p.Context.SP = p.StackTop()
	p.Context.FP = p.Context.SP
	p.Context.LR = uint64(reflect.ValueOf(entry).Pointer())
	p.Context.PC = p.Context.LR
	p.Context.PState = defaultPState

	m.table.Save(p)
	klog.Debugf("proc: created pid=%d %q stack=%#x", p.PID, p.Name, p.StackBase)
	return p, nil
}

// Reclaim releases a zombie's stack, control block and file table and drops
// it from the table. Reclaiming a non-zombie is refused.
func (m *Manager) Reclaim(p *Process) error {
	if p == nil {
		return nil
	}
	if p.State != StateZombie {
		return fmt.Errorf("proc: reclaim pid=%d in state %s", p.PID, p.State)
	}
	if p.Files != nil {
		if err := p.Files.Close(); err != nil {
			klog.Warnf("proc: pid=%d file table close: %v", p.PID, err)
		}
		p.Files = nil
	}
	if p.StackBase != 0 {
		m.mustFree(p.StackBase)
		p.StackBase = 0
	}
	if p.pcbAddr != 0 {
		m.mustFree(p.pcbAddr)
		p.pcbAddr = 0
	}
	m.table.Delete(p.PID)
	klog.Debugf("proc: reclaimed pid=%d %q", p.PID, p.Name)
	return nil
}

// Table returns the pid lookup table.
func (m *Manager) Table() *Table { return m.table }

// Lookup returns the process with the pid, or nil.
func (m *Manager) Lookup(pid uint64) *Process {
	return m.table.Lookup(pid)
}

func (m *Manager) mustFree(addr uint64) {
	if err := m.heap.Free(addr); err != nil {
		klog.Errorf("proc: free %#x: %v", addr, err)
	}
}
