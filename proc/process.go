package proc

import (
	"time"
)

// State is a process lifecycle state.
type State int

const (
	StateReady State = iota
	StateRunning
	StateBlocked
	StateZombie
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateBlocked:
		return "BLOCKED"
	case StateZombie:
		return "ZOMBIE"
	}
	return "INVALID"
}

// Context is the callee-saved register set preserved across a switch. It is
// valid only while the process is not running; the switch path saves into
// and restores from it.
type Context struct {
	X19, X20, X21, X22 uint64
	X23, X24, X25, X26 uint64
	X27, X28           uint64
	FP                 uint64 // x29
	LR                 uint64 // x30
	SP                 uint64
	PC                 uint64
	PState             uint64
}

// Entry is a process body. It runs until it returns, which the scheduler
// treats as an implicit exit.
type Entry func()

// FileTable is the per-process file descriptor table. It is opaque to this
// core; the VFS supplies implementations through a factory.
type FileTable interface {
	Close() error
}

// Process is the process control block.
type Process struct {
	PID   uint64
	ID    string // correlation id for tracing and logs
	Name  string
	State State

	Context Context
	Entry   Entry

	// stack and PCB record regions, carved from the kernel heap
	StackBase uint64
	StackSize uint64
	pcbAddr   uint64

	Files FileTable

	CreatedAt  time.Time
	SliceLeft  uint64 // ticks remaining in the current quantum
	TotalTicks uint64 // CPU ticks consumed over the lifetime
}

// StackTop returns the initial stack pointer, 16-byte aligned as the ABI
// requires.
func (p *Process) StackTop() uint64 {
	return (p.StackBase + p.StackSize) &^ 0xF
}
