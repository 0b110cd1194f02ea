package sched

import (
	"github.com/viant/kernos/internal/arena"
	"github.com/viant/kernos/klog"
	"github.com/viant/kernos/proc"
)

type node struct {
	p    *proc.Process
	next arena.Handle
}

// readyQueue is the circular ready list. Links are arena indices rather
// than pointers; the arena bounds the process count the way a static PCB
// pool would.
type readyQueue struct {
	nodes *arena.Arena[node]
	head  arena.Handle
	tail  arena.Handle
	count int
}

func newReadyQueue(capacity int) *readyQueue {
	return &readyQueue{
		nodes: arena.New[node](capacity),
		head:  arena.None,
		tail:  arena.None,
	}
}

// enqueue links p at the tail. Reports false when the arena is full.
func (q *readyQueue) enqueue(p *proc.Process) bool {
	h, ok := q.nodes.Alloc(node{p: p, next: arena.None})
	if !ok {
		return false
	}
	if q.head == arena.None {
		q.head = h
	} else {
		q.nodes.Get(q.tail).next = h
	}
	q.tail = h
	q.count++
	return true
}

// dequeueReady pops from the head until a READY process surfaces. Entries
// in any other state were retired elsewhere and are dropped.
func (q *readyQueue) dequeueReady() *proc.Process {
	for q.head != arena.None {
		h := q.head
		n := q.nodes.Get(h)
		p := n.p
		q.head = n.next
		if q.head == arena.None {
			q.tail = arena.None
		}
		q.nodes.Release(h)
		q.count--
		if p.State == proc.StateReady {
			return p
		}
		klog.Debugf("sched: dropping pid=%d from ready queue, state %s", p.PID, p.State)
	}
	return nil
}

func (q *readyQueue) empty() bool { return q.head == arena.None }

func (q *readyQueue) len() int { return q.count }

// pids returns the queued pids in rotation order, for diagnostics.
func (q *readyQueue) pids() []uint64 {
	out := make([]uint64, 0, q.count)
	for h := q.head; h != arena.None; h = q.nodes.Get(h).next {
		out = append(out, q.nodes.Get(h).p.PID)
	}
	return out
}
