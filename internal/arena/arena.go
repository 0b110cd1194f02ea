// Package arena provides a fixed-capacity slot store addressed by integer
// handles. Linked structures (heap block chains, the scheduler ready queue)
// store handles instead of pointers, so a stale link can at worst reach a
// vacant slot, never freed memory.
package arena

// Handle identifies a slot. None marks an empty link.
type Handle = int32

// None is the nil handle.
const None Handle = -1

type slot[T any] struct {
	value T
	next  Handle // free-list link while vacant
	inUse bool
}

// Arena is a fixed-capacity slot store.
type Arena[T any] struct {
	slots    []slot[T]
	freeHead Handle
	used     int
}

// New creates an arena with the given capacity.
func New[T any](capacity int) *Arena[T] {
	a := &Arena[T]{
		slots:    make([]slot[T], capacity),
		freeHead: None,
	}
	for i := capacity - 1; i >= 0; i-- {
		a.slots[i].next = a.freeHead
		a.freeHead = Handle(i)
	}
	return a
}

// Alloc claims a slot and stores v in it. The second return is false when
// the arena is full.
func (a *Arena[T]) Alloc(v T) (Handle, bool) {
	if a.freeHead == None {
		return None, false
	}
	h := a.freeHead
	s := &a.slots[h]
	a.freeHead = s.next
	s.value = v
	s.next = None
	s.inUse = true
	a.used++
	return h, true
}

// Get returns the value stored at h, or nil when h is None or vacant.
func (a *Arena[T]) Get(h Handle) *T {
	if h < 0 || int(h) >= len(a.slots) || !a.slots[h].inUse {
		return nil
	}
	return &a.slots[h].value
}

// Release returns the slot at h to the free pool. Releasing None or an
// already vacant slot is a no-op.
func (a *Arena[T]) Release(h Handle) {
	if h < 0 || int(h) >= len(a.slots) || !a.slots[h].inUse {
		return
	}
	s := &a.slots[h]
	var zero T
	s.value = zero
	s.inUse = false
	s.next = a.freeHead
	a.freeHead = h
	a.used--
}

// Len returns the number of occupied slots.
func (a *Arena[T]) Len() int { return a.used }

// Cap returns the slot capacity.
func (a *Arena[T]) Cap() int { return len(a.slots) }
