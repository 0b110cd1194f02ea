package heap

import (
	"errors"
	"fmt"
	"io"

	"github.com/viant/kernos/internal/arena"
	"github.com/viant/kernos/klog"
)

const (
	// HeaderSize is the per-block bookkeeping overhead charged against the
	// region, mirroring an in-band header without storing one.
	HeaderSize = 32
	// minBlockSize is the smallest block worth splitting off.
	minBlockSize = HeaderSize + 16
)

var (
	// ErrInvalidFree reports a pointer that is not a live heap allocation:
	// out of range, interior, or already freed.
	ErrInvalidFree = errors.New("heap: invalid or already freed pointer")
)

// Masker scopes an interrupt-masked critical section; see mem/page.
type Masker interface {
	Mask() func()
}

type noopMasker struct{}

func (noopMasker) Mask() func() { return func() {} }

// Memory exposes the bytes backing an address range, used for zero-fill
// and reallocation copies. When absent the allocator backs itself.
type Memory interface {
	Slice(addr, size uint64) []byte
}

type ownedMemory struct {
	base uint64
	data []byte
}

func (m *ownedMemory) Slice(addr, size uint64) []byte {
	off := addr - m.base
	return m.data[off : off+size]
}

// block is one span of the heap. size includes HeaderSize; payload starts
// at addr+HeaderSize. Blocks form an address-ordered chain with no gaps.
type block struct {
	addr uint64
	size uint64
	free bool
	prev arena.Handle
	next arena.Handle
}

// Stats describes heap accounting, exposed for diagnostics only.
type Stats struct {
	TotalBytes uint64 `json:"totalBytes"`
	UsedBytes  uint64 `json:"usedBytes"`
	FreeBytes  uint64 `json:"freeBytes"`
	Blocks     uint64 `json:"blocks"`
	Allocs     uint64 `json:"allocs"`
	Frees      uint64 `json:"frees"`
}

// Allocator is a first-fit heap over [start, start+size).
type Allocator struct {
	start uint64
	size  uint64

	blocks *arena.Arena[block]
	first  arena.Handle
	live   map[uint64]arena.Handle // payload address -> block handle

	memory Memory
	masker Masker

	numAllocs uint64
	numFrees  uint64
}

// Option customises the allocator.
type Option func(*Allocator)

// WithMasker installs the interrupt-mask scope used around chain mutation.
func WithMasker(m Masker) Option {
	return func(a *Allocator) { a.masker = m }
}

// WithMemory backs the heap with externally owned bytes (the machine RAM).
func WithMemory(m Memory) Option {
	return func(a *Allocator) { a.memory = m }
}

// New establishes a heap with one free block spanning the whole region.
func New(start, size uint64, options ...Option) *Allocator {
	a := &Allocator{
		start:  start,
		size:   size,
		blocks: arena.New[block](int(size/minBlockSize) + 1),
		live:   make(map[uint64]arena.Handle),
		masker: noopMasker{},
	}
	for _, option := range options {
		option(a)
	}
	if a.memory == nil {
		a.memory = &ownedMemory{base: start, data: make([]byte, size)}
	}
	a.first, _ = a.blocks.Alloc(block{
		addr: start,
		size: size,
		free: true,
		prev: arena.None,
		next: arena.None,
	})
	klog.Infof("heap: region [%#x, %#x), %d KB", start, start+size, size/1024)
	return a
}

// need returns the rounded block size for a payload request.
func need(size uint64) uint64 {
	total := (size+7)&^7 + HeaderSize
	if total < minBlockSize {
		total = minBlockSize
	}
	return total
}

// Alloc returns the payload address of a block with at least size usable
// bytes, or 0 when no block fits.
func (a *Allocator) Alloc(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	restore := a.masker.Mask()
	defer restore()

	total := need(size)
	for h := a.first; h != arena.None; {
		blk := a.blocks.Get(h)
		if !blk.free || blk.size < total {
			h = blk.next
			continue
		}
		if blk.size >= total+minBlockSize {
			a.split(h, total)
		}
		blk.free = false
		a.numAllocs++
		payload := blk.addr + HeaderSize
		a.live[payload] = h
		return payload
	}
	klog.Warnf("heap: out of memory (requested %d bytes)", size)
	return 0
}

// split carves blk into an allocated prefix of total bytes and a free
// remainder block.
func (a *Allocator) split(h arena.Handle, total uint64) {
	blk := a.blocks.Get(h)
	rest, ok := a.blocks.Alloc(block{
		addr: blk.addr + total,
		size: blk.size - total,
		free: true,
		prev: h,
		next: blk.next,
	})
	if !ok {
		// Block record arena exhausted; hand out the whole block instead.
		return
	}
	if blk.next != arena.None {
		a.blocks.Get(blk.next).prev = rest
	}
	blk.next = rest
	blk.size = total
}

// Free releases the allocation at payload address ptr, coalescing with the
// address-adjacent predecessor and successor when they are free. A zero
// pointer is a no-op.
func (a *Allocator) Free(ptr uint64) error {
	if ptr == 0 {
		return nil
	}
	restore := a.masker.Mask()
	defer restore()

	h, ok := a.live[ptr]
	if !ok {
		klog.Errorf("heap: invalid free of %#x", ptr)
		return ErrInvalidFree
	}
	delete(a.live, ptr)

	blk := a.blocks.Get(h)
	blk.free = true
	a.numFrees++

	// Absorb the successor first so the predecessor merge sees the final span.
	if next := blk.next; next != arena.None && a.blocks.Get(next).free {
		a.absorbNext(h)
	}
	if prev := blk.prev; prev != arena.None && a.blocks.Get(prev).free {
		a.absorbNext(prev)
	}
	return nil
}

// absorbNext merges h's successor into h. Both records must exist.
func (a *Allocator) absorbNext(h arena.Handle) {
	blk := a.blocks.Get(h)
	nh := blk.next
	nb := a.blocks.Get(nh)
	blk.size += nb.size
	blk.next = nb.next
	if nb.next != arena.None {
		a.blocks.Get(nb.next).prev = h
	}
	a.blocks.Release(nh)
}

// Realloc resizes the allocation at ptr to newSize. A zero ptr behaves as
// Alloc; a zero newSize frees and returns 0. The address is preserved when
// the block already fits, or when absorbing an immediately following free
// block makes it fit; otherwise the data moves.
func (a *Allocator) Realloc(ptr uint64, newSize uint64) uint64 {
	if ptr == 0 {
		return a.Alloc(newSize)
	}
	if newSize == 0 {
		_ = a.Free(ptr)
		return 0
	}
	h, ok := a.live[ptr]
	if !ok {
		klog.Errorf("heap: realloc of invalid pointer %#x", ptr)
		return 0
	}
	blk := a.blocks.Get(h)
	total := need(newSize)
	if blk.size >= total {
		return ptr
	}

	restore := a.masker.Mask()
	if next := blk.next; next != arena.None {
		if nb := a.blocks.Get(next); nb.free && blk.size+nb.size >= total {
			a.absorbNext(h)
			if blk.size >= total+minBlockSize {
				a.split(h, total)
			}
			restore()
			return ptr
		}
	}
	restore()

	newPtr := a.Alloc(newSize)
	if newPtr == 0 {
		return 0
	}
	oldUsable := blk.size - HeaderSize
	copySize := oldUsable
	if newSize < copySize {
		copySize = newSize
	}
	copy(a.memory.Slice(newPtr, copySize), a.memory.Slice(ptr, copySize))
	_ = a.Free(ptr)
	return newPtr
}

// Calloc allocates n*size bytes and zero-fills them, rejecting n*size
// overflow with a zero return.
func (a *Allocator) Calloc(n, size uint64) uint64 {
	if n == 0 || size == 0 {
		return 0
	}
	total := n * size
	if total/n != size {
		klog.Errorf("heap: calloc overflow (%d * %d)", n, size)
		return 0
	}
	ptr := a.Alloc(total)
	if ptr == 0 {
		return 0
	}
	buf := a.memory.Slice(ptr, total)
	for i := range buf {
		buf[i] = 0
	}
	return ptr
}

// UsableSize returns the payload capacity of the live allocation at ptr.
func (a *Allocator) UsableSize(ptr uint64) uint64 {
	h, ok := a.live[ptr]
	if !ok {
		return 0
	}
	return a.blocks.Get(h).size - HeaderSize
}

// Memory returns the byte store backing the heap region.
func (a *Allocator) Memory() Memory { return a.memory }

// Stats walks the block chain and returns current accounting.
func (a *Allocator) Stats() Stats {
	s := Stats{
		TotalBytes: a.size,
		Allocs:     a.numAllocs,
		Frees:      a.numFrees,
	}
	for h := a.first; h != arena.None; {
		blk := a.blocks.Get(h)
		s.Blocks++
		if blk.free {
			s.FreeBytes += blk.size
		} else {
			s.UsedBytes += blk.size
		}
		h = blk.next
	}
	return s
}

// DumpState writes the block chain for debugging.
func (a *Allocator) DumpState(w io.Writer) {
	s := a.Stats()
	fmt.Fprintf(w, "=== heap ===\n")
	fmt.Fprintf(w, "region: %#x - %#x (%d KB)\n", a.start, a.start+a.size, a.size/1024)
	fmt.Fprintf(w, "used=%d free=%d blocks=%d allocs=%d frees=%d\n",
		s.UsedBytes, s.FreeBytes, s.Blocks, s.Allocs, s.Frees)
	i := 0
	for h := a.first; h != arena.None && i < 20; i++ {
		blk := a.blocks.Get(h)
		state := "used"
		if blk.free {
			state = "free"
		}
		fmt.Fprintf(w, "  [%2d] %#x: %8d bytes (%s)\n", i, blk.addr, blk.size, state)
		h = blk.next
	}
}
