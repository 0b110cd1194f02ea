package page

import (
	"errors"
	"fmt"
	"io"

	"github.com/viant/kernos/klog"
)

const (
	// Size is the page frame size in bytes.
	Size = 4096
	// Shift is log2(Size).
	Shift = 12
	// MaxOrder is the largest block order: Size<<MaxOrder = 4MB.
	MaxOrder = 10
)

var (
	// ErrSealed reports a ReserveRegion call after the first Alloc/Free.
	ErrSealed = errors.New("page: allocator already active, reservation refused")
	// ErrRange reports an address outside the managed region.
	ErrRange = errors.New("page: address out of range")
	// ErrAlignment reports an address not aligned to its order's block size.
	ErrAlignment = errors.New("page: misaligned address")
	// ErrOrder reports an order above MaxOrder.
	ErrOrder = errors.New("page: order exceeds maximum")
	// ErrDoubleFree reports a block freed while already on a free list.
	ErrDoubleFree = errors.New("page: double free")
	// ErrReserved reports an operation touching a reserved region.
	ErrReserved = errors.New("page: address in reserved region")
)

// Masker scopes an interrupt-masked critical section: the returned func
// restores the prior mask. The zero allocator uses a no-op masker.
type Masker interface {
	Mask() func()
}

type noopMasker struct{}

func (noopMasker) Mask() func() { return func() {} }

// Range is an inclusive-start, exclusive-end address range.
type Range struct {
	Start uint64
	End   uint64
}

func (r Range) contains(addr uint64) bool { return addr >= r.Start && addr < r.End }

// freeList is a LIFO stack of block addresses with O(1) membership and
// arbitrary removal (swap-with-last), so buddy extraction stays O(1).
type freeList struct {
	addrs []uint64
	index map[uint64]int
}

func newFreeList() *freeList {
	return &freeList{index: make(map[uint64]int)}
}

func (l *freeList) push(addr uint64) {
	l.index[addr] = len(l.addrs)
	l.addrs = append(l.addrs, addr)
}

func (l *freeList) pop() (uint64, bool) {
	if len(l.addrs) == 0 {
		return 0, false
	}
	addr := l.addrs[len(l.addrs)-1]
	l.addrs = l.addrs[:len(l.addrs)-1]
	delete(l.index, addr)
	return addr, true
}

func (l *freeList) remove(addr uint64) bool {
	i, ok := l.index[addr]
	if !ok {
		return false
	}
	last := len(l.addrs) - 1
	l.addrs[i] = l.addrs[last]
	l.index[l.addrs[i]] = i
	l.addrs = l.addrs[:last]
	delete(l.index, addr)
	return true
}

func (l *freeList) contains(addr uint64) bool {
	_, ok := l.index[addr]
	return ok
}

func (l *freeList) len() int { return len(l.addrs) }

// Stats describes page accounting. TotalPages == FreePages + UsedPages +
// ReservedPages holds after every operation.
type Stats struct {
	TotalPages    uint64 `json:"totalPages"`
	FreePages     uint64 `json:"freePages"`
	UsedPages     uint64 `json:"usedPages"`
	ReservedPages uint64 `json:"reservedPages"`
}

// Allocator is a buddy allocator over [memStart, memEnd). The region up to
// kernelEnd is reserved at construction.
type Allocator struct {
	memStart uint64
	memEnd   uint64

	freeLists [MaxOrder + 1]*freeList
	reserved  []Range

	totalPages    uint64
	freePages     uint64
	usedPages     uint64
	reservedPages uint64

	sealed bool
	masker Masker
}

// Option customises the allocator.
type Option func(*Allocator)

// WithMasker installs the interrupt-mask scope used around free-list
// mutation.
func WithMasker(m Masker) Option {
	return func(a *Allocator) { a.masker = m }
}

func alignUp(addr uint64) uint64   { return (addr + Size - 1) &^ (Size - 1) }
func alignDown(addr uint64) uint64 { return addr &^ (Size - 1) }

// New carves [memStart, memEnd) into maximal aligned blocks, excludes
// [memStart, kernelEnd) and seeds the per-order free lists with the rest.
func New(memStart, memEnd, kernelEnd uint64, options ...Option) *Allocator {
	memStart = alignUp(memStart)
	memEnd = alignDown(memEnd)
	kernelEnd = alignUp(kernelEnd)

	a := &Allocator{
		memStart: memStart,
		memEnd:   memEnd,
		masker:   noopMasker{},
	}
	for _, option := range options {
		option(a)
	}
	for i := range a.freeLists {
		a.freeLists[i] = newFreeList()
	}

	a.totalPages = (memEnd - memStart) >> Shift
	if kernelEnd > memStart {
		a.reserved = append(a.reserved, Range{Start: memStart, End: kernelEnd})
		a.reservedPages = (kernelEnd - memStart) >> Shift
	}
	a.seed(kernelEnd, memEnd)

	klog.Infof("page: managing %d pages in [%#x, %#x), %d free, %d reserved",
		a.totalPages, memStart, memEnd, a.freePages, a.reservedPages)
	return a
}

// seed adds [start, end) to the free lists as maximal aligned blocks.
func (a *Allocator) seed(start, end uint64) {
	current := start
	for current < end {
		placed := false
		for order := MaxOrder; order >= 0; order-- {
			blockSize := uint64(Size) << order
			if end-current >= blockSize && current&(blockSize-1) == 0 {
				a.freeLists[order].push(current)
				a.freePages += 1 << order
				current += blockSize
				placed = true
				break
			}
		}
		if !placed {
			current += Size
		}
	}
}

// ReserveRegion permanently excludes [start, end) from allocation and from
// future merges. It may only be called before the first Alloc or Free.
func (a *Allocator) ReserveRegion(start, end uint64) error {
	if a.sealed {
		klog.Errorf("page: ReserveRegion(%#x, %#x) after first allocation", start, end)
		return ErrSealed
	}
	start = alignDown(start)
	end = alignUp(end)
	if start >= end {
		return nil
	}

	// Pull every free block overlapping the range off the lists, then
	// re-seed the fragments that fall outside it.
	for order := MaxOrder; order >= 0; order-- {
		blockSize := uint64(Size) << order
		list := a.freeLists[order]
		for _, addr := range append([]uint64(nil), list.addrs...) {
			if addr >= end || addr+blockSize <= start {
				continue
			}
			list.remove(addr)
			a.freePages -= 1 << order
			if addr < start {
				a.seed(addr, start)
			}
			if addr+blockSize > end {
				a.seed(end, addr+blockSize)
			}
		}
	}
	reservedBefore := a.reservedPages
	a.reservedPages = a.totalPages - a.freePages - a.usedPages
	a.reserved = append(a.reserved, Range{Start: start, End: end})
	klog.Infof("page: reserved [%#x, %#x) (%d pages)", start, end, a.reservedPages-reservedBefore)
	return nil
}

func (a *Allocator) inReserved(addr uint64) bool {
	for _, r := range a.reserved {
		if r.contains(addr) {
			return true
		}
	}
	return false
}

// Alloc returns the address of a free block of order pages, or 0 when no
// block of that or any higher order exists. Cost is O(MaxOrder).
func (a *Allocator) Alloc(order uint) uint64 {
	if order > MaxOrder {
		klog.Errorf("page: allocation order %d exceeds maximum %d", order, MaxOrder)
		return 0
	}
	restore := a.masker.Mask()
	defer restore()
	a.sealed = true

	for current := order; current <= MaxOrder; current++ {
		addr, ok := a.freeLists[current].pop()
		if !ok {
			continue
		}
		// Split down, returning the high half of each split to its list.
		for current > order {
			current--
			a.freeLists[current].push(addr + uint64(Size)<<current)
		}
		a.freePages -= 1 << order
		a.usedPages += 1 << order
		return addr
	}
	klog.Warnf("page: out of memory (order %d)", order)
	return 0
}

// Free returns a block of order pages at addr to the allocator, merging
// with its buddy repeatedly while the buddy is free, same order and not
// reserved. Cost is O(MaxOrder).
func (a *Allocator) Free(addr uint64, order uint) error {
	if order > MaxOrder {
		klog.Errorf("page: free order %d exceeds maximum %d", order, MaxOrder)
		return ErrOrder
	}
	if addr < a.memStart || addr >= a.memEnd {
		klog.Errorf("page: free of out-of-range address %#x", addr)
		return ErrRange
	}
	if addr&((uint64(Size)<<order)-1) != 0 {
		klog.Errorf("page: free of %#x misaligned for order %d", addr, order)
		return ErrAlignment
	}
	if a.inReserved(addr) {
		klog.Errorf("page: free of reserved address %#x", addr)
		return ErrReserved
	}

	restore := a.masker.Mask()
	defer restore()
	a.sealed = true

	// The block may sit on a higher-order list if it was already freed and
	// merged, so membership is checked across all orders.
	for o := 0; o <= MaxOrder; o++ {
		if a.freeLists[o].contains(addr) {
			klog.Errorf("page: double free of %#x (order %d)", addr, order)
			return ErrDoubleFree
		}
	}
	if a.usedPages < 1<<order {
		klog.Errorf("page: free of %#x (order %d) exceeds outstanding allocations", addr, order)
		return ErrDoubleFree
	}

	a.usedPages -= 1 << order
	for order < MaxOrder {
		buddy := addr ^ uint64(Size)<<order
		if buddy < a.memStart || buddy >= a.memEnd || a.inReserved(buddy) {
			break
		}
		if !a.freeLists[order].remove(buddy) {
			break
		}
		a.freePages -= 1 << order
		if buddy < addr {
			addr = buddy
		}
		order++
	}
	a.freeLists[order].push(addr)
	a.freePages += 1 << order
	return nil
}

// Stats returns current page accounting.
func (a *Allocator) Stats() Stats {
	return Stats{
		TotalPages:    a.totalPages,
		FreePages:     a.freePages,
		UsedPages:     a.usedPages,
		ReservedPages: a.reservedPages,
	}
}

// DumpState writes a per-order summary of the free lists.
func (a *Allocator) DumpState(w io.Writer) {
	fmt.Fprintf(w, "=== page allocator ===\n")
	fmt.Fprintf(w, "memory: %#x - %#x\n", a.memStart, a.memEnd)
	s := a.Stats()
	fmt.Fprintf(w, "pages: total=%d free=%d used=%d reserved=%d\n",
		s.TotalPages, s.FreePages, s.UsedPages, s.ReservedPages)
	for order := 0; order <= MaxOrder; order++ {
		if n := a.freeLists[order].len(); n > 0 {
			fmt.Fprintf(w, "  order %2d (%6d KB): %d blocks\n",
				order, (Size<<order)/1024, n)
		}
	}
}
