// Package mem owns the simulated physical memory and its boot-time layout:
// the kernel image at the base, the fixed heap region after it, and the
// page-managed remainder.
package mem

import (
	"fmt"

	"github.com/viant/kernos/klog"
	"github.com/viant/kernos/mem/heap"
	"github.com/viant/kernos/mem/page"
)

// RAM models physical memory as a single byte slice starting at base.
type RAM struct {
	base uint64
	data []byte
}

// NewRAM allocates size bytes of simulated memory at base.
func NewRAM(base, size uint64) *RAM {
	return &RAM{base: base, data: make([]byte, size)}
}

// Base returns the first physical address.
func (r *RAM) Base() uint64 { return r.base }

// Size returns the memory size in bytes.
func (r *RAM) Size() uint64 { return uint64(len(r.data)) }

// Contains reports whether [addr, addr+size) lies inside the memory.
func (r *RAM) Contains(addr, size uint64) bool {
	return addr >= r.base && addr+size >= addr && addr+size <= r.base+uint64(len(r.data))
}

// Slice returns the bytes backing [addr, addr+size), or nil when the range
// falls outside the memory.
func (r *RAM) Slice(addr, size uint64) []byte {
	if !r.Contains(addr, size) {
		klog.Errorf("mem: access outside physical memory: [%#x, %#x)", addr, addr+size)
		return nil
	}
	off := addr - r.base
	return r.data[off : off+size]
}

// Masker is re-exported here so a single mask source can serve both
// allocators.
type Masker interface {
	Mask() func()
}

// Config describes the boot memory map.
type Config struct {
	Base       uint64       `yaml:"base" json:"base"`
	Size       uint64       `yaml:"size" json:"size"`
	KernelSize uint64       `yaml:"kernelSize" json:"kernelSize"`
	HeapSize   uint64       `yaml:"heapSize" json:"heapSize"`
	Reserved   []page.Range `yaml:"reserved" json:"reserved"`
}

// Validate returns an error describing an unusable memory map.
func (c *Config) Validate() error {
	if c.Size == 0 {
		return fmt.Errorf("mem: size must be > 0")
	}
	if c.KernelSize+c.HeapSize+page.Size > c.Size {
		return fmt.Errorf("mem: kernel (%d) + heap (%d) leave no pages in %d bytes",
			c.KernelSize, c.HeapSize, c.Size)
	}
	return nil
}

// Layout is the initialised memory subsystem.
type Layout struct {
	RAM   *RAM
	Heap  *heap.Allocator
	Pages *page.Allocator

	kernelEnd uint64
	heapStart uint64
	heapEnd   uint64
}

// Option customises the layout.
type Option func(*settings)

type settings struct {
	masker Masker
}

// WithMasker installs the interrupt-mask scope on both allocators.
func WithMasker(m Masker) Option {
	return func(s *settings) { s.masker = m }
}

// NewLayout carves RAM per cfg: kernel image, heap region, then seeds the
// page allocator with the remainder and applies explicit reservations.
func NewLayout(cfg Config, options ...Option) (*Layout, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var s settings
	for _, option := range options {
		option(&s)
	}

	ram := NewRAM(cfg.Base, cfg.Size)
	kernelEnd := cfg.Base + cfg.KernelSize
	heapStart := kernelEnd
	heapEnd := heapStart + cfg.HeapSize

	var heapOptions []heap.Option
	var pageOptions []page.Option
	if s.masker != nil {
		heapOptions = append(heapOptions, heap.WithMasker(s.masker))
		pageOptions = append(pageOptions, page.WithMasker(s.masker))
	}
	heapOptions = append(heapOptions, heap.WithMemory(ram))

	l := &Layout{
		RAM:       ram,
		Heap:      heap.New(heapStart, cfg.HeapSize, heapOptions...),
		Pages:     page.New(cfg.Base, cfg.Base+cfg.Size, heapEnd, pageOptions...),
		kernelEnd: kernelEnd,
		heapStart: heapStart,
		heapEnd:   heapEnd,
	}
	for _, r := range cfg.Reserved {
		if err := l.Pages.ReserveRegion(r.Start, r.End); err != nil {
			return nil, err
		}
	}
	klog.Infof("mem: kernel [%#x, %#x), heap [%#x, %#x), pages above",
		cfg.Base, kernelEnd, heapStart, heapEnd)
	return l, nil
}

// TotalMemory returns the page-managed memory size in bytes.
func (l *Layout) TotalMemory() uint64 { return l.Pages.Stats().TotalPages * page.Size }

// FreeMemory returns free page-managed bytes.
func (l *Layout) FreeMemory() uint64 { return l.Pages.Stats().FreePages * page.Size }

// UsedMemory returns allocated page-managed bytes.
func (l *Layout) UsedMemory() uint64 { return l.Pages.Stats().UsedPages * page.Size }
