package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/kernos/mem/page"
)

func TestNewLayout(t *testing.T) {
	l, err := NewLayout(Config{
		Base:       0x40000000,
		Size:       1 << 20, // 1MB
		KernelSize: 64 * 1024,
		HeapSize:   128 * 1024,
	})
	require.NoError(t, err)

	// Heap allocations land inside the heap region.
	p := l.Heap.Alloc(256)
	require.NotZero(t, p)
	assert.GreaterOrEqual(t, p, uint64(0x40000000+64*1024))
	assert.Less(t, p, uint64(0x40000000+(64+128)*1024))

	// Page allocations land above the heap.
	addr := l.Pages.Alloc(0)
	require.NotZero(t, addr)
	assert.GreaterOrEqual(t, addr, uint64(0x40000000+(64+128)*1024))

	// Kernel + heap pages are accounted as reserved.
	s := l.Pages.Stats()
	assert.Equal(t, uint64((64+128)*1024/page.Size), s.ReservedPages)
	assert.Equal(t, s.TotalPages, s.FreePages+s.UsedPages+s.ReservedPages)
}

func TestLayoutValidation(t *testing.T) {
	_, err := NewLayout(Config{Base: 0x40000000})
	assert.Error(t, err)

	_, err = NewLayout(Config{Base: 0x40000000, Size: 16 * 1024, KernelSize: 8 * 1024, HeapSize: 8 * 1024})
	assert.Error(t, err, "no pages left")
}

func TestRAMSlice(t *testing.T) {
	ram := NewRAM(0x1000, 0x1000)
	assert.Nil(t, ram.Slice(0x0, 16), "below base")
	assert.Nil(t, ram.Slice(0x1FF8, 16), "crosses the end")
	assert.Nil(t, ram.Slice(^uint64(0), 2), "address overflow")

	buf := ram.Slice(0x1000, 16)
	require.NotNil(t, buf)
	buf[0] = 0x7F
	assert.Equal(t, byte(0x7F), ram.Slice(0x1000, 1)[0], "same backing bytes")

	assert.Equal(t, uint64(0x1000), ram.Base())
	assert.Equal(t, uint64(0x1000), ram.Size())
}

func TestLayoutTotals(t *testing.T) {
	l, err := NewLayout(Config{
		Base:       0x40000000,
		Size:       1 << 20,
		KernelSize: 0,
		HeapSize:   0,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<20), l.TotalMemory())
	assert.Equal(t, l.TotalMemory(), l.FreeMemory())

	require.NotZero(t, l.Pages.Alloc(2))
	assert.Equal(t, uint64(4*page.Size), l.UsedMemory())
}
