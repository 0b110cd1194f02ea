package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocRelease(t *testing.T) {
	a := New[string](2)
	assert.Equal(t, 2, a.Cap())

	h1, ok := a.Alloc("first")
	require.True(t, ok)
	h2, ok := a.Alloc("second")
	require.True(t, ok)
	assert.Equal(t, 2, a.Len())

	_, ok = a.Alloc("third")
	assert.False(t, ok, "arena is full")

	require.NotNil(t, a.Get(h1))
	assert.Equal(t, "first", *a.Get(h1))

	a.Release(h1)
	assert.Nil(t, a.Get(h1))
	assert.Equal(t, 1, a.Len())

	// released slot is reusable
	h3, ok := a.Alloc("third")
	require.True(t, ok)
	assert.Equal(t, "third", *a.Get(h3))
	assert.Equal(t, "second", *a.Get(h2))
}

func TestStaleHandleIsSafe(t *testing.T) {
	a := New[int](1)
	h, ok := a.Alloc(42)
	require.True(t, ok)
	a.Release(h)

	assert.Nil(t, a.Get(h))
	assert.Nil(t, a.Get(None))
	assert.Nil(t, a.Get(99))
	a.Release(h) // double release is a no-op
	assert.Equal(t, 0, a.Len())
}
