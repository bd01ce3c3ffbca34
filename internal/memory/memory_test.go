package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoaded(t *testing.T, size, stackSize uint64, image []byte) *Memory {
	t.Helper()
	m := New(size, stackSize)
	require.NoError(t, m.Load(image))
	return m
}

func TestPushPopSymmetry(t *testing.T) {
	m := newLoaded(t, 4096, 1024, nil)
	sp := m.StackStart()

	values := []uint64{0, 1, 0xFFFFFFFFFFFFFFFF, 0x2A, 0xDEADBEEF}
	for _, v := range values {
		newSP, err := m.Push(sp, v)
		require.NoError(t, err)
		sp = newSP
	}
	for i := len(values) - 1; i >= 0; i-- {
		newSP, value, err := m.Pop(sp)
		require.NoError(t, err)
		assert.Equal(t, values[i], value)
		sp = newSP
	}
	assert.Equal(t, m.StackStart(), sp)
}

func TestReadWriteRoundTrip(t *testing.T) {
	m := newLoaded(t, 4096, 1024, make([]byte, 16))
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, m.Write(4, data))
	got, err := m.Read(4, uint64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteOutOfBoundsFaults(t *testing.T) {
	m := newLoaded(t, 64, 16, nil)
	err := m.Write(100, []byte{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccessViolation)
}

func TestAllocatorNoOverlapAfterFrees(t *testing.T) {
	m := newLoaded(t, 4096, 1024, nil)

	sizes := []uint64{16, 32, 8, 64, 4}
	addrs := make([]uint64, len(sizes))
	for i, s := range sizes {
		a, err := m.Malloc(s)
		require.NoError(t, err)
		addrs[i] = a
	}

	// Verify pairwise non-overlap.
	for i := range addrs {
		for j := range addrs {
			if i == j {
				continue
			}
			iEnd := addrs[i] + sizes[i]
			jEnd := addrs[j] + sizes[j]
			overlap := addrs[i] < jEnd && addrs[j] < iEnd
			assert.False(t, overlap, "allocations %d and %d overlap", i, j)
		}
	}

	for i := len(addrs) - 1; i >= 0; i-- {
		require.NoError(t, m.Free(addrs[i]))
	}

	// Allocator state should be equivalent to the initial state: a single
	// allocation should land exactly at the heap start again.
	a, err := m.Malloc(16)
	require.NoError(t, err)
	assert.Equal(t, m.heapStart, a)
}

func TestDoubleFreeAndUnknownFree(t *testing.T) {
	m := newLoaded(t, 4096, 1024, nil)
	addr, err := m.Malloc(16)
	require.NoError(t, err)

	require.NoError(t, m.Free(addr))
	err = m.Free(addr)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDoubleFree)

	err = m.Free(0xFFFF)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownFree)
}

func TestReallocGrowsInPlaceWhenPossible(t *testing.T) {
	m := newLoaded(t, 4096, 1024, nil)
	a, err := m.Malloc(16)
	require.NoError(t, err)

	// Nothing follows a, so growth in place should succeed.
	grown, err := m.Realloc(a, 64)
	require.NoError(t, err)
	assert.Equal(t, a, grown)
}

func TestReallocMovesAndCopiesWhenBlocked(t *testing.T) {
	m := newLoaded(t, 4096, 1024, nil)
	a, err := m.Malloc(16)
	require.NoError(t, err)
	require.NoError(t, m.Write(a, []byte{1, 2, 3, 4}))

	// Allocate immediately after a so growth in place is blocked.
	_, err = m.Malloc(8)
	require.NoError(t, err)

	moved, err := m.Realloc(a, 64)
	require.NoError(t, err)
	assert.NotEqual(t, a, moved)

	got, err := m.Read(moved, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	// Realloc already released a, so freeing it again is a double free.
	err = m.Free(a)
	assert.ErrorIs(t, err, ErrDoubleFree)
}

func TestOutOfHeap(t *testing.T) {
	m := newLoaded(t, 64, 32, nil)
	_, err := m.Malloc(1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfHeap)
}

func TestMemQuery(t *testing.T) {
	m := newLoaded(t, 256, 64, make([]byte, 16))
	assert.Equal(t, RegionStatic, m.MemQuery(0))
	assert.Equal(t, RegionHeap, m.MemQuery(16))
	assert.Equal(t, RegionStack, m.MemQuery(m.StackStart()))
	assert.Equal(t, RegionInvalid, m.MemQuery(1000))
}

func TestMemsetAndMemcpy(t *testing.T) {
	m := newLoaded(t, 256, 64, nil)
	require.NoError(t, m.Memset(0, 0xAB, 16))
	got, err := m.Read(0, 16)
	require.NoError(t, err)
	for _, b := range got {
		assert.Equal(t, byte(0xAB), b)
	}

	require.NoError(t, m.Memcpy(32, 0, 16))
	got2, err := m.Read(32, 16)
	require.NoError(t, err)
	assert.Equal(t, got, got2)
}

func TestImageTooLargeRejected(t *testing.T) {
	m := New(64, 32)
	err := m.Load(make([]byte, 100))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccessViolation)
}
