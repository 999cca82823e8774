package arena

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RoundsUpToPageSize(t *testing.T) {
	a := New(1)
	assert.GreaterOrEqual(t, len(a.head.data), 1)
	assert.Equal(t, len(a.head.data), a.total)
}

func TestAlloc_WithinSingleRegion(t *testing.T) {
	a := New(4096)
	b1, err := a.Alloc(16)
	require.NoError(t, err)
	require.Len(t, b1, 16)

	b2, err := a.Alloc(16)
	require.NoError(t, err)
	require.Len(t, b2, 16)

	// Distinct backing memory within the same region.
	b1[0] = 0xAA
	assert.NotEqual(t, b1[0], b2[0])
}

func TestAlloc_GrowsNewRegionWhenFull(t *testing.T) {
	a := New(64) // small, page-rounded region
	first, err := a.Alloc(len(a.head.data))
	require.NoError(t, err)
	require.NotNil(t, first)

	// Region is now full; next alloc must spill into a new region.
	second, err := a.Alloc(8)
	require.NoError(t, err)
	require.Len(t, second, 8)
	assert.NotNil(t, a.head.next)
}

func TestAllocAligned_RespectsAlignment(t *testing.T) {
	a := New(4096)
	_, err := a.Alloc(3) // misalign the cursor
	require.NoError(t, err)

	b, err := a.AllocAligned(8, 16)
	require.NoError(t, err)
	require.Len(t, b, 8)

	offset := uintptr(unsafe.Pointer(&b[0])) - uintptr(unsafe.Pointer(&a.head.data[0]))
	assert.Zero(t, offset%16)
}

func TestReset_ReclaimsExtraRegionsButKeepsHead(t *testing.T) {
	a := New(64)
	for i := 0; i < 4; i++ {
		_, err := a.Alloc(len(a.head.data) / 2)
		require.NoError(t, err)
	}
	require.NotNil(t, a.head.next, "test setup should have spilled into extra regions")

	a.Reset()
	assert.Nil(t, a.head.next)
	assert.Zero(t, a.head.used)
	assert.Equal(t, a.head, a.last)
}

func TestMarkRestore_ReclaimsOnlyAllocationsAfterMark(t *testing.T) {
	a := New(4096)
	_, err := a.Alloc(32)
	require.NoError(t, err)

	m := a.Mark()
	_, err = a.Alloc(512)
	require.NoError(t, err)
	_, err = a.Alloc(512)
	require.NoError(t, err)

	usedBeforeRestore := a.head.used
	a.Restore(m)
	assert.Less(t, a.head.used, usedBeforeRestore)
	assert.Equal(t, 32, a.head.used)

	// Space freed by Restore is reusable.
	b, err := a.Alloc(256)
	require.NoError(t, err)
	require.Len(t, b, 256)
}

func TestMarkRestore_AcrossRegionBoundary(t *testing.T) {
	a := New(64)
	m := a.Mark()

	for i := 0; i < 8; i++ {
		_, err := a.Alloc(len(a.head.data) / 4)
		require.NoError(t, err)
	}
	require.NotNil(t, a.head.next, "test setup should have spilled into extra regions")

	a.Restore(m)
	assert.Nil(t, a.head.next)
	assert.Equal(t, a.head, a.last)
}

func TestWithMaxBytes_ReturnsErrOutOfMemory(t *testing.T) {
	a := New(64, WithMaxBytes(64))
	_, err := a.Alloc(len(a.head.data))
	require.NoError(t, err)

	_, err = a.Alloc(1)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestStrdup_CopiesIntoArena(t *testing.T) {
	a := New(4096)
	src := "hello warcry"
	got, err := a.Strdup(src)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestCalloc_ZeroesBytes(t *testing.T) {
	a := New(4096)
	b, err := a.Calloc(8, 4)
	require.NoError(t, err)
	require.Len(t, b, 32)
	for _, v := range b {
		assert.Zero(t, v)
	}
}

func TestCalloc_OverflowRejected(t *testing.T) {
	a := New(4096)
	_, err := a.Calloc(1<<62, 1<<62)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestRealloc_GrowsInPlaceForTailAllocation(t *testing.T) {
	a := New(4096)
	b, err := a.Alloc(16)
	require.NoError(t, err)
	copy(b, "0123456789abcdef")

	usedBefore := a.head.used
	grown, err := a.Realloc(b, 32)
	require.NoError(t, err)
	require.Len(t, grown, 32)
	assert.Equal(t, "0123456789abcdef", string(grown[:16]))
	assert.Greater(t, a.head.used, usedBefore)
}

func TestRealloc_ShrinkIsANoCopySlice(t *testing.T) {
	a := New(4096)
	b, err := a.Alloc(32)
	require.NoError(t, err)
	shrunk, err := a.Realloc(b, 8)
	require.NoError(t, err)
	assert.Len(t, shrunk, 8)
}

func TestRealloc_NonTailAllocationCopies(t *testing.T) {
	a := New(4096)
	first, err := a.Alloc(16)
	require.NoError(t, err)
	copy(first, "first-allocation")

	_, err = a.Alloc(16) // pushes first out of tail position
	require.NoError(t, err)

	grown, err := a.Realloc(first, 64)
	require.NoError(t, err)
	assert.Equal(t, "first-allocation", string(grown[:16]))
}
