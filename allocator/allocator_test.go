package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T) *BucketAllocator {
	t.Helper()
	a, err := New(16*1024*1024, []int64{4096, 8192, 16384}, 0)
	require.NoError(t, err)
	return a
}

func TestAllocate_ChoosesSmallestFittingClass(t *testing.T) {
	a := newTestAllocator(t)

	off, err := a.Allocate(100)
	require.NoError(t, err)
	assert.Zero(t, off%256)
	assert.Equal(t, int64(4096), a.SlotSize(100))
}

func TestAllocate_UsedSizeTracksSlotSizeNotRequestLength(t *testing.T) {
	a := newTestAllocator(t)

	for i := 0; i < 10; i++ {
		_, err := a.Allocate(4096)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(10*4096), a.UsedSize())
}

func TestFree_ReturnsSlotForReuse(t *testing.T) {
	a := newTestAllocator(t)

	off, err := a.Allocate(4096)
	require.NoError(t, err)
	require.NoError(t, a.Free(off))
	assert.Zero(t, a.UsedSize())

	off2, err := a.Allocate(4096)
	require.NoError(t, err)
	assert.Equal(t, off, off2, "freed slot should be reused")
}

func TestFree_RejectsMisalignedOffset(t *testing.T) {
	a := newTestAllocator(t)
	err := a.Free(100)
	assert.ErrorIs(t, err, ErrOffsetNotAligned)
}

func TestFree_DoubleFreeIsRejected(t *testing.T) {
	a := newTestAllocator(t)
	off, err := a.Allocate(4096)
	require.NoError(t, err)
	require.NoError(t, a.Free(off))
	assert.Error(t, a.Free(off))
}

func TestAllocate_RequestLargerThanLargestClassIsCacheFull(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.Allocate(1 << 20)
	var cfe *CacheFullError
	assert.ErrorAs(t, err, &cfe)
}

func TestAllocate_NoOverlapAcrossManyAllocations(t *testing.T) {
	a := newTestAllocator(t)
	seen := make(map[int64]bool)

	for i := 0; i < 300; i++ {
		off, err := a.Allocate(4096)
		if err != nil {
			continue
		}
		require.False(t, seen[off], "offset %d allocated twice concurrently", off)
		seen[off] = true
	}
}

func TestAllocate_ConvertsFreeBucketWhenClassExhausted(t *testing.T) {
	a := newTestAllocator(t)

	// Fill every bucket with 4096-class slots so none is left unassigned
	// and the 16384 class owns no bucket, then free them all: a 16384
	// allocation should convert a fully free 4096 bucket into a 16384
	// bucket rather than failing outright.
	var offs []int64
	for {
		off, err := a.Allocate(4096)
		if err != nil {
			var noSpace *NoSpaceInThisSizeClassError
			require.ErrorAs(t, err, &noSpace)
			break
		}
		offs = append(offs, off)
	}
	assert.NotEmpty(t, offs)
	for _, off := range offs {
		require.NoError(t, a.Free(off))
	}

	_, err := a.Allocate(16384)
	require.NoError(t, err)
	assert.Equal(t, int64(16384), a.UsedSize())
}

func TestNew_RejectsCapacityAbove32TiB(t *testing.T) {
	_, err := New(33*1024*1024*1024*1024, []int64{4096}, 0)
	assert.ErrorIs(t, err, ErrCapacityTooLarge)
}

func TestNew_RejectsNonIncreasingSizeClasses(t *testing.T) {
	_, err := New(1<<20, []int64{4096, 4096}, 0)
	assert.ErrorIs(t, err, ErrInvalidSizeClasses)

	_, err = New(1<<20, []int64{8192, 4096}, 0)
	assert.ErrorIs(t, err, ErrInvalidSizeClasses)
}

func TestNew_RejectsUnalignedSizeClass(t *testing.T) {
	_, err := New(1<<20, []int64{100}, 0)
	assert.ErrorIs(t, err, ErrSizeClassNotAligned)
}

func TestIndexStatistics_ReflectsAllocationsAndFrees(t *testing.T) {
	a := newTestAllocator(t)

	off, err := a.Allocate(4096)
	require.NoError(t, err)

	stats := a.IndexStatistics()
	require.Len(t, stats, 3)
	assert.Equal(t, int64(4096), stats[0].ItemSize)
	assert.Equal(t, 1, stats[0].UsedCount)

	require.NoError(t, a.Free(off))
	stats = a.IndexStatistics()
	assert.Equal(t, 0, stats[0].UsedCount)
}
