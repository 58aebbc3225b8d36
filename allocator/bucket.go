package allocator

import "github.com/nireo/bucketcache/internal/bitset"

// bucket is a fixed-size region of the engine's byte store. Every bucket
// starts unassigned (itemSize 0) and takes on exactly one size class the
// first time a slot within it is allocated. freeStack holds the slot
// indices available for allocation; occupied is kept alongside it purely
// to catch double-frees, since Free is driven by caller-supplied offsets
// rather than a handle the allocator itself minted.
type bucket struct {
	baseOffset int64
	itemSize   int64
	totalSlots int
	usedSlots  int
	freeStack  []uint32
	occupied   *bitset.FastBitSet
}

func newBucket(baseOffset int64) *bucket {
	return &bucket{baseOffset: baseOffset}
}

// assigned reports whether the bucket currently belongs to a size class.
func (b *bucket) assigned() bool { return b.itemSize != 0 }

// fullyFree reports whether every slot in the bucket (if any are
// assigned) is free. An unassigned bucket is trivially fully free.
func (b *bucket) fullyFree() bool { return b.usedSlots == 0 }

func (b *bucket) full() bool { return b.assigned() && len(b.freeStack) == 0 }

// assign (re)configures the bucket for itemSize, splitting bucketCapacity
// into fixed slots. It must only be called on a fully free bucket.
func (b *bucket) assign(itemSize, bucketCapacity int64) {
	b.itemSize = itemSize
	b.totalSlots = int(bucketCapacity / itemSize)
	b.usedSlots = 0
	b.occupied = bitset.New(b.totalSlots)
	b.freeStack = make([]uint32, b.totalSlots)
	for i := 0; i < b.totalSlots; i++ {
		// Push in descending order so ascending offsets are handed out
		// first; not load-bearing, just keeps allocation order legible
		// when debugging.
		b.freeStack[i] = uint32(b.totalSlots - 1 - i)
	}
}

// allocate pops a free slot and returns its absolute offset.
func (b *bucket) allocate() (offset int64, ok bool) {
	if len(b.freeStack) == 0 {
		return 0, false
	}
	idx := b.freeStack[len(b.freeStack)-1]
	b.freeStack = b.freeStack[:len(b.freeStack)-1]
	b.occupied.Set(idx)
	b.usedSlots++
	return b.baseOffset + int64(idx)*b.itemSize, true
}

// free returns the slot at offset to the free list.
func (b *bucket) free(offset int64) error {
	idx := uint32((offset - b.baseOffset) / b.itemSize)
	if !b.occupied.Test(idx) {
		return errDoubleFree
	}
	b.occupied.Clear(idx)
	b.freeStack = append(b.freeStack, idx)
	b.usedSlots--
	return nil
}
