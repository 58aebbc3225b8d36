package allocator

import "sync"

const (
	// maxCapacity is the largest accepted total capacity, 32 TiB. It lies
	// well inside the 2^40 * 256 = 256 TiB that offsets stored as a 40-bit
	// field counted in units of 256 bytes can address.
	maxCapacity = 32 * 1024 * 1024 * 1024 * 1024

	// offsetAlignment is the byte alignment every returned offset must
	// satisfy so it round-trips through the 40-bit-times-256 encoding.
	offsetAlignment = 256

	// defaultBucketCapacity is the floor for a bucket's byte size before
	// it gets doubled up to a power-of-two multiple of the largest size
	// class; 4 MiB mirrors the source cache's minimum buffer size.
	defaultBucketCapacity = 4 * 1024 * 1024
)

// classAgg tracks the running population of one size class across
// however many buckets are currently assigned to it.
type classAgg struct {
	itemSize   int64
	totalCount int
	usedCount  int
	buckets    []*bucket
}

// BucketAllocator partitions an engine's byte capacity into buckets and
// hands out 256-byte-aligned slot offsets from size-classed buckets.
type BucketAllocator struct {
	mu             sync.Mutex
	sizeClasses    []int64
	bucketCapacity int64
	totalSize      int64
	buckets        []*bucket
	unassigned     []*bucket
	classes        map[int64]*classAgg
}

// ValidateCapacity reports whether capacity is usable as a total
// byte-store size: positive and no larger than the 32 TiB ceiling. Callers that construct their own
// byte-store engine ahead of the allocator (sized to capacity) should call
// this first, since New's own check happens only after the engine already
// exists.
func ValidateCapacity(capacity int64) error {
	if capacity <= 0 || capacity > maxCapacity {
		return ErrCapacityTooLarge
	}
	return nil
}

// New builds a BucketAllocator over capacity bytes of engine addressable
// space, with size classes as the strictly increasing, positive, and
// 256-byte-aligned slot sizes to carve buckets into. bucketCapacityHint
// overrides the default bucket size when positive; it is rounded up to a
// power-of-two multiple of the largest size class. Rounding stops at the
// largest such multiple that still fits in capacity.
func New(capacity int64, sizeClasses []int64, bucketCapacityHint int64) (*BucketAllocator, error) {
	if err := ValidateCapacity(capacity); err != nil {
		return nil, err
	}
	if err := validateSizeClasses(sizeClasses); err != nil {
		return nil, err
	}

	largest := sizeClasses[len(sizeClasses)-1]
	target := bucketCapacityHint
	if target <= 0 {
		target = defaultBucketCapacity
	}
	bucketCapacity := largest
	for bucketCapacity < target && bucketCapacity*2 <= capacity {
		bucketCapacity *= 2
	}

	numBuckets := capacity / bucketCapacity
	if numBuckets < 1 {
		numBuckets = 1
	}

	a := &BucketAllocator{
		sizeClasses:    sizeClasses,
		bucketCapacity: bucketCapacity,
		totalSize:      numBuckets * bucketCapacity,
		buckets:        make([]*bucket, numBuckets),
		classes:        make(map[int64]*classAgg, len(sizeClasses)),
	}
	for i := range a.buckets {
		a.buckets[i] = newBucket(int64(i) * bucketCapacity)
	}
	a.unassigned = append(a.unassigned, a.buckets...)
	for _, sc := range sizeClasses {
		a.classes[sc] = &classAgg{itemSize: sc}
	}
	return a, nil
}

func validateSizeClasses(sizeClasses []int64) error {
	if len(sizeClasses) == 0 {
		return ErrInvalidSizeClasses
	}
	prev := int64(0)
	for _, sc := range sizeClasses {
		if sc <= prev {
			return ErrInvalidSizeClasses
		}
		if sc%offsetAlignment != 0 {
			return ErrSizeClassNotAligned
		}
		prev = sc
	}
	return nil
}

// Allocate reserves a slot from the smallest size class able to hold len
// bytes and returns its absolute, 256-byte-aligned offset.
func (a *BucketAllocator) Allocate(length int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	itemSize := a.classFor(length)
	if itemSize == 0 {
		return 0, &CacheFullError{Requested: length, LargestCls: a.sizeClasses[len(a.sizeClasses)-1]}
	}
	cls := a.classes[itemSize]

	for _, buk := range cls.buckets {
		if !buk.full() {
			off, ok := buk.allocate()
			if ok {
				cls.usedCount++
				return off, nil
			}
		}
	}

	candidate := a.reclaimFreeBucket(itemSize)
	if candidate == nil {
		return 0, &NoSpaceInThisSizeClassError{ItemSize: itemSize}
	}

	candidate.assign(itemSize, a.bucketCapacity)
	cls.buckets = append(cls.buckets, candidate)
	cls.totalCount += candidate.totalSlots

	off, _ := candidate.allocate()
	cls.usedCount++
	return off, nil
}

// classFor returns the smallest configured size class able to hold
// length, or 0 if none can.
func (a *BucketAllocator) classFor(length int64) int64 {
	for _, sc := range a.sizeClasses {
		if sc >= length {
			return sc
		}
	}
	return 0
}

// reclaimFreeBucket finds a bucket with no live allocations, preferring
// never-assigned buckets, and detaches it from its previous class's
// bookkeeping so the caller can reassign it.
func (a *BucketAllocator) reclaimFreeBucket(excludeClass int64) *bucket {
	if n := len(a.unassigned); n > 0 {
		buk := a.unassigned[n-1]
		a.unassigned = a.unassigned[:n-1]
		return buk
	}

	for itemSize, cls := range a.classes {
		if itemSize == excludeClass {
			continue
		}
		for i, buk := range cls.buckets {
			if buk.fullyFree() {
				cls.buckets = append(cls.buckets[:i], cls.buckets[i+1:]...)
				cls.totalCount -= buk.totalSlots
				return buk
			}
		}
	}
	return nil
}

// Free returns the slot at offset to its bucket's free list.
func (a *BucketAllocator) Free(offset int64) error {
	if offset%offsetAlignment != 0 {
		return ErrOffsetNotAligned
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	idx := offset / a.bucketCapacity
	if idx < 0 || int(idx) >= len(a.buckets) {
		return ErrOffsetNotAligned
	}
	buk := a.buckets[idx]
	if !buk.assigned() {
		return errDoubleFree
	}
	if err := buk.free(offset); err != nil {
		return err
	}
	a.classes[buk.itemSize].usedCount--
	return nil
}

// UsedSize returns the total bytes currently allocated across all size
// classes.
func (a *BucketAllocator) UsedSize() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var used int64
	for _, cls := range a.classes {
		used += int64(cls.usedCount) * cls.itemSize
	}
	return used
}

// TotalSize returns the allocator's total addressable byte capacity,
// which may be slightly less than the capacity passed to New due to
// flooring to a whole number of buckets.
func (a *BucketAllocator) TotalSize() int64 { return a.totalSize }

// IndexStatistics returns a per-size-class snapshot in ascending size
// order.
func (a *BucketAllocator) IndexStatistics() []IndexStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := make([]IndexStatistics, len(a.sizeClasses))
	for i, sc := range a.sizeClasses {
		cls := a.classes[sc]
		stats[i] = IndexStatistics{
			ItemSize:   sc,
			TotalCount: cls.totalCount,
			UsedCount:  cls.usedCount,
			FreeCount:  cls.totalCount - cls.usedCount,
		}
	}
	return stats
}

// SlotSize returns the size-class slot size an allocation of length bytes
// would consume, or 0 if no class can hold it.
func (a *BucketAllocator) SlotSize(length int64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.classFor(length)
}
