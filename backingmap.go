package bucketcache

import (
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// bucketEntry is the authoritative, post-persistence record for a block:
// where it lives in the engine, how long it is, and how recently and how
// often it's been touched.
type bucketEntry struct {
	offset    int64
	length    uint32
	accessSeq atomic.Uint64
	priority  atomic.Int32
}

func newBucketEntry(offset int64, length uint32, accessSeq uint64, inMemory bool) *bucketEntry {
	e := &bucketEntry{offset: offset, length: length}
	e.accessSeq.Store(accessSeq)
	if inMemory {
		e.priority.Store(int32(PriorityMemory))
	} else {
		e.priority.Store(int32(PrioritySingle))
	}
	return e
}

func (e *bucketEntry) getPriority() Priority { return Priority(e.priority.Load()) }

// touch bumps access_seq and promotes SINGLE to MULTI. MEMORY entries
// never demote, so only the SINGLE->MULTI transition needs a CAS.
func (e *bucketEntry) touch(seq uint64) {
	e.accessSeq.Store(seq)
	e.priority.CompareAndSwap(int32(PrioritySingle), int32(PriorityMulti))
}

// ramEntry is the RAM staging table's transient record for a block
// awaiting persistence. accessSeq is atomic because a RAM-resident hit in
// Get can race the owning writer worker reading it to build the eventual
// BucketEntry.
type ramEntry struct {
	key       BlockKey
	payload   []byte
	accessSeq atomic.Uint64
	inMemory  bool
}

// backingMap is the authoritative concurrent index of persisted blocks.
type backingMap struct {
	mu sync.RWMutex
	m  map[BlockKey]*bucketEntry
}

func newBackingMap() *backingMap {
	return &backingMap{m: make(map[BlockKey]*bucketEntry)}
}

func (b *backingMap) get(key BlockKey) (*bucketEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.m[key]
	return e, ok
}

func (b *backingMap) has(key BlockKey) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.m[key]
	return ok
}

func (b *backingMap) put(key BlockKey, entry *bucketEntry) {
	b.mu.Lock()
	b.m[key] = entry
	b.mu.Unlock()
}

// removeIfSame deletes key only if its current entry is identical (by
// pointer) to entry, so an evictor never clobbers a newer write that
// raced ahead of it. It reports whether the deletion happened.
func (b *backingMap) removeIfSame(key BlockKey, entry *bucketEntry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.m[key]
	if !ok || cur != entry {
		return false
	}
	delete(b.m, key)
	return true
}

func (b *backingMap) remove(key BlockKey) (*bucketEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.m[key]
	if ok {
		delete(b.m, key)
	}
	return e, ok
}

func (b *backingMap) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.m)
}

// forEach calls fn for a snapshot of the map's entries at call time,
// giving the eviction scan a stable view per run without holding the lock
// while fn executes.
func (b *backingMap) forEach(fn func(key BlockKey, entry *bucketEntry)) {
	b.mu.RLock()
	snapshot := make(map[BlockKey]*bucketEntry, len(b.m))
	for k, v := range b.m {
		snapshot[k] = v
	}
	b.mu.RUnlock()

	for k, v := range snapshot {
		fn(k, v)
	}
}

func (b *backingMap) clear() {
	b.mu.Lock()
	b.m = make(map[BlockKey]*bucketEntry)
	b.mu.Unlock()
}

// secondaryIndex maps a file identity to the sorted set of offsets cached
// for that file, backed by a 64-bit Roaring bitmap per file so the
// per-file key set stays compact and trivially yields ascending order.
type secondaryIndex struct {
	mu     sync.Mutex
	byFile map[string]*roaring64.Bitmap
}

func newSecondaryIndex() *secondaryIndex {
	return &secondaryIndex{byFile: make(map[string]*roaring64.Bitmap)}
}

func (s *secondaryIndex) add(key BlockKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bm, ok := s.byFile[key.FileID]
	if !ok {
		bm = roaring64.New()
		s.byFile[key.FileID] = bm
	}
	bm.Add(key.Offset)
}

func (s *secondaryIndex) remove(key BlockKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bm, ok := s.byFile[key.FileID]
	if !ok {
		return
	}
	bm.Remove(key.Offset)
	if bm.IsEmpty() {
		delete(s.byFile, key.FileID)
	}
}

// offsets returns the ascending offsets cached for fileID.
func (s *secondaryIndex) offsets(fileID string) []uint64 {
	s.mu.Lock()
	bm, ok := s.byFile[fileID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	clone := bm.Clone()
	s.mu.Unlock()

	out := make([]uint64, 0, clone.GetCardinality())
	it := clone.Iterator()
	for it.HasNext() {
		out = append(out, it.Next())
	}
	return out
}
