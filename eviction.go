package bucketcache

import (
	"container/heap"
	"context"
	"sort"

	"github.com/nireo/bucketcache/allocator"
)

// evictionCandidate is one backing-map entry considered for removal
// during a freeSpace pass.
type evictionCandidate struct {
	key       BlockKey
	entry     *bucketEntry
	accessSeq uint64
	size      int64
}

// oldestHeap is a byte-bounded max-heap on access_seq: pushing past its
// byte quota discards the newest (largest access_seq) candidate, so at
// any time it holds the set of oldest entries whose sizes sum to at most
// quota bytes.
type oldestHeap struct {
	items []evictionCandidate
	quota int64
	size  int64
}

func (h *oldestHeap) Len() int           { return len(h.items) }
func (h *oldestHeap) Less(i, j int) bool { return h.items[i].accessSeq > h.items[j].accessSeq }
func (h *oldestHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *oldestHeap) Push(x any)         { h.items = append(h.items, x.(evictionCandidate)) }
func (h *oldestHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

func (h *oldestHeap) offer(c evictionCandidate) {
	heap.Push(h, c)
	h.size += c.size
	for h.size > h.quota && h.Len() > 0 {
		discarded := heap.Pop(h).(evictionCandidate)
		h.size -= discarded.size
	}
}

// evictUpTo evicts entries oldest-first (ascending access_seq) until
// budget bytes have been freed or the heap is exhausted, restoring
// whatever it didn't get to.
func (h *oldestHeap) evictUpTo(c *Cache, budget int64) (freed int64, count int) {
	if budget <= 0 {
		return 0, 0
	}
	newestFirst := make([]evictionCandidate, 0, h.Len())
	for h.Len() > 0 {
		newestFirst = append(newestFirst, heap.Pop(h).(evictionCandidate))
	}

	i := len(newestFirst) - 1
	for ; i >= 0 && freed < budget; i-- {
		cand := newestFirst[i]
		if c.evictBlock(cand.key, cand.entry) {
			freed += cand.size
			count++
			c.metrics.OnEvict(cand.entry.getPriority())
		}
	}
	for j := 0; j <= i; j++ {
		h.offer(newestFirst[j])
	}
	return freed, count
}

// priorityGroup is one of SINGLE/MULTI/MEMORY during a freeSpace pass:
// its full population size (for computing overflow against its target)
// plus a byte-bounded working set of its oldest entries.
type priorityGroup struct {
	priority   Priority
	bucketSize int64
	totalSize  int64
	heap       *oldestHeap
}

func newPriorityGroup(p Priority, bucketSize, quota int64) *priorityGroup {
	return &priorityGroup{priority: p, bucketSize: bucketSize, heap: &oldestHeap{quota: quota}}
}

func (g *priorityGroup) add(c evictionCandidate) {
	g.totalSize += c.size
	g.heap.offer(c)
}

func (g *priorityGroup) overflow() int64 { return g.totalSize - g.bucketSize }

// freeSpace runs one eviction pass. It is idempotent under contention: a
// concurrent caller finding the try-lock held returns immediately since
// the in-flight pass already covers the need.
func (c *Cache) freeSpace() {
	if !c.freeSpaceMu.TryLock() {
		return
	}
	c.evictionRunning.Store(true)
	defer func() {
		c.evictionRunning.Store(false)
		c.freeSpaceMu.Unlock()
	}()

	stats := c.alloc.IndexStatistics()
	B := classShortfall(stats, c.cfg.MinFactor)
	if B <= 0 {
		return
	}

	total := c.alloc.TotalSize()
	singleSize := int64(float64(total) * c.cfg.SingleFactor * c.cfg.MinFactor)
	multiSize := int64(float64(total) * c.cfg.MultiFactor * c.cfg.MinFactor)
	memorySize := int64(float64(total) * c.cfg.MemoryFactor * c.cfg.MinFactor)

	bExtra := int64(float64(B) * (1 + c.cfg.ExtraFreeFactor))

	single := newPriorityGroup(PrioritySingle, singleSize, bExtra)
	multi := newPriorityGroup(PriorityMulti, multiSize, bExtra)
	memory := newPriorityGroup(PriorityMemory, memorySize, bExtra)

	c.backing.forEach(func(key BlockKey, entry *bucketEntry) {
		cand := evictionCandidate{
			key:       key,
			entry:     entry,
			accessSeq: entry.accessSeq.Load(),
			size:      int64(entry.length),
		}
		switch entry.getPriority() {
		case PrioritySingle:
			single.add(cand)
		case PriorityMulti:
			multi.add(cand)
		case PriorityMemory:
			memory.add(cand)
		}
	})

	freed, count := runEvictionPass(c, []*priorityGroup{single, multi, memory}, B, true)

	if classShortfall(c.alloc.IndexStatistics(), c.cfg.MinFactor) > 0 {
		f2, n2 := runEvictionPass(c, []*priorityGroup{single, multi}, bExtra-freed, false)
		freed += f2
		count += n2
	}

	c.counters.evictionRuns.Add(1)
	c.counters.evicted.Add(int64(count))
	c.metrics.OnEvictionRun(freed, count)
	c.logger.LogEvictionRun(context.Background(), freed, count)
}

// classShortfall sums, over every size class, the bytes needed to bring
// its free-slot count up to floor(totalCount*(1-min_factor)) (at least
// one slot). A non-positive result means no class is under target.
func classShortfall(stats []allocator.IndexStatistics, minFactor float64) int64 {
	var b int64
	for _, s := range stats {
		goal := int64(float64(s.TotalCount) * (1 - minFactor))
		if goal < 1 {
			goal = 1
		}
		if int64(s.FreeCount) < goal {
			b += s.ItemSize * (goal - int64(s.FreeCount))
		}
	}
	return b
}

// runEvictionPass evicts from groups in ascending-overflow order,
// dividing the remaining budget across the groups still to be visited.
// remaining is decremented for every group visited regardless of whether
// it had any overflow to give up — a group skipped for lack of overflow
// still counted as "one of the buckets" against which the pass divided its
// budget. This is pass 2's unconditional SINGLE+MULTI re-queue, which
// gates on nothing.
func runEvictionPass(c *Cache, groups []*priorityGroup, budget int64, gateOnOverflow bool) (freed int64, count int) {
	ordered := append([]*priorityGroup(nil), groups...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].overflow() < ordered[j].overflow() })

	remaining := len(ordered)
	for _, g := range ordered {
		if gateOnOverflow && g.overflow() <= 0 {
			remaining--
			continue
		}
		share := (budget - freed) / int64(remaining)
		target := share
		if gateOnOverflow && g.overflow() < share {
			target = g.overflow()
		}
		f, n := g.heap.evictUpTo(c, target)
		freed += f
		count += n
		remaining--
	}
	return freed, count
}

// evictBlock removes key's entry from the backing map and returns its
// engine space to the allocator. It acquires the offset lock so a
// concurrent Get can't observe a freed-but-not-yet-cleared slot, and
// re-checks the backing map under that lock in case a writer already
// replaced or removed the entry.
func (c *Cache) evictBlock(key BlockKey, entry *bucketEntry) bool {
	if _, existed := c.staging.remove(key); existed {
		c.counters.heapSize.Add(-int64(entry.length))
	}

	release := c.locks.Acquire(entry.offset)
	defer release()

	if !c.backing.removeIfSame(key, entry) {
		return false
	}

	if err := c.alloc.Free(entry.offset); err != nil {
		return false
	}
	c.secIndex.remove(key)
	c.counters.blockNumber.Add(-1)
	c.counters.realCacheSize.Add(-int64(entry.length))
	c.metrics.OnEvict(entry.getPriority())
	return true
}
