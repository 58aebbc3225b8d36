package bucketcache

import (
	"time"

	"github.com/nireo/bucketcache/internal/resource"
)

// Cache admits bytes under key into the RAM staging table and enqueues
// them for a writer worker to persist. inMemory marks the block as
// high-priority (born Memory, never demoted). wait bounds how long the
// call blocks if the target writer queue is full; a non-positive wait
// uses the configured default. Cache never blocks past the engine
// disabling itself: once disabled it returns ErrClosed immediately.
//
// Admission for a key already present (in staging or already persisted)
// is a duplicate no-op that returns nil; the earlier admission stays. Two
// admissions racing past that check both insert into staging, and the
// later insert wins.
func (c *Cache) Cache(key BlockKey, payload []byte, inMemory bool, wait time.Duration) error {
	if !c.enabled.Load() {
		return ErrClosed
	}
	if c.staging.has(key) || c.backing.has(key) {
		return nil
	}
	if wait <= 0 {
		wait = c.cfg.QueueWait
	}

	if c.resCtrl != nil && !c.resCtrl.TryAcquireMemory(int64(len(payload))) {
		c.counters.failedBlockAdditions.Add(1)
		c.metrics.OnAdmit(len(payload), resource.ErrMemoryLimitExceeded)
		return resource.ErrMemoryLimitExceeded
	}

	entry := &ramEntry{
		key:      key,
		payload:  payload,
		inMemory: inMemory,
	}
	entry.accessSeq.Store(c.nextAccessSeq())
	c.staging.put(entry)
	c.counters.heapSize.Add(int64(len(payload)))
	c.counters.blockNumber.Add(1)

	shard := shardFor(c.seed, key, len(c.queues))
	queue := c.queues[shard]

	ok := queue.tryEnqueue(entry)
	if !ok {
		ok = queue.enqueueWait(entry, wait)
	}
	if !ok {
		c.staging.remove(key)
		c.counters.heapSize.Add(-int64(len(payload)))
		c.counters.blockNumber.Add(-1)
		if c.resCtrl != nil {
			c.resCtrl.ReleaseMemory(int64(len(payload)))
		}
		c.counters.failedBlockAdditions.Add(1)
		c.metrics.OnAdmit(len(payload), errQueueFull)
		return errQueueFull
	}

	c.metrics.OnAdmit(len(payload), nil)
	return nil
}

// Get looks up key, first in the RAM staging table (a block awaiting
// persistence is still servable), then in the backing map. caching
// controls whether a backing-map hit counts toward the caching-specific
// hit ratio (mirrors read paths that opt out of warming cache stats,
// e.g. a full-file scan). A hit against the backing map bumps the
// entry's access_seq and, if it was Single, promotes it to Multi.
func (c *Cache) Get(key BlockKey, caching bool) ([]byte, bool) {
	start := time.Now()
	if !c.enabled.Load() {
		c.metrics.OnGet(false, time.Since(start))
		return nil, false
	}

	c.counters.accesses.Add(1)
	if caching {
		c.counters.cachingAccesses.Add(1)
	}

	if e, ok := c.staging.get(key); ok {
		e.accessSeq.Store(c.nextAccessSeq())
		c.counters.hits.Add(1)
		if caching {
			c.counters.cachingHits.Add(1)
		}
		c.metrics.OnGet(true, time.Since(start))
		return e.payload, true
	}

	be, ok := c.backing.get(key)
	if !ok {
		c.metrics.OnGet(false, time.Since(start))
		return nil, false
	}

	release := c.locks.Acquire(be.offset)
	defer release()

	if cur, ok := c.backing.get(key); !ok || cur != be {
		c.metrics.OnGet(false, time.Since(start))
		return nil, false
	}

	buf := make([]byte, be.length)
	ioStart := time.Now()
	if err := c.eng.Read(buf, be.offset); err != nil {
		c.onEngineFailure(err)
		c.metrics.OnGet(false, time.Since(start))
		return nil, false
	}
	c.counters.ioHits.Add(1)
	c.counters.ioTimeNanos.Add(time.Since(ioStart).Nanoseconds())
	c.ioErrCtrl.Success()

	be.touch(c.nextAccessSeq())
	c.counters.hits.Add(1)
	if caching {
		c.counters.cachingHits.Add(1)
	}
	c.metrics.OnGet(true, time.Since(start))
	return buf, true
}

// Evict removes key if present, from either the RAM staging table or the
// backing map, and reports whether anything was removed.
func (c *Cache) Evict(key BlockKey) bool {
	if e, ok := c.staging.remove(key); ok {
		c.counters.heapSize.Add(-int64(len(e.payload)))
		c.counters.blockNumber.Add(-1)
		if c.resCtrl != nil {
			c.resCtrl.ReleaseMemory(int64(len(e.payload)))
		}
		return true
	}
	be, ok := c.backing.get(key)
	if !ok {
		return false
	}
	return c.evictBlock(key, be)
}

// EvictByFile removes every cached block belonging to fileID and reports
// how many were removed.
func (c *Cache) EvictByFile(fileID string) int {
	offsets := c.secIndex.offsets(fileID)
	n := 0
	for _, off := range offsets {
		if c.Evict(BlockKey{FileID: fileID, Offset: off}) {
			n++
		}
	}
	return n
}

// Clear removes every entry from the cache without shutting down the
// engine or writer workers. Concurrent admissions racing a Clear may
// still land afterward.
func (c *Cache) Clear() {
	c.backing.forEach(func(key BlockKey, entry *bucketEntry) {
		c.evictBlock(key, entry)
	})
	if n := c.staging.len(); n > 0 {
		c.counters.blockNumber.Add(-int64(n))
	}
	if c.resCtrl != nil {
		c.resCtrl.ReleaseMemory(c.counters.heapSize.Load())
	}
	c.staging.clear()
	c.counters.heapSize.Store(0)
}

var errQueueFull = &queueFullError{}

type queueFullError struct{}

func (*queueFullError) Error() string { return "bucketcache: writer queue full" }
