package bucketcache

import (
	"context"
	"errors"
	"time"

	"github.com/nireo/bucketcache/allocator"
)

// runWriter drains queue index shard, persisting each entry to the
// engine and promoting it into the backing map. It exits once the
// cache's stop channel closes and the queue has been drained.
func (c *Cache) runWriter(shard int) {
	defer c.wg.Done()
	queue := c.queues[shard]

	for {
		select {
		case entry := <-queue.ch:
			c.processEntry(entry)
			c.drainRemaining(queue)
		case <-c.stopCh:
			c.drainRemaining(queue)
			return
		}
	}
}

// drainRemaining processes whatever is already queued without blocking,
// so a worker empties its shard before re-checking for shutdown.
func (c *Cache) drainRemaining(queue *writerQueue) {
	for {
		select {
		case entry := <-queue.ch:
			c.processEntry(entry)
		default:
			return
		}
	}
}

// processEntry allocates space for entry, writes it to the engine, syncs,
// and on success promotes it from the RAM staging table into the backing
// map. Engine write and sync failures are reported to the I/O error
// controller and, past the tolerance, disable the cache.
func (c *Cache) processEntry(entry *ramEntry) {
	ctx := context.Background()

	if c.resCtrl != nil {
		_ = c.resCtrl.AcquireBackground(ctx)
		defer c.resCtrl.ReleaseBackground()
	}

	offset, err := c.alloc.Allocate(int64(len(entry.payload)))
	if err != nil {
		c.dropEntry(entry, err)
		return
	}

	if err := c.resCtrl.WaitIO(ctx, int64(len(entry.payload))); err != nil {
		_ = c.alloc.Free(offset)
		c.dropEntry(entry, err)
		return
	}

	if err := c.eng.Write(entry.payload, offset); err != nil {
		_ = c.alloc.Free(offset)
		c.onEngineFailure(err)
		c.dropEntry(entry, err)
		return
	}

	if err := c.eng.Sync(); err != nil {
		_ = c.alloc.Free(offset)
		c.onEngineFailure(err)
		c.dropEntry(entry, err)
		return
	}
	c.ioErrCtrl.Success()

	be := newBucketEntry(offset, uint32(len(entry.payload)), entry.accessSeq.Load(), entry.inMemory)
	c.backing.put(entry.key, be)
	c.secIndex.add(entry.key)

	if _, existed := c.staging.remove(entry.key); existed {
		c.counters.heapSize.Add(-int64(len(entry.payload)))
		if c.resCtrl != nil {
			c.resCtrl.ReleaseMemory(int64(len(entry.payload)))
		}
	}
	c.counters.realCacheSize.Add(int64(len(entry.payload)))

	c.logger.LogAdmit(ctx, entry.key, len(entry.payload), nil)

	if acceptable := int64(float64(c.alloc.TotalSize()) * c.cfg.AcceptFactor); c.alloc.UsedSize() > acceptable {
		c.freeSpace()
	}
}

// dropEntry removes entry from RAM staging without promoting it (the
// entry's admission is undone) and reports the failure. failedBlockAdditions
// only counts admission-time rejections (queue full, block too large for any
// size class); a write/sync failure past that point is a drop at persist
// time, not an admit failure, and leaves the counter untouched.
// A NoSpaceInThisSizeClass failure additionally triggers eviction: if a
// pass isn't already running it runs synchronously on this worker,
// otherwise the worker briefly backs off so it doesn't spin against an
// in-flight pass.
func (c *Cache) dropEntry(entry *ramEntry, err error) {
	if _, existed := c.staging.remove(entry.key); existed {
		c.counters.heapSize.Add(-int64(len(entry.payload)))
		c.counters.blockNumber.Add(-1)
		if c.resCtrl != nil {
			c.resCtrl.ReleaseMemory(int64(len(entry.payload)))
		}
	}

	var cacheFull *allocator.CacheFullError
	if errors.As(err, &cacheFull) {
		c.counters.failedBlockAdditions.Add(1)
	}

	reported := translateError(err)
	c.logger.LogAdmit(context.Background(), entry.key, len(entry.payload), reported)
	c.metrics.OnAdmit(len(entry.payload), reported)

	var noSpace *allocator.NoSpaceInThisSizeClassError
	if errors.As(err, &noSpace) {
		if !c.evictionRunning.Load() {
			c.freeSpace()
		} else {
			time.Sleep(50 * time.Millisecond)
		}
	}
}

// onEngineFailure reports an engine read/write/sync failure to the I/O
// error controller and disables the cache once the tolerance is
// exceeded.
func (c *Cache) onEngineFailure(err error) {
	if c.ioErrCtrl.Failure(time.Now()) {
		c.disable(err)
	}
}

// disable atomically turns the cache off. It is safe to call more than
// once; only the first call logs and notifies metrics.
func (c *Cache) disable(reason error) {
	if !c.enabled.CompareAndSwap(true, false) {
		return
	}
	c.logger.LogDisable(context.Background(), reason)
	c.metrics.OnDisable()
}
