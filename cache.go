package bucketcache

import (
	"context"
	"fmt"
	"hash/maphash"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nireo/bucketcache/allocator"
	"github.com/nireo/bucketcache/engine"
	"github.com/nireo/bucketcache/internal/ioerr"
	"github.com/nireo/bucketcache/internal/resource"
	"github.com/nireo/bucketcache/offsetlock"
)

// Cache is a secondary block cache over an immutable, block-oriented data
// format. It admits blocks into a RAM staging table, persists them to a
// pluggable byte-store engine via sharded writer workers, and evicts the
// least-recently-accessed entries under a three-priority policy when the
// engine fills up.
type Cache struct {
	cfg Config

	eng   engine.Engine
	alloc *allocator.BucketAllocator
	locks *offsetlock.Locks

	backing  *backingMap
	secIndex *secondaryIndex
	staging  *ramStaging

	queues []*writerQueue
	seed   maphash.Seed

	startedAt time.Time

	freeSpaceMu     sync.Mutex
	evictionRunning atomic.Bool

	ioErrCtrl *ioerr.Controller
	resCtrl   *resource.Controller

	enabled  atomic.Bool
	counters counters

	logger  *Logger
	metrics MetricsObserver

	wg     sync.WaitGroup
	stopCh chan struct{}

	statsCancel context.CancelFunc
	statsDone   chan struct{}
}

// New constructs and starts a Cache: the byte-store engine, the bucket
// allocator, the writer worker pool, and (if configured) the periodic
// stats logger.
func New(cfg Config, opts ...Option) (*Cache, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.setDefaults()

	if err := allocator.ValidateCapacity(cfg.Capacity); err != nil {
		return nil, err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}
	if got := eng.Capacity(); got != cfg.Capacity {
		eng.Shutdown()
		return nil, fmt.Errorf("bucketcache: engine reports capacity %d, configured %d", got, cfg.Capacity)
	}

	alloc, err := allocator.New(cfg.Capacity, cfg.SizeClasses, cfg.BucketCapacity)
	if err != nil {
		eng.Shutdown()
		return nil, err
	}

	var rc *resource.Controller
	if cfg.Resources != nil {
		rc = resource.NewController(*cfg.Resources)
	}

	c := &Cache{
		cfg:       cfg,
		eng:       eng,
		alloc:     alloc,
		locks:     offsetlock.New(),
		backing:   newBackingMap(),
		secIndex:  newSecondaryIndex(),
		staging:   newRAMStaging(),
		queues:    make([]*writerQueue, cfg.WriterThreads),
		seed:      maphash.MakeSeed(),
		ioErrCtrl: ioerr.New(cfg.IOErrorTolerance),
		resCtrl:   rc,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		stopCh:    make(chan struct{}),
		startedAt: time.Now(),
	}
	c.enabled.Store(true)

	for i := range c.queues {
		c.queues[i] = newWriterQueue(cfg.QueueCapacity)
	}

	for i := 0; i < cfg.WriterThreads; i++ {
		c.wg.Add(1)
		go c.runWriter(i)
	}

	if cfg.StatsInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		c.statsCancel = cancel
		c.statsDone = make(chan struct{})
		go c.runStatsLoop(ctx)
	}

	return c, nil
}

func newEngine(cfg Config) (engine.Engine, error) {
	switch cfg.Engine {
	case engine.NameHeap, "":
		return engine.NewHeap(cfg.Capacity), nil
	case engine.NameOffheap:
		return engine.NewOffheap(cfg.Capacity)
	case engine.NameFile:
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("bucketcache: file engine requires FilePath")
		}
		return engine.NewFile(cfg.FileSystem, cfg.FilePath, cfg.Capacity)
	default:
		return nil, fmt.Errorf("bucketcache: unknown engine %q", cfg.Engine)
	}
}

func (c *Cache) runStatsLoop(ctx context.Context) {
	defer close(c.statsDone)
	ticker := time.NewTicker(c.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Stats()
			c.logger.InfoContext(ctx, "cache stats",
				"failed_block_additions", s.FailedBlockAdditions,
				"total", s.Total,
				"free", s.Free,
				"used_size", s.UsedSize,
				"cache_size", s.CacheSize,
				"accesses", s.Accesses,
				"hits", s.Hits,
				"io_hits_per_second", s.IOHitsPerSecond,
				"io_time_per_hit", s.IOTimePerHit,
				"hit_ratio", s.HitRatio,
				"caching_accesses", s.CachingAccesses,
				"caching_hits", s.CachingHits,
				"caching_hit_ratio", s.CachingHitRatio,
				"evictions", s.Evictions,
				"evicted", s.Evicted,
				"evicted_per_run", s.EvictedPerRun,
			)
		}
	}
}

func (c *Cache) nextAccessSeq() uint64 {
	return c.counters.accessSeq.Add(1)
}

// IsEnabled reports whether the cache currently accepts admissions and
// reads. It becomes false once Shutdown is called or the I/O error
// controller disables the cache after sustained failures.
func (c *Cache) IsEnabled() bool { return c.enabled.Load() }

// Size returns the allocator's total addressable capacity in bytes: the
// engine capacity carved into whole buckets.
func (c *Cache) Size() int64 { return c.alloc.TotalSize() }

// FreeSize returns the bytes not currently allocated.
func (c *Cache) FreeSize() int64 { return c.alloc.TotalSize() - c.alloc.UsedSize() }

// BlockCount returns the number of blocks tracked between the RAM
// staging table and the backing map.
func (c *Cache) BlockCount() int64 { return c.counters.blockNumber.Load() }

// HeapSize returns the bytes currently held in the RAM staging table.
func (c *Cache) HeapSize() int64 { return c.counters.heapSize.Load() }

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	total := c.alloc.TotalSize()
	used := c.alloc.UsedSize()
	accesses := c.counters.accesses.Load()
	hits := c.counters.hits.Load()
	ioHits := c.counters.ioHits.Load()
	cachingAccesses := c.counters.cachingAccesses.Load()
	cachingHits := c.counters.cachingHits.Load()
	evictionRuns := c.counters.evictionRuns.Load()
	evicted := c.counters.evicted.Load()

	var ioTimePerHit time.Duration
	if ioHits > 0 {
		ioTimePerHit = time.Duration(c.counters.ioTimeNanos.Load() / ioHits)
	}

	var ioHitsPerSecond float64
	if elapsed := time.Since(c.startedAt).Seconds(); elapsed > 0 {
		ioHitsPerSecond = float64(ioHits) / elapsed
	}

	return Stats{
		FailedBlockAdditions: c.counters.failedBlockAdditions.Load(),
		Total:                total,
		Free:                 total - used,
		UsedSize:             used,
		CacheSize:            c.counters.realCacheSize.Load(),
		Accesses:             accesses,
		Hits:                 hits,
		IOHitsPerSecond:      ioHitsPerSecond,
		IOTimePerHit:         ioTimePerHit,
		HitRatio:             ratio(hits, accesses),
		CachingAccesses:      cachingAccesses,
		CachingHits:          cachingHits,
		CachingHitRatio:      ratio(cachingHits, cachingAccesses),
		Evictions:            evictionRuns,
		Evicted:              evicted,
		EvictedPerRun:        ratio(evicted, evictionRuns),
	}
}

// VerifyAllocatorAccounting recomputes the sum of each backing-map entry's
// rounded slot size and compares it against the allocator's own used-size
// tally. A mismatch means a slot was freed without its entry being
// removed, or vice versa. It walks the whole backing map, so it's meant for
// tests and offline diagnostics, not the hot path.
func (c *Cache) VerifyAllocatorAccounting() error {
	var sum int64
	c.backing.forEach(func(_ BlockKey, entry *bucketEntry) {
		sum += c.alloc.SlotSize(int64(entry.length))
	})
	if used := c.alloc.UsedSize(); sum != used {
		return fmt.Errorf("bucketcache: allocator accounting mismatch: slot sizes sum to %d, used_size is %d", sum, used)
	}
	return nil
}

