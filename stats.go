package bucketcache

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of cache health, matching the
// periodic log line the source cache emits.
type Stats struct {
	FailedBlockAdditions int64
	Total                int64
	Free                 int64
	UsedSize             int64
	CacheSize            int64
	Accesses             int64
	Hits                 int64
	IOHitsPerSecond      float64
	IOTimePerHit         time.Duration
	HitRatio             float64
	CachingAccesses      int64
	CachingHits          int64
	CachingHitRatio      float64
	Evictions            int64
	Evicted              int64
	EvictedPerRun        float64
}

// counters holds the atomic state Stats() summarizes. Kept as a distinct
// type so Cache's field list isn't a wall of unrelated atomics.
type counters struct {
	blockNumber          atomic.Int64
	realCacheSize        atomic.Int64
	heapSize             atomic.Int64
	failedBlockAdditions atomic.Int64
	accessSeq            atomic.Uint64

	accesses        atomic.Int64
	hits            atomic.Int64
	ioHits          atomic.Int64
	ioTimeNanos     atomic.Int64
	cachingAccesses atomic.Int64
	cachingHits     atomic.Int64
	evictionRuns    atomic.Int64
	evicted         atomic.Int64
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
