package bucketcache

import (
	"sync/atomic"
	"time"
)

// MetricsObserver receives cache lifecycle events for integration with
// external monitoring systems.
//
// Example Prometheus integration:
//
//	type prometheusObserver struct {
//	    hits   prometheus.Counter
//	    misses prometheus.Counter
//	}
//
//	func (p *prometheusObserver) OnGet(hit bool, d time.Duration) {
//	    if hit {
//	        p.hits.Inc()
//	    } else {
//	        p.misses.Inc()
//	    }
//	}
type MetricsObserver interface {
	// OnAdmit is called when Cache() accepts or rejects a block, and again
	// if a writer later drops it. Cache() calls on a disabled cache or for
	// an already-present key are not reported.
	OnAdmit(length int, err error)
	// OnGet is called after every Get() call.
	OnGet(hit bool, d time.Duration)
	// OnEvict is called once per block removed by evictBlock, tagged by
	// the priority it held.
	OnEvict(p Priority)
	// OnEvictionRun is called once per completed freeSpace() pass.
	OnEvictionRun(bytesFreed int64, entriesFreed int)
	// OnDisable is called when the I/O error controller disables the
	// cache.
	OnDisable()
}

// NoopMetricsObserver discards every event.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnAdmit(int, error)        {}
func (NoopMetricsObserver) OnGet(bool, time.Duration) {}
func (NoopMetricsObserver) OnEvict(Priority)          {}
func (NoopMetricsObserver) OnEvictionRun(int64, int)  {}
func (NoopMetricsObserver) OnDisable()                {}

// BasicMetricsObserver accumulates in-memory counters. Useful for tests
// and for exposing the periodic stats line without external dependencies.
type BasicMetricsObserver struct {
	Admits       atomic.Int64
	AdmitErrors  atomic.Int64
	Gets         atomic.Int64
	Hits         atomic.Int64
	GetNanos     atomic.Int64
	EvictsSingle atomic.Int64
	EvictsMulti  atomic.Int64
	EvictsMemory atomic.Int64
	EvictionRuns atomic.Int64
	Disables     atomic.Int64
}

func (b *BasicMetricsObserver) OnAdmit(_ int, err error) {
	b.Admits.Add(1)
	if err != nil {
		b.AdmitErrors.Add(1)
	}
}

func (b *BasicMetricsObserver) OnGet(hit bool, d time.Duration) {
	b.Gets.Add(1)
	b.GetNanos.Add(d.Nanoseconds())
	if hit {
		b.Hits.Add(1)
	}
}

func (b *BasicMetricsObserver) OnEvict(p Priority) {
	switch p {
	case PrioritySingle:
		b.EvictsSingle.Add(1)
	case PriorityMulti:
		b.EvictsMulti.Add(1)
	case PriorityMemory:
		b.EvictsMemory.Add(1)
	}
}

func (b *BasicMetricsObserver) OnEvictionRun(_ int64, _ int) { b.EvictionRuns.Add(1) }

func (b *BasicMetricsObserver) OnDisable() { b.Disables.Add(1) }
