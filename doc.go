// Package bucketcache implements a secondary block cache backed by a
// pluggable byte-store engine (heap, off-heap mmap, or file), modeled on
// a bucket allocator with size-classed slots rather than a general-purpose
// heap.
//
// Admissions land in an in-memory staging table and are handed to sharded
// writer workers that persist them to the engine and promote them into a
// backing map once durable. Reads are served from staging when a block
// hasn't finished persisting yet, otherwise from the engine via the
// backing map's recorded offset. When the engine fills past its accept
// threshold, a bounded eviction pass reclaims space across three
// priority classes (single-access, multi-access, and pinned "memory"
// blocks) proportionally to their configured share of the cache.
//
// A cache disables itself after a continuous run of engine failures
// exceeds its configured tolerance. From then on Cache returns ErrClosed
// and Get reports a miss; only a fresh Cache accepts blocks again.
package bucketcache
