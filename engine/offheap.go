package engine

import (
	"sync/atomic"

	"github.com/nireo/bucketcache/internal/mmap"
)

// Offheap is an Engine backed by an anonymous memory mapping outside the
// Go garbage collector's reach. It is otherwise identical to Heap in its
// concurrency contract: disjoint offset ranges may be read and written
// without additional locking.
type Offheap struct {
	mapping *mmap.Mapping
	closed  atomic.Bool
}

// NewOffheap reserves an anonymous mapping of the given capacity. It
// advises the kernel that access will be random, matching a block cache's
// access pattern (there's no locality guarantee across offsets); the hint
// is best-effort and its failure is not fatal to construction.
func NewOffheap(capacity int64) (*Offheap, error) {
	m, err := mmap.MapAnon(int(capacity))
	if err != nil {
		return nil, newIoError("shutdown", 0, err)
	}
	_ = m.Advise(mmap.AccessRandom)
	return &Offheap{mapping: m}, nil
}

func (o *Offheap) Read(dst []byte, offset int64) error {
	if o.closed.Load() {
		return newIoError("read", offset, errShutdown)
	}
	n, err := o.mapping.ReadAt(dst, offset)
	if err != nil && n < len(dst) {
		return newIoError("read", offset, err)
	}
	return nil
}

func (o *Offheap) Write(src []byte, offset int64) error {
	if o.closed.Load() {
		return newIoError("write", offset, errShutdown)
	}
	if _, err := o.mapping.WriteAt(src, offset); err != nil {
		return newIoError("write", offset, err)
	}
	return nil
}

// Sync is a no-op: an anonymous mapping has no backing store to flush to,
// and writes are already visible to every goroutine in the process.
func (o *Offheap) Sync() error { return nil }

func (o *Offheap) Shutdown() error {
	if o.closed.Swap(true) {
		return nil
	}
	return newIoError("shutdown", 0, o.mapping.Close())
}

func (o *Offheap) Capacity() int64 { return int64(o.mapping.Size()) }
