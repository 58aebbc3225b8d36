package engine

import "sync/atomic"

// Heap is an Engine backed by a single on-process byte slice. Concurrent
// reads and writes to disjoint offset ranges are safe without additional
// locking because the bucket allocator guarantees the ranges handed to
// distinct callers never overlap; Sync is a no-op since the slice is
// already visible to every goroutine in the process.
type Heap struct {
	buf    []byte
	closed atomic.Bool
}

// NewHeap allocates a Heap engine of the given capacity.
func NewHeap(capacity int64) *Heap {
	return &Heap{buf: make([]byte, capacity)}
}

func (h *Heap) Read(dst []byte, offset int64) error {
	if h.closed.Load() {
		return newIoError("read", offset, errShutdown)
	}
	if offset < 0 || offset+int64(len(dst)) > int64(len(h.buf)) {
		return newIoError("read", offset, errOutOfRange)
	}
	copy(dst, h.buf[offset:offset+int64(len(dst))])
	return nil
}

func (h *Heap) Write(src []byte, offset int64) error {
	if h.closed.Load() {
		return newIoError("write", offset, errShutdown)
	}
	if offset < 0 || offset+int64(len(src)) > int64(len(h.buf)) {
		return newIoError("write", offset, errOutOfRange)
	}
	copy(h.buf[offset:offset+int64(len(src))], src)
	return nil
}

func (h *Heap) Sync() error { return nil }

func (h *Heap) Shutdown() error {
	h.closed.Store(true)
	h.buf = nil
	return nil
}

func (h *Heap) Capacity() int64 { return int64(len(h.buf)) }
