package engine

// Engine is the byte-addressable store the bucket allocator hands offsets
// into. Implementations never assume persistence across process restart;
// the cache treats the engine as opaque.
type Engine interface {
	// Read fills dst with bytes starting at offset. dst determines the
	// read length.
	Read(dst []byte, offset int64) error
	// Write copies all of src to offset.
	Write(src []byte, offset int64) error
	// Sync guarantees writes visible before this call are durable and
	// ordered before any subsequent Read observes them.
	Sync() error
	// Shutdown releases the engine's resources. It is idempotent.
	Shutdown() error
	// Capacity returns the total addressable size in bytes.
	Capacity() int64
}

// Name identifies a built-in engine kind for configuration purposes.
type Name string

const (
	NameHeap    Name = "heap"
	NameOffheap Name = "offheap"
	NameFile    Name = "file"
)
