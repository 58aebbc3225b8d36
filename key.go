package bucketcache

// BlockKey identifies a cached block by the identity of the file it came
// from and its byte offset within that file. Equality and hashing use
// both fields; ordering within a single FileID is by ascending Offset.
type BlockKey struct {
	FileID string
	Offset uint64
}

// Priority classifies a persisted block for eviction purposes. New
// entries are born Single; a subsequent backing-map hit promotes them to
// Multi. A hit while the block is still in the RAM staging table does not
// promote it, and the block is persisted as Single.
// Entries admitted with in_memory=true are born Memory and never demote.
type Priority int8

const (
	PrioritySingle Priority = iota
	PriorityMulti
	PriorityMemory
)

func (p Priority) String() string {
	switch p {
	case PrioritySingle:
		return "single"
	case PriorityMulti:
		return "multi"
	case PriorityMemory:
		return "memory"
	default:
		return "unknown"
	}
}
