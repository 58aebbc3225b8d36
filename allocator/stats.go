package allocator

// IndexStatistics is a snapshot of one size class's bucket population.
type IndexStatistics struct {
	ItemSize   int64
	TotalCount int // total slots across all buckets assigned to this class
	UsedCount  int
	FreeCount  int
}
