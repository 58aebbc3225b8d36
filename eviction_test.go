package bucketcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPressureTestCache(t *testing.T) *Cache {
	t.Helper()
	cfg := Config{
		Engine:         EngineHeap,
		Capacity:       8192,
		SizeClasses:    []int64{256},
		BucketCapacity: 8192,
		WriterThreads:  1,
		QueueCapacity:  32,
		StatsInterval:  -1,
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown() })
	return c
}

// TestCache_FreeSpaceEvictsUnderPressure fills the pressure cache's single
// 32-slot bucket with single-priority blocks. The 31st commit takes
// used_size (31*256 = 7936) past the accept threshold (0.95*8192 = 7782),
// so the writer runs an eviction pass that frees the four oldest blocks;
// the single writer processes the 32nd admission only after that pass.
func TestCache_FreeSpaceEvictsUnderPressure(t *testing.T) {
	c := newPressureTestCache(t)

	for i := uint64(0); i < 32; i++ {
		key := BlockKey{FileID: "hfile-1", Offset: i * 256}
		require.NoError(t, c.Cache(key, make([]byte, 200), false, time.Second))
		waitForPersist(t, c, key)
	}

	require.Eventually(t, func() bool {
		return c.BlockCount() < 30
	}, time.Second, time.Millisecond, "eviction should reclaim entries once the size class runs low on free slots")
}

// TestCache_MemoryPriorityEntrySurvivesUnderPressure ensures an
// in-memory-pinned block is left alone while single-priority pressure
// eviction runs, since MEMORY is never re-queued in the refill pass and
// SINGLE alone has more than enough candidates to meet the free target.
func TestCache_MemoryPriorityEntrySurvivesUnderPressure(t *testing.T) {
	c := newPressureTestCache(t)

	pinned := BlockKey{FileID: "meta", Offset: 0}
	require.NoError(t, c.Cache(pinned, make([]byte, 200), true, time.Second))
	waitForPersist(t, c, pinned)

	for i := uint64(1); i < 32; i++ {
		key := BlockKey{FileID: "hfile-1", Offset: i * 256}
		require.NoError(t, c.Cache(key, make([]byte, 200), false, time.Second))
		waitForPersist(t, c, key)
	}

	require.Eventually(t, func() bool {
		return c.BlockCount() < 30
	}, time.Second, time.Millisecond)

	_, ok := c.Get(pinned, true)
	assert.True(t, ok, "memory-pinned block should still be resident")
}

func TestClassShortfall_ZeroClassesReportNoShortfall(t *testing.T) {
	assert.Zero(t, classShortfall(nil, 0.85))
}

// TestRunEvictionPass_SkippedGroupStillConsumesRemainingShare pins two
// groups at negative overflow (skipped) and gives the third group more
// overflow than the pass budget, so the divisor after the two skips must
// be 1 for the third group to receive the whole budget. If a skip failed
// to decrement remaining, the third group would only see a third of the
// budget instead of all of it.
func TestRunEvictionPass_SkippedGroupStillConsumesRemainingShare(t *testing.T) {
	c := newTestCache(t)

	const n = 100
	keys := make([]BlockKey, n)
	for i := 0; i < n; i++ {
		keys[i] = BlockKey{FileID: "f", Offset: uint64(i)}
		require.NoError(t, c.Cache(keys[i], make([]byte, 4), false, time.Second))
		waitForPersist(t, c, keys[i])
	}

	single := newPriorityGroup(PrioritySingle, 0, 10000)
	multi := newPriorityGroup(PriorityMulti, 1000, 10000)
	memory := newPriorityGroup(PriorityMemory, 1000, 10000)

	for _, k := range keys {
		be, ok := c.backing.get(k)
		require.True(t, ok)
		single.add(evictionCandidate{key: k, entry: be, accessSeq: be.accessSeq.Load(), size: int64(be.length)})
	}

	freed, count := runEvictionPass(c, []*priorityGroup{single, multi, memory}, 300, true)

	assert.Equal(t, int64(300), freed)
	assert.Equal(t, 75, count)
}
