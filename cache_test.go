package bucketcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nireo/bucketcache/internal/fs"
	"github.com/nireo/bucketcache/internal/resource"
)

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	cfg := Config{
		Engine:        EngineHeap,
		Capacity:      4 * 1024 * 1024,
		SizeClasses:   []int64{4096, 8192, 16384},
		WriterThreads: 2,
		QueueCapacity: 16,
		QueueWait:     50 * time.Millisecond,
		StatsInterval: -1, // disable periodic logging in tests
	}
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown() })
	return c
}

func waitForPersist(t *testing.T, c *Cache, key BlockKey) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.backing.has(key)
	}, time.Second, time.Millisecond)
}

func TestCache_AdmitThenGetRoundTrip(t *testing.T) {
	c := newTestCache(t)
	key := BlockKey{FileID: "hfile-1", Offset: 0}
	payload := []byte("some serialized block bytes")

	require.NoError(t, c.Cache(key, payload, false, 0))

	got, ok := c.Get(key, true)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestCache_GetAfterPersistReadsFromEngine(t *testing.T) {
	c := newTestCache(t)
	key := BlockKey{FileID: "hfile-1", Offset: 4096}
	payload := []byte("persisted block")

	require.NoError(t, c.Cache(key, payload, false, 0))
	waitForPersist(t, c, key)

	got, ok := c.Get(key, true)
	require.True(t, ok)
	assert.Equal(t, payload, got)
	assert.Equal(t, PriorityMulti, mustBackingEntry(t, c, key).getPriority())
}

func mustBackingEntry(t *testing.T, c *Cache, key BlockKey) *bucketEntry {
	t.Helper()
	e, ok := c.backing.get(key)
	require.True(t, ok)
	return e
}

// TestCache_VerifyAllocatorAccountingHoldsAcrossEviction admits enough
// blocks to trigger a background eviction pass and checks that the
// allocator's used_size still exactly matches the sum of persisted
// entries' rounded slot sizes afterward.
func TestCache_VerifyAllocatorAccountingHoldsAcrossEviction(t *testing.T) {
	c := newPressureTestCache(t)

	for i := uint64(0); i < 32; i++ {
		key := BlockKey{FileID: "hfile-1", Offset: i * 256}
		require.NoError(t, c.Cache(key, make([]byte, 200), false, time.Second))
		waitForPersist(t, c, key)
	}

	require.Eventually(t, func() bool {
		return c.BlockCount() < 30
	}, time.Second, time.Millisecond)

	assert.NoError(t, c.VerifyAllocatorAccounting())
}

func TestCache_InMemoryEntryStaysAtMemoryPriority(t *testing.T) {
	c := newTestCache(t)
	key := BlockKey{FileID: "meta", Offset: 0}
	require.NoError(t, c.Cache(key, []byte("index block"), true, 0))
	waitForPersist(t, c, key)

	_, ok := c.Get(key, true)
	require.True(t, ok)
	assert.Equal(t, PriorityMemory, mustBackingEntry(t, c, key).getPriority())
}

func TestCache_GetMissReturnsFalse(t *testing.T) {
	c := newTestCache(t)
	_, ok := c.Get(BlockKey{FileID: "nope", Offset: 0}, true)
	assert.False(t, ok)
}

func TestCache_EvictRemovesEntry(t *testing.T) {
	c := newTestCache(t)
	key := BlockKey{FileID: "hfile-1", Offset: 0}
	require.NoError(t, c.Cache(key, []byte("data"), false, 0))
	waitForPersist(t, c, key)

	assert.True(t, c.Evict(key))
	_, ok := c.Get(key, true)
	assert.False(t, ok)
	assert.False(t, c.Evict(key), "double evict should be a no-op")
}

func TestCache_EvictByFileRemovesAllOffsets(t *testing.T) {
	c := newTestCache(t)
	for _, off := range []uint64{0, 4096, 8192} {
		key := BlockKey{FileID: "hfile-1", Offset: off}
		require.NoError(t, c.Cache(key, []byte("data"), false, 0))
		waitForPersist(t, c, key)
	}

	n := c.EvictByFile("hfile-1")
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(0), c.BlockCount())
}

func TestCache_ClearRemovesEverything(t *testing.T) {
	c := newTestCache(t)
	key := BlockKey{FileID: "hfile-1", Offset: 0}
	require.NoError(t, c.Cache(key, []byte("data"), false, 0))
	waitForPersist(t, c, key)

	c.Clear()
	_, ok := c.Get(key, true)
	assert.False(t, ok)
	assert.Zero(t, c.HeapSize())
}

func TestCache_ShutdownIsIdempotent(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Shutdown())
	require.NoError(t, c.Shutdown())
	assert.False(t, c.IsEnabled())
}

func TestCache_OperationsAfterShutdownReturnClosed(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Shutdown())

	err := c.Cache(BlockKey{FileID: "x", Offset: 0}, []byte("y"), false, 0)
	assert.ErrorIs(t, err, ErrClosed)

	_, ok := c.Get(BlockKey{FileID: "x", Offset: 0}, true)
	assert.False(t, ok)
}

func TestCache_BlockLargerThanAnySizeClassFails(t *testing.T) {
	c := newTestCache(t)
	key := BlockKey{FileID: "x", Offset: 0}
	require.NoError(t, c.Cache(key, make([]byte, 1<<20), false, 0))

	require.Eventually(t, func() bool {
		return c.Stats().FailedBlockAdditions > 0
	}, time.Second, time.Millisecond)

	_, ok := c.staging.get(key)
	assert.False(t, ok, "failed admission should not linger in staging")
}

// TestCache_WriteFailureIsToleratedThenDisables exercises the engine
// write-failure path: a run of failures shorter than the tolerance keeps
// the cache enabled, but once the tolerance elapses the next failure
// disables it.
func TestCache_WriteFailureIsToleratedThenDisables(t *testing.T) {
	ffs := fs.NewFaultyFS(fs.Default)
	ffs.Default = fs.Fault{FailAfterBytes: 1}

	cfg := Config{
		Engine:           EngineFile,
		Capacity:         1024 * 1024,
		SizeClasses:      []int64{4096},
		FilePath:         t.TempDir() + "/cache.dat",
		FileSystem:       ffs,
		WriterThreads:    1,
		QueueCapacity:    4,
		IOErrorTolerance: 20 * time.Millisecond,
		StatsInterval:    -1,
	}
	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Shutdown()

	require.NoError(t, c.Cache(BlockKey{FileID: "f", Offset: 0}, []byte("data"), false, 0))

	// The first failed write opens a failure run within the tolerance, so
	// the cache stays enabled.
	require.Eventually(t, c.ioErrCtrl.InFailure, time.Second, time.Millisecond)
	assert.True(t, c.IsEnabled())

	// A second failed write after the tolerance has elapsed disables it.
	time.Sleep(2 * cfg.IOErrorTolerance)
	require.NoError(t, c.Cache(BlockKey{FileID: "f", Offset: 4096}, []byte("data"), false, 0))

	require.Eventually(t, func() bool {
		return !c.IsEnabled()
	}, time.Second, time.Millisecond)

	// A drop caused by an engine write failure is a persistence failure,
	// not an admission rejection, and must not inflate failed_additions.
	assert.Zero(t, c.Stats().FailedBlockAdditions)
}

// TestCache_MemoryBudgetExhaustionReportsMemoryLimitError exercises the
// staging memory budget path: a block that fits every size class but
// exceeds the configured memory ceiling is rejected with a memory-limit
// error, not ErrBlockTooLarge, since the block itself isn't oversized.
func TestCache_MemoryBudgetExhaustionReportsMemoryLimitError(t *testing.T) {
	c := newTestCache(t, WithResources(resource.Config{
		MemoryLimitBytes: 8,
	}))

	err := c.Cache(BlockKey{FileID: "x", Offset: 0}, make([]byte, 64), false, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.Equal(t, int64(1), c.Stats().FailedBlockAdditions)
}

// TestCache_RAMHitBumpsAccessSeq verifies that a Get hitting the RAM
// staging table (the block hasn't been persisted yet) bumps its
// access_seq, so a stale admission-time sequence doesn't survive into the
// eventual backing-map entry once the writer catches up.
func TestCache_RAMHitBumpsAccessSeq(t *testing.T) {
	c := newTestCache(t)
	key := BlockKey{FileID: "f", Offset: 0}

	before := c.counters.accessSeq.Load()
	require.NoError(t, c.Cache(key, []byte("payload"), false, 0))

	e, ok := c.staging.get(key)
	require.True(t, ok)
	afterAdmit := e.accessSeq.Load()
	assert.Greater(t, afterAdmit, before)

	_, ok = c.Get(key, true)
	require.True(t, ok)
	assert.Greater(t, e.accessSeq.Load(), afterAdmit)
}
