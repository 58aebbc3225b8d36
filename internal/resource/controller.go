package resource

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded reports that the staging table's heap budget is
// exhausted, i.e. TryAcquireMemory refused the reservation.
var ErrMemoryLimitExceeded = errors.New("resource: memory limit exceeded")

// Config bounds the resources a Controller hands out.
type Config struct {
	// MemoryLimitBytes caps the RAM staging table's heap_size. Zero
	// disables the check.
	MemoryLimitBytes int64
	// MaxBackgroundWorkers caps how many writer workers may run
	// concurrently. Zero disables the check.
	MaxBackgroundWorkers int64
	// IOLimitBytesPerSec, if positive, throttles engine writes via a
	// token bucket.
	IOLimitBytesPerSec int64
}

// Controller gates RAM staging admission and writer concurrency behind
// weighted semaphores, and optionally throttles engine I/O with a rate
// limiter. All methods are nil-receiver safe so a cache constructed
// without resource limits can call through unconditionally.
type Controller struct {
	cfg       Config
	memSem    *semaphore.Weighted
	bgSem     *semaphore.Weighted
	ioLimiter *rate.Limiter
}

// NewController builds a Controller from cfg. Any zero-valued limit in cfg
// is left unenforced.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.MaxBackgroundWorkers > 0 {
		c.bgSem = semaphore.NewWeighted(cfg.MaxBackgroundWorkers)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// TryAcquireMemory attempts to reserve n bytes of staging heap without
// blocking. It reports whether the reservation succeeded.
func (c *Controller) TryAcquireMemory(n int64) bool {
	if c == nil || c.memSem == nil {
		return true
	}
	return c.memSem.TryAcquire(n)
}

// ReleaseMemory returns n bytes previously reserved with TryAcquireMemory.
func (c *Controller) ReleaseMemory(n int64) {
	if c == nil || c.memSem == nil {
		return
	}
	c.memSem.Release(n)
}

// AcquireBackground blocks until a writer worker slot is available or ctx
// is cancelled.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil || c.bgSem == nil {
		return nil
	}
	return c.bgSem.Acquire(ctx, 1)
}

// ReleaseBackground returns a writer worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil || c.bgSem == nil {
		return
	}
	c.bgSem.Release(1)
}

// WaitIO blocks until n bytes of I/O budget are available.
func (c *Controller) WaitIO(ctx context.Context, n int64) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, int(n))
}
