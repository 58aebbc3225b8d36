package bucketcache

// Shutdown disables the cache, stops accepting admissions and reads,
// interrupts every writer worker, and releases the engine. It is
// idempotent: calling it more than once is safe and returns the first
// error encountered, matching the source cache's firstErr accumulation
// across its own shutdown sequence.
func (c *Cache) Shutdown() error {
	c.enabled.Store(false)

	if c.statsCancel != nil {
		c.statsCancel()
		<-c.statsDone
	}

	select {
	case <-c.stopCh:
		// already closed by a prior Shutdown call
	default:
		close(c.stopCh)
	}
	c.wg.Wait()

	var firstErr error
	if err := c.eng.Shutdown(); err != nil && firstErr == nil {
		firstErr = err
	}

	c.staging.clear()
	c.backing.clear()

	return firstErr
}
