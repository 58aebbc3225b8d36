// Package offsetlock provides per-offset mutual exclusion so a reader
// dereferencing a BucketEntry can't race a concurrent evictor freeing the
// same byte range. Locks are created on first use and removed once their
// last holder releases, so long-lived cache instances don't accumulate
// one mutex per offset ever allocated.
package offsetlock
