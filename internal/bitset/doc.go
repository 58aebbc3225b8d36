// Package bitset provides a small, non-atomic bitset used by the bucket
// allocator to track which slots within a bucket are occupied. Callers
// are expected to hold their own lock; there is no internal
// synchronization.
package bitset
