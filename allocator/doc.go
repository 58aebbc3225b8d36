// Package allocator implements the bucket allocator: it partitions an
// engine's fixed byte capacity into equally sized buckets, assigns each
// bucket to exactly one size class at runtime, and hands out
// 256-byte-aligned slot offsets from those buckets.
package allocator
