// Package mmap provides an anonymous memory-mapped byte region for the
// off-heap cache engine. The file-backed engine goes through internal/fs
// instead, not this package, since its ReadAt/WriteAt/Sync seam is what
// lets tests substitute a fault-injecting filesystem.
//
// MapAnon reserves the region; Close is idempotent and safe to call from
// multiple goroutines.
package mmap
