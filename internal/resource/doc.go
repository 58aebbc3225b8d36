// Package resource provides shared memory and I/O throttling primitives
// used to bound the RAM staging table and the writer worker pool.
package resource
