package bucketcache

import (
	"errors"
	"fmt"

	"github.com/nireo/bucketcache/allocator"
)

// ErrClosed is returned by Cache once the cache is disabled, whether by
// Shutdown or after sustained I/O errors. Get on a disabled cache reports
// a miss instead.
var ErrClosed = errors.New("bucketcache: cache is disabled")

// ErrBlockTooLarge reports that a block's length exceeds every configured
// size class and can never be admitted.
type ErrBlockTooLarge struct {
	Length     int64
	LargestCls int64
	cause      error
}

func (e *ErrBlockTooLarge) Error() string {
	return fmt.Sprintf("bucketcache: block of %d bytes exceeds largest size class %d", e.Length, e.LargestCls)
}

func (e *ErrBlockTooLarge) Unwrap() error { return e.cause }

// translateError maps an internal allocator/engine error into the typed
// errors this package exposes. The writer uses it when it drops a block,
// so the drop's log line and MetricsObserver.OnAdmit report carry
// ErrBlockTooLarge rather than the allocator's own error type.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var cacheFull *allocator.CacheFullError
	if errors.As(err, &cacheFull) {
		return &ErrBlockTooLarge{Length: cacheFull.Requested, LargestCls: cacheFull.LargestCls, cause: err}
	}
	return err
}
