package engine

import (
	"os"
	"sync/atomic"

	"github.com/nireo/bucketcache/internal/fs"
)

// File is an Engine backed by a single pre-allocated file. Reads and
// writes go through pread/pwrite equivalents (ReadAt/WriteAt) rather than
// a memory mapping, so a fault-injecting fs.FileSystem can be substituted
// in tests to exercise the write/sync failure paths in the writer
// pipeline.
type File struct {
	fsys     fs.FileSystem
	f        fs.File
	capacity int64
	closed   atomic.Bool
}

// NewFile creates or truncates path to capacity bytes and opens it for
// engine use through fsys.
func NewFile(fsys fs.FileSystem, path string, capacity int64) (*File, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, newIoError("write", 0, err)
	}
	if err := f.Truncate(capacity); err != nil {
		f.Close()
		return nil, newIoError("write", 0, err)
	}
	return &File{fsys: fsys, f: f, capacity: capacity}, nil
}

func (e *File) Read(dst []byte, offset int64) error {
	if e.closed.Load() {
		return newIoError("read", offset, errShutdown)
	}
	if _, err := e.f.ReadAt(dst, offset); err != nil {
		return newIoError("read", offset, err)
	}
	return nil
}

func (e *File) Write(src []byte, offset int64) error {
	if e.closed.Load() {
		return newIoError("write", offset, errShutdown)
	}
	if _, err := e.f.WriteAt(src, offset); err != nil {
		return newIoError("write", offset, err)
	}
	return nil
}

func (e *File) Sync() error {
	if e.closed.Load() {
		return newIoError("sync", 0, errShutdown)
	}
	if err := e.f.Sync(); err != nil {
		return newIoError("sync", 0, err)
	}
	return nil
}

func (e *File) Shutdown() error {
	if e.closed.Swap(true) {
		return nil
	}
	return newIoError("shutdown", 0, e.f.Close())
}

func (e *File) Capacity() int64 { return e.capacity }
