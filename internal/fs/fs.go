package fs

import (
	"io"
	"os"
)

// File is the subset of *os.File the engines need.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.WriterAt
	Sync() error
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
	Fd() uintptr
	Name() string
}

// FileSystem creates and manages files. LocalFS satisfies it against the
// real disk; FaultyFS wraps another FileSystem to inject failures for
// tests.
type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Remove(name string) error
	Stat(name string) (os.FileInfo, error)
}

// LocalFS implements FileSystem using the os package.
type LocalFS struct{}

func (LocalFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(name, flag, perm)
}

func (LocalFS) Remove(name string) error { return os.Remove(name) }

func (LocalFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

// Default is the process-wide LocalFS instance.
var Default FileSystem = LocalFS{}
