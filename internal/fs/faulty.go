package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjectedFault is returned by FaultyFS/faultyFile when a configured
// fault fires and no more specific error was supplied.
var ErrInjectedFault = errors.New("fs: injected fault")

// Fault describes a failure to inject into operations on a matching file.
type Fault struct {
	// FailAfterBytes fails the write that would push cumulative bytes
	// written to this file past the threshold. Zero disables the check.
	FailAfterBytes int64
	FailOnSync     bool
	FailOnClose    bool
	Err            error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjectedFault
}

// FaultyFS wraps a FileSystem and injects failures matching name patterns,
// so writer-pipeline error-handling paths (write/sync/close failures) can
// be exercised deterministically.
type FaultyFS struct {
	FS      FileSystem
	mu      sync.Mutex
	rules   []namedFault
	Default Fault

	globalLimit int64
	written     int64
}

type namedFault struct {
	pattern string
	fault   Fault
}

// NewFaultyFS wraps fs with no rules configured; every OpenFile call
// passes through until AddRule or SetLimit installs a fault.
func NewFaultyFS(underlying FileSystem) *FaultyFS {
	return &FaultyFS{FS: underlying, globalLimit: -1}
}

// AddRule installs a fault for files whose name contains pattern. The last
// matching rule wins.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, namedFault{pattern: pattern, fault: fault})
}

// SetLimit fails the write that would push total bytes written across all
// files past limit. A negative limit disables the check.
func (f *FaultyFS) SetLimit(limit int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.globalLimit = limit
}

// GetWritten returns the cumulative bytes written across all files.
func (f *FaultyFS) GetWritten() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written
}

func (f *FaultyFS) faultFor(name string) Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	fault := f.Default
	for _, r := range f.rules {
		if strings.Contains(name, r.pattern) {
			fault = r.fault
		}
	}
	return fault
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	underlying, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: underlying, fs: f, fault: f.faultFor(name)}, nil
}

func (f *FaultyFS) Remove(name string) error { return f.FS.Remove(name) }

func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }

type faultyFile struct {
	File
	fs      *FaultyFS
	fault   Fault
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if err := ff.checkWrite(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := ff.File.Write(p)
	ff.record(int64(n))
	return n, err
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if err := ff.checkWrite(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := ff.File.WriteAt(p, off)
	ff.record(int64(n))
	return n, err
}

func (ff *faultyFile) checkWrite(n int64) error {
	if ff.fault.FailAfterBytes > 0 && ff.written+n > ff.fault.FailAfterBytes {
		return ff.fault.err()
	}

	ff.fs.mu.Lock()
	defer ff.fs.mu.Unlock()
	if ff.fs.globalLimit >= 0 && ff.fs.written+n > ff.fs.globalLimit {
		return ff.fault.err()
	}
	return nil
}

func (ff *faultyFile) record(n int64) {
	ff.written += n
	ff.fs.mu.Lock()
	ff.fs.written += n
	ff.fs.mu.Unlock()
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fault.err()
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	closeErr := ff.File.Close()
	if ff.fault.FailOnClose {
		return ff.fault.err()
	}
	return closeErr
}
