//go:build windows

package mmap

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func osMapAnon(size int) (data []byte, unmapFn func([]byte) error, err error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size),
		windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, nil, err
	}

	data = unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	unmapFn = func(b []byte) error {
		return windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
	}
	return data, unmapFn, nil
}

func osAdvise(data []byte, pattern AccessPattern) error {
	// Windows has no direct madvise equivalent cheap enough to bother with
	// here; the page cache handles sequential and random access well
	// enough without a hint.
	return nil
}
