//go:build unix

// Package sys wraps the platform memory-mapping primitives used by the
// disk backend.
package sys

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// MMap maps length bytes of file read/write and shared.
func MMap(file *os.File, length int64) ([]byte, error) {
	return unix.Mmap(int(file.Fd()), 0, int(length),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
}

// Unmap releases a mapping returned by MMap.
func Unmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}

// Remap resizes a mapping. The old mapping is released even on error.
// File-backed mappings keep their content across the unmap/map cycle, so
// a plain remap is portable and sufficient here.
func Remap(file *os.File, newLength int64, old []byte) ([]byte, error) {
	if err := Unmap(old); err != nil {
		return nil, err
	}
	return MMap(file, newLength)
}

// PageSize returns the system memory page size.
func PageSize() int {
	return unix.Getpagesize()
}
