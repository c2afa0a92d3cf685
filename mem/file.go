// Package mem provides an in-memory implementation of the aidb.File
// interface, used as the default backend in tests and for throwaway
// stores.
package mem

import (
	"io"
	"sync"

	"github.com/NKID00/aidb"
)

// File is an in-memory aidb.File. It is safe for concurrent use by
// multiple goroutines.
//
// File requires no initialization - just declare and use:
//
//	var f mem.File
//	f.WriteAt([]byte("hello"), 0)
type File struct {
	rw  sync.RWMutex
	buf []byte
}

var _ aidb.File = new(File)

// ReadAt implements io.ReaderAt.
func (file *File) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}

	file.rw.RLock()
	defer file.rw.RUnlock()

	if off >= int64(len(file.buf)) {
		return 0, io.EOF
	}
	n = copy(p, file.buf[off:])
	if n < len(p) {
		err = io.EOF
	}
	return
}

// WriteAt implements io.WriterAt. Writing past the current size grows
// the file; the gap is zero filled.
func (file *File) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	file.rw.Lock()
	defer file.rw.Unlock()

	if end := off + int64(len(p)); end > int64(len(file.buf)) {
		file.grow(end)
	}
	return copy(file.buf[off:], p), nil
}

// Truncate changes the size of the file. Growing zero-fills the new
// space, shrinking discards the tail.
func (file *File) Truncate(size int64) error {
	file.rw.Lock()
	defer file.rw.Unlock()

	if size <= int64(len(file.buf)) {
		file.buf = file.buf[:size]
		return nil
	}
	file.grow(size)
	return nil
}

// Size returns the current size of the file in bytes.
func (file *File) Size() int64 {
	file.rw.RLock()
	defer file.rw.RUnlock()
	return int64(len(file.buf))
}

// Sync is a no-op for in-memory files.
func (file *File) Sync() error { return nil }

// Close discards all data. It is safe to write to the file again after
// closing.
func (file *File) Close() error {
	file.rw.Lock()
	file.buf = nil
	file.rw.Unlock()
	return nil
}

func (file *File) grow(size int64) {
	if int64(cap(file.buf)) >= size {
		old := len(file.buf)
		file.buf = file.buf[:size]
		clear(file.buf[old:])
		return
	}
	buf := make([]byte, size, max(size, int64(cap(file.buf))*2))
	copy(buf, file.buf)
	file.buf = buf
}
