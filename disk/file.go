// Package disk provides a file-backed implementation of the aidb.File
// interface. Reads are served from a shared memory mapping of the file;
// writes go through the file descriptor, which keeps the mapping
// coherent without explicit msync calls.
package disk

import (
	"os"
	"sync"

	"github.com/NKID00/aidb"
	"github.com/NKID00/aidb/internal/sys"
)

// File is a memory-mapped aidb.File.
type File struct {
	mu   sync.RWMutex
	file *os.File
	data []byte
	size int64
}

var _ aidb.File = (*File)(nil)

// Open opens or creates the file at path and maps it.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	file := &File{file: f, size: stat.Size()}
	if file.size > 0 {
		if file.data, err = sys.MMap(f, file.size); err != nil {
			f.Close()
			return nil, err
		}
	}
	return file, nil
}

// ReadAt implements io.ReaderAt, serving from the mapping.
func (file *File) ReadAt(p []byte, off int64) (n int, err error) {
	file.mu.RLock()
	defer file.mu.RUnlock()

	if file.file == nil {
		return 0, aidb.ErrClosed
	}
	if off < 0 || off >= file.size {
		return 0, os.ErrInvalid
	}
	n = copy(p, file.data[off:file.size])
	if n < len(p) {
		err = os.ErrInvalid
	}
	return
}

// WriteAt implements io.WriterAt. Writing past the current size grows
// the file and remaps it.
func (file *File) WriteAt(p []byte, off int64) (n int, err error) {
	file.mu.Lock()
	defer file.mu.Unlock()

	if file.file == nil {
		return 0, aidb.ErrClosed
	}
	if n, err = file.file.WriteAt(p, off); err != nil {
		return
	}
	if end := off + int64(n); end > file.size {
		err = file.remap(end)
	}
	return
}

// Truncate changes the size of the file and remaps it.
func (file *File) Truncate(size int64) error {
	file.mu.Lock()
	defer file.mu.Unlock()

	if file.file == nil {
		return aidb.ErrClosed
	}
	if err := file.file.Truncate(size); err != nil {
		return err
	}
	return file.remap(size)
}

// Sync flushes the file to stable storage.
func (file *File) Sync() error {
	file.mu.RLock()
	defer file.mu.RUnlock()

	if file.file == nil {
		return aidb.ErrClosed
	}
	return file.file.Sync()
}

// Size returns the current size of the file in bytes.
func (file *File) Size() int64 {
	file.mu.RLock()
	defer file.mu.RUnlock()
	return file.size
}

// Close unmaps and closes the file.
func (file *File) Close() error {
	file.mu.Lock()
	defer file.mu.Unlock()

	if file.file == nil {
		return nil
	}
	err := sys.Unmap(file.data)
	if cerr := file.file.Close(); err == nil {
		err = cerr
	}
	file.file = nil
	file.data = nil
	file.size = 0
	return err
}

func (file *File) remap(size int64) (err error) {
	file.data, err = sys.Remap(file.file, size, file.data)
	if err != nil {
		return
	}
	file.size = size
	return
}
