// Package block implements the block device: fixed-size block I/O and
// growth on top of an arbitrary aidb.File backend.
package block

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/NKID00/aidb"
)

type BlockIndex = aidb.BlockIndex

const (
	MinBlockSize = 512
	MaxBlockSize = 64 * 1024
)

// Device exposes file as an array of fixed-size blocks. Reads and
// writes of distinct blocks may run concurrently; Grow serializes
// internally.
type Device[F aidb.File] struct {
	file   F
	size   int
	logger *slog.Logger

	grow  sync.Mutex
	count atomic.Uint64

	stats stats
}

var _ aidb.Device = (*Device[aidb.File])(nil)

// New wraps file as a block device. The block count is derived from the
// current backend size; a trailing partial block is ignored with a
// warning.
func New[F aidb.File](file F, blockSize int, logger *slog.Logger) (*Device[F], error) {
	if blockSize < MinBlockSize || blockSize > MaxBlockSize || blockSize&(blockSize-1) != 0 {
		return nil, fmt.Errorf("%w: %d", aidb.ErrInvalidBlockSize, blockSize)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	size, err := fileSize(file)
	if err != nil {
		return nil, fmt.Errorf("block.New: %w", err)
	}
	if size%int64(blockSize) != 0 {
		logger.Warn("backend size is not a multiple of the block size, ignoring the tail",
			"size", size, "blockSize", blockSize)
	}

	dev := &Device[F]{file: file, size: blockSize, logger: logger}
	dev.count.Store(uint64(size) / uint64(blockSize))
	return dev, nil
}

func (dev *Device[F]) BlockSize() int { return dev.size }

func (dev *Device[F]) Count() uint64 { return dev.count.Load() }

// Read fills buf with the content of the block at index. A short read
// from the backend is zero padded.
func (dev *Device[F]) Read(index BlockIndex, buf []byte) error {
	if err := dev.check(index, buf); err != nil {
		return err
	}
	dev.stats.reads.Add(1)

	n, err := dev.file.ReadAt(buf, int64(index)*int64(dev.size))
	if err != nil && err != io.EOF {
		return fmt.Errorf("read block %d: %w", index, err)
	}
	if n < len(buf) {
		dev.logger.Warn("short block read, padding with zero", "block", index, "read", n)
		clear(buf[n:])
	}
	return nil
}

// Write replaces the content of the block at index with buf.
func (dev *Device[F]) Write(index BlockIndex, buf []byte) error {
	if err := dev.check(index, buf); err != nil {
		return err
	}
	dev.stats.writes.Add(1)

	if _, err := dev.file.WriteAt(buf, int64(index)*int64(dev.size)); err != nil {
		return fmt.Errorf("write block %d: %w", index, err)
	}
	return nil
}

// Grow extends the backend by one zeroed block and returns its index.
func (dev *Device[F]) Grow() (BlockIndex, error) {
	dev.grow.Lock()
	defer dev.grow.Unlock()

	count := dev.count.Load()
	if err := dev.file.Truncate(int64(count+1) * int64(dev.size)); err != nil {
		return 0, fmt.Errorf("grow to %d blocks: %w", count+1, err)
	}
	dev.stats.grows.Add(1)
	dev.count.Store(count + 1)
	return BlockIndex(count), nil
}

// Sync flushes the backend.
func (dev *Device[F]) Sync() error {
	return dev.file.Sync()
}

// Close closes the backend.
func (dev *Device[F]) Close() error {
	return dev.file.Close()
}

func (dev *Device[F]) check(index BlockIndex, buf []byte) error {
	if len(buf) != dev.size {
		return fmt.Errorf("block buffer is %d bytes, want %d", len(buf), dev.size)
	}
	if uint64(index) >= dev.count.Load() {
		return fmt.Errorf("%w: block %d, count %d", aidb.ErrBlockOutOfRange, index, dev.count.Load())
	}
	return nil
}

func fileSize(file any) (int64, error) {
	switch f := file.(type) {
	case interface{ Size() int64 }:
		return f.Size(), nil
	case interface{ Stat() (os.FileInfo, error) }:
		stat, err := f.Stat()
		if err != nil {
			return 0, err
		}
		return stat.Size(), nil
	default:
		return 0, fmt.Errorf("backend does not report its size")
	}
}
