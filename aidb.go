// Package aidb defines the basic interfaces and value types shared by the
// storage engine components.
package aidb

import "io"

// File provides access to a storage backend for the engine.
// The File interface is the minimum implementation required.
//
// The *os.File type satisfies this interface.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Truncate changes the size of the file.
	Truncate(size int64) error

	// Sync commits the current contents of the file to stable storage.
	Sync() error
}

// BlockIndex addresses one fixed-size block in a store. Block 0 is the
// super block; 0 therefore doubles as the nil pointer in every on-disk
// chain.
type BlockIndex uint64

// NilBlock terminates block chains.
const NilBlock BlockIndex = 0

// Device is the block-level I/O surface every engine component reads and
// writes through. Implementations wrap an arbitrary byte-addressable
// backend; see the block package.
type Device interface {
	// BlockSize returns the fixed block size in bytes.
	BlockSize() int

	// Count returns the current number of blocks in the store.
	Count() uint64

	// Read fills buf (len == BlockSize) with the content of the block.
	Read(index BlockIndex, buf []byte) error

	// Write replaces the content of the block with buf (len == BlockSize).
	Write(index BlockIndex, buf []byte) error

	// Grow extends the backing store by one block and returns its index.
	Grow() (BlockIndex, error)

	// Sync flushes the backing store.
	Sync() error
}

// Allocator hands out blocks and reclaims freed ones. Freed blocks are
// reused LIFO before the device is grown.
type Allocator interface {
	Allocate() (BlockIndex, error)
	Free(index BlockIndex) error
}

// RowPointer locates one row: the data block holding it and the row's
// ordinal slot within that block. The index engine treats it as opaque.
type RowPointer uint64

func NewRowPointer(block BlockIndex, slot uint16) RowPointer {
	return RowPointer(block)<<16 | RowPointer(slot)
}

func (p RowPointer) Block() BlockIndex { return BlockIndex(p >> 16) }

func (p RowPointer) Slot() uint16 { return uint16(p) }
