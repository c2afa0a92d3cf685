// Package hashidx implements a static hash index over integer keys.
// A directory block maps hash buckets to bucket blocks; buckets that
// overflow chain into further blocks.
package hashidx

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math/bits"

	"github.com/NKID00/aidb"
)

const (
	bucketKind    = 3
	overflowKind  = 4
	directoryKind = 5
)

const (
	directoryHeaderSize = 1 + 4 // kind, bucket count
	bucketHeaderSize    = 1 + 2 + 8
	entrySize           = 16
)

// Config tunes the directory. The zero value sizes the bucket count
// from the block size.
type Config struct {
	// Buckets is the directory width. It must be a power of two and
	// fit in one block. 0 picks the widest power of two that fits.
	Buckets uint32
}

// Table is a hash index rooted at one directory block. Bucket blocks
// are allocated lazily on first insert. Table is not safe for
// concurrent use; the caller serializes access.
type Table struct {
	dev     aidb.Device
	alloc   aidb.Allocator
	root    aidb.BlockIndex
	buf     []byte
	buckets uint32
	maxEnt  int
}

// Create allocates and writes an empty directory block.
func Create(dev aidb.Device, alloc aidb.Allocator, config Config) (*Table, error) {
	h, err := prepare(dev, config.Buckets)
	if err != nil {
		return nil, err
	}
	h.alloc = alloc
	root, err := alloc.Allocate()
	if err != nil {
		return nil, err
	}
	h.root = root
	clear(h.buf)
	h.buf[0] = directoryKind
	binary.LittleEndian.PutUint32(h.buf[1:5], h.buckets)
	if err := dev.Write(root, h.buf); err != nil {
		return nil, err
	}
	return h, nil
}

// Open attaches to an existing directory block.
func Open(dev aidb.Device, alloc aidb.Allocator, root aidb.BlockIndex) (*Table, error) {
	h, err := prepare(dev, 0)
	if err != nil {
		return nil, err
	}
	h.alloc = alloc
	h.root = root
	if err := dev.Read(root, h.buf); err != nil {
		return nil, err
	}
	if h.buf[0] != directoryKind {
		return nil, fmt.Errorf("%w: block %d has kind %d, want directory", aidb.ErrIndexCorrupt, root, h.buf[0])
	}
	buckets := binary.LittleEndian.Uint32(h.buf[1:5])
	if buckets == 0 || bits.OnesCount32(buckets) != 1 || directoryHeaderSize+int(buckets)*8 > len(h.buf) {
		return nil, fmt.Errorf("%w: directory %d has %d buckets", aidb.ErrIndexCorrupt, root, buckets)
	}
	h.buckets = buckets
	return h, nil
}

func prepare(dev aidb.Device, buckets uint32) (*Table, error) {
	blockSize := dev.BlockSize()
	most := uint32(1) << (bits.Len32(uint32((blockSize-directoryHeaderSize)/8)) - 1)
	if buckets == 0 {
		buckets = most
	}
	if bits.OnesCount32(buckets) != 1 || buckets > most {
		return nil, fmt.Errorf("hashidx: bucket count %d not a power of two within one block", buckets)
	}
	return &Table{
		dev:     dev,
		buf:     make([]byte, blockSize),
		buckets: buckets,
		maxEnt:  (blockSize - bucketHeaderSize) / entrySize,
	}, nil
}

// Root reports the directory block. It never changes after Create.
func (h *Table) Root() aidb.BlockIndex { return h.root }

func (h *Table) slot(key int64) uint32 {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], uint64(key))
	sum := fnv.New64a()
	sum.Write(raw[:])
	return uint32(sum.Sum64()) & (h.buckets - 1)
}

func (h *Table) bucketHead(slot uint32) (aidb.BlockIndex, error) {
	if err := h.dev.Read(h.root, h.buf); err != nil {
		return 0, err
	}
	off := directoryHeaderSize + int(slot)*8
	return aidb.BlockIndex(binary.LittleEndian.Uint64(h.buf[off : off+8])), nil
}

func (h *Table) setBucketHead(slot uint32, index aidb.BlockIndex) error {
	if err := h.dev.Read(h.root, h.buf); err != nil {
		return err
	}
	off := directoryHeaderSize + int(slot)*8
	binary.LittleEndian.PutUint64(h.buf[off:off+8], uint64(index))
	return h.dev.Write(h.root, h.buf)
}

// bucket is the decoded form of a bucket or overflow block.
type bucket struct {
	index    aidb.BlockIndex
	head     bool
	overflow aidb.BlockIndex
	keys     []int64
	ptrs     []uint64
}

func (h *Table) readBucket(index aidb.BlockIndex) (*bucket, error) {
	if err := h.dev.Read(index, h.buf); err != nil {
		return nil, err
	}
	if h.buf[0] != bucketKind && h.buf[0] != overflowKind {
		return nil, fmt.Errorf("%w: block %d has kind %d, want bucket", aidb.ErrIndexCorrupt, index, h.buf[0])
	}
	count := int(binary.LittleEndian.Uint16(h.buf[1:3]))
	if bucketHeaderSize+count*entrySize > len(h.buf) {
		return nil, fmt.Errorf("%w: bucket %d claims %d entries", aidb.ErrIndexCorrupt, index, count)
	}
	b := &bucket{
		index:    index,
		head:     h.buf[0] == bucketKind,
		overflow: aidb.BlockIndex(binary.LittleEndian.Uint64(h.buf[3:11])),
		keys:     make([]int64, count),
		ptrs:     make([]uint64, count),
	}
	for i := range count {
		off := bucketHeaderSize + i*entrySize
		b.keys[i] = int64(binary.LittleEndian.Uint64(h.buf[off : off+8]))
		b.ptrs[i] = binary.LittleEndian.Uint64(h.buf[off+8 : off+16])
	}
	return b, nil
}

func (h *Table) writeBucket(b *bucket) error {
	clear(h.buf)
	if b.head {
		h.buf[0] = bucketKind
	} else {
		h.buf[0] = overflowKind
	}
	binary.LittleEndian.PutUint16(h.buf[1:3], uint16(len(b.keys)))
	binary.LittleEndian.PutUint64(h.buf[3:11], uint64(b.overflow))
	for i := range b.keys {
		off := bucketHeaderSize + i*entrySize
		binary.LittleEndian.PutUint64(h.buf[off:off+8], uint64(b.keys[i]))
		binary.LittleEndian.PutUint64(h.buf[off+8:off+16], b.ptrs[i])
	}
	return h.dev.Write(b.index, h.buf)
}

// Insert appends an entry to the key's bucket chain, growing the chain
// by one overflow block when the tail is full.
func (h *Table) Insert(key int64, ptr aidb.RowPointer) error {
	slot := h.slot(key)
	head, err := h.bucketHead(slot)
	if err != nil {
		return err
	}
	if head == aidb.NilBlock {
		index, err := h.alloc.Allocate()
		if err != nil {
			return err
		}
		b := &bucket{index: index, head: true, keys: []int64{key}, ptrs: []uint64{uint64(ptr)}}
		if err := h.writeBucket(b); err != nil {
			return err
		}
		return h.setBucketHead(slot, index)
	}
	b, err := h.readBucket(head)
	if err != nil {
		return err
	}
	for len(b.keys) >= h.maxEnt && b.overflow != aidb.NilBlock {
		if b, err = h.readBucket(b.overflow); err != nil {
			return err
		}
	}
	if len(b.keys) < h.maxEnt {
		b.keys = append(b.keys, key)
		b.ptrs = append(b.ptrs, uint64(ptr))
		return h.writeBucket(b)
	}
	index, err := h.alloc.Allocate()
	if err != nil {
		return err
	}
	tail := &bucket{index: index, keys: []int64{key}, ptrs: []uint64{uint64(ptr)}}
	if err := h.writeBucket(tail); err != nil {
		return err
	}
	b.overflow = index
	return h.writeBucket(b)
}

// Search returns the row pointer of the first entry with key.
func (h *Table) Search(key int64) (aidb.RowPointer, bool, error) {
	slot := h.slot(key)
	next, err := h.bucketHead(slot)
	if err != nil {
		return 0, false, err
	}
	for next != aidb.NilBlock {
		b, err := h.readBucket(next)
		if err != nil {
			return 0, false, err
		}
		for i, k := range b.keys {
			if k == key {
				return aidb.RowPointer(b.ptrs[i]), true, nil
			}
		}
		next = b.overflow
	}
	return 0, false, nil
}

// Delete removes the entry with key and ptr and reports whether one
// was found; matching on the pointer keeps duplicate keys apart. A
// block emptied by the removal is unlinked from its chain and freed;
// an emptied head bucket hands the chain to the directory.
func (h *Table) Delete(key int64, ptr aidb.RowPointer) (bool, error) {
	slot := h.slot(key)
	head, err := h.bucketHead(slot)
	if err != nil {
		return false, err
	}
	var prev *bucket
	next := head
	for next != aidb.NilBlock {
		b, err := h.readBucket(next)
		if err != nil {
			return false, err
		}
		for i, k := range b.keys {
			if k != key || b.ptrs[i] != uint64(ptr) {
				continue
			}
			b.keys = append(b.keys[:i], b.keys[i+1:]...)
			b.ptrs = append(b.ptrs[:i], b.ptrs[i+1:]...)
			if len(b.keys) > 0 {
				return true, h.writeBucket(b)
			}
			if prev != nil {
				prev.overflow = b.overflow
				if err := h.writeBucket(prev); err != nil {
					return false, err
				}
			} else {
				if b.overflow != aidb.NilBlock {
					succ, err := h.readBucket(b.overflow)
					if err != nil {
						return false, err
					}
					succ.head = true
					if err := h.writeBucket(succ); err != nil {
						return false, err
					}
				}
				if err := h.setBucketHead(slot, b.overflow); err != nil {
					return false, err
				}
			}
			return true, h.alloc.Free(b.index)
		}
		prev = b
		next = b.overflow
	}
	return false, nil
}
