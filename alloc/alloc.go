// Package alloc tracks unused blocks. Freed blocks form an on-disk
// LIFO chain rooted in the super block; each link carries a stamp so a
// broken chain is detected instead of silently reusing live data.
package alloc

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/NKID00/aidb"
)

type BlockIndex = aidb.BlockIndex

// Free block layout: stamp "FREE" (4) | next (8) | crc32c (4).
const (
	stampMagic = uint32('F') | uint32('R')<<8 | uint32('E')<<16 | uint32('E')<<24
	stampSize  = 16
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// List is the free-space allocator for one store. It is not safe for
// concurrent use; the store serializes mutations through its single
// writer.
type List struct {
	dev aidb.Device
	buf []byte

	// stack of free blocks, most recently freed last. inFree mirrors it
	// and is the in-use tag that makes DoubleFree detection exact.
	stack  []BlockIndex
	inFree map[BlockIndex]struct{}
}

var _ aidb.Allocator = (*List)(nil)

// Load rebuilds the allocator state by walking the free chain from
// head. count is the chain length recorded in the super block.
func Load(dev aidb.Device, head BlockIndex, count uint64) (*List, error) {
	list := &List{
		dev:    dev,
		buf:    make([]byte, dev.BlockSize()),
		inFree: make(map[BlockIndex]struct{}, count),
	}

	// Walk in chain order (most recently freed first), then reverse so
	// the top of the stack is the chain head again.
	for index := head; index != aidb.NilBlock; {
		if uint64(len(list.stack)) >= count {
			return nil, fmt.Errorf("%w: chain longer than recorded count %d", aidb.ErrBadFreeBlock, count)
		}
		if _, ok := list.inFree[index]; ok {
			return nil, fmt.Errorf("%w: block %d appears twice in the free chain", aidb.ErrBadFreeBlock, index)
		}

		next, err := list.readStamp(index)
		if err != nil {
			return nil, err
		}
		list.stack = append(list.stack, index)
		list.inFree[index] = struct{}{}
		index = next
	}
	if uint64(len(list.stack)) != count {
		return nil, fmt.Errorf("%w: chain holds %d blocks, super block records %d",
			aidb.ErrBadFreeBlock, len(list.stack), count)
	}

	for i, j := 0, len(list.stack)-1; i < j; i, j = i+1, j-1 {
		list.stack[i], list.stack[j] = list.stack[j], list.stack[i]
	}
	return list, nil
}

// Allocate returns a free block, preferring the most recently freed one
// before growing the device.
func (list *List) Allocate() (BlockIndex, error) {
	if n := len(list.stack); n > 0 {
		index := list.stack[n-1]
		list.stack = list.stack[:n-1]
		delete(list.inFree, index)
		return index, nil
	}
	return list.dev.Grow()
}

// Free pushes index onto the free list. Freeing block 0, a block beyond
// the device or an already-free block is a caller error.
func (list *List) Free(index BlockIndex) error {
	if index == aidb.NilBlock || uint64(index) >= list.dev.Count() {
		return fmt.Errorf("%w: free block %d, count %d", aidb.ErrBlockOutOfRange, index, list.dev.Count())
	}
	if _, ok := list.inFree[index]; ok {
		return fmt.Errorf("%w: block %d", aidb.ErrDoubleFree, index)
	}

	if err := list.writeStamp(index, list.Head()); err != nil {
		return err
	}
	list.stack = append(list.stack, index)
	list.inFree[index] = struct{}{}
	return nil
}

// Head returns the top of the free list for the super block, 0 if the
// list is empty.
func (list *List) Head() BlockIndex {
	if n := len(list.stack); n > 0 {
		return list.stack[n-1]
	}
	return aidb.NilBlock
}

// Count returns the number of free blocks.
func (list *List) Count() uint64 {
	return uint64(len(list.stack))
}

// InUse reports whether index is currently allocated.
func (list *List) InUse(index BlockIndex) bool {
	_, free := list.inFree[index]
	return !free && uint64(index) < list.dev.Count()
}

func (list *List) readStamp(index BlockIndex) (next BlockIndex, err error) {
	if err = list.dev.Read(index, list.buf); err != nil {
		return
	}
	if binary.LittleEndian.Uint32(list.buf) != stampMagic {
		err = fmt.Errorf("%w: block %d has no free stamp", aidb.ErrBadFreeBlock, index)
		return
	}
	if sum := binary.LittleEndian.Uint32(list.buf[12:]); sum != crc32.Checksum(list.buf[:12], castagnoli) {
		err = fmt.Errorf("%w: block %d fails its stamp checksum", aidb.ErrBadFreeBlock, index)
		return
	}
	next = BlockIndex(binary.LittleEndian.Uint64(list.buf[4:]))
	return
}

func (list *List) writeStamp(index, next BlockIndex) error {
	clear(list.buf)
	binary.LittleEndian.PutUint32(list.buf, stampMagic)
	binary.LittleEndian.PutUint64(list.buf[4:], uint64(next))
	binary.LittleEndian.PutUint32(list.buf[12:], crc32.Checksum(list.buf[:12], castagnoli))
	return list.dev.Write(index, list.buf)
}
