package bptree

import (
	"encoding/binary"
	"fmt"

	"github.com/NKID00/aidb"
)

// Block kinds. The first byte of every index block tags its role so a
// reader can reject a page that was routed to the wrong place.
const (
	leafKind     = 1
	internalKind = 2
)

const (
	leafHeaderSize     = 1 + 2 + 8 + 8 // kind, count, next, prev
	internalHeaderSize = 1 + 2         // kind, count
	entrySize          = 16            // key i64 + pointer u64
)

// node is the in-memory form of one index block. A leaf keeps keys and
// row pointers pairwise; an internal node keeps len(keys)+1 children
// where children[i] covers keys below keys[i].
type node struct {
	index aidb.BlockIndex
	leaf  bool
	keys  []int64
	ptrs  []uint64 // leaf: row pointers; internal: child blocks
	next  aidb.BlockIndex
	prev  aidb.BlockIndex
}

func (t *Tree) readNode(index aidb.BlockIndex) (*node, error) {
	if err := t.dev.Read(index, t.buf); err != nil {
		return nil, err
	}
	n := &node{index: index}
	switch t.buf[0] {
	case leafKind:
		n.leaf = true
		count := int(binary.LittleEndian.Uint16(t.buf[1:3]))
		if leafHeaderSize+count*entrySize > len(t.buf) {
			return nil, fmt.Errorf("%w: leaf %d claims %d entries", aidb.ErrIndexCorrupt, index, count)
		}
		n.next = aidb.BlockIndex(binary.LittleEndian.Uint64(t.buf[3:11]))
		n.prev = aidb.BlockIndex(binary.LittleEndian.Uint64(t.buf[11:19]))
		n.keys = make([]int64, count)
		n.ptrs = make([]uint64, count)
		for i := range count {
			off := leafHeaderSize + i*entrySize
			n.keys[i] = int64(binary.LittleEndian.Uint64(t.buf[off : off+8]))
			n.ptrs[i] = binary.LittleEndian.Uint64(t.buf[off+8 : off+16])
		}
	case internalKind:
		count := int(binary.LittleEndian.Uint16(t.buf[1:3]))
		if count == 0 || internalHeaderSize+(count+1)*8+count*8 > len(t.buf) {
			return nil, fmt.Errorf("%w: internal %d claims %d keys", aidb.ErrIndexCorrupt, index, count)
		}
		n.ptrs = make([]uint64, count+1)
		n.keys = make([]int64, count)
		off := internalHeaderSize
		for i := range n.ptrs {
			n.ptrs[i] = binary.LittleEndian.Uint64(t.buf[off : off+8])
			off += 8
		}
		for i := range n.keys {
			n.keys[i] = int64(binary.LittleEndian.Uint64(t.buf[off : off+8]))
			off += 8
		}
	default:
		return nil, fmt.Errorf("%w: block %d has kind %d", aidb.ErrIndexCorrupt, index, t.buf[0])
	}
	return n, nil
}

func (t *Tree) writeNode(n *node) error {
	clear(t.buf)
	if n.leaf {
		t.buf[0] = leafKind
		binary.LittleEndian.PutUint16(t.buf[1:3], uint16(len(n.keys)))
		binary.LittleEndian.PutUint64(t.buf[3:11], uint64(n.next))
		binary.LittleEndian.PutUint64(t.buf[11:19], uint64(n.prev))
		for i := range n.keys {
			off := leafHeaderSize + i*entrySize
			binary.LittleEndian.PutUint64(t.buf[off:off+8], uint64(n.keys[i]))
			binary.LittleEndian.PutUint64(t.buf[off+8:off+16], n.ptrs[i])
		}
	} else {
		t.buf[0] = internalKind
		binary.LittleEndian.PutUint16(t.buf[1:3], uint16(len(n.keys)))
		off := internalHeaderSize
		for i := range n.ptrs {
			binary.LittleEndian.PutUint64(t.buf[off:off+8], n.ptrs[i])
			off += 8
		}
		for i := range n.keys {
			binary.LittleEndian.PutUint64(t.buf[off:off+8], uint64(n.keys[i]))
			off += 8
		}
	}
	return t.dev.Write(n.index, t.buf)
}
