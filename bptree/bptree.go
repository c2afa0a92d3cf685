// Package bptree implements a disk-resident B+Tree over integer keys.
// Every node occupies one block; leaves are linked both ways so range
// scans walk siblings without touching the upper levels.
package bptree

import (
	"fmt"

	"github.com/NKID00/aidb"
)

// Config tunes node fanout. The zero value derives capacities from the
// block size; tests shrink Order to force splits on tiny trees.
type Config struct {
	// Order caps entries per leaf and keys per internal node.
	// 0 means as many as the block holds.
	Order int
}

// Tree is a B+Tree rooted at a single block. Duplicate keys are
// allowed and kept in insertion order. Tree is not safe for concurrent
// use; the caller serializes access.
type Tree struct {
	dev   aidb.Device
	alloc aidb.Allocator
	root  aidb.BlockIndex
	buf   []byte

	maxLeaf     int
	maxInternal int
}

// Create allocates an empty root leaf and returns a tree rooted there.
func Create(dev aidb.Device, alloc aidb.Allocator, config Config) (*Tree, error) {
	t, err := prepare(dev, alloc, config)
	if err != nil {
		return nil, err
	}
	root, err := alloc.Allocate()
	if err != nil {
		return nil, err
	}
	t.root = root
	if err := t.writeNode(&node{index: root, leaf: true}); err != nil {
		return nil, err
	}
	return t, nil
}

// Open attaches to an existing tree rooted at root.
func Open(dev aidb.Device, alloc aidb.Allocator, root aidb.BlockIndex, config Config) (*Tree, error) {
	t, err := prepare(dev, alloc, config)
	if err != nil {
		return nil, err
	}
	t.root = root
	return t, nil
}

func prepare(dev aidb.Device, alloc aidb.Allocator, config Config) (*Tree, error) {
	blockSize := dev.BlockSize()
	maxLeaf := (blockSize - leafHeaderSize) / entrySize
	maxInternal := (blockSize - internalHeaderSize - 8) / entrySize
	if config.Order > 0 {
		if config.Order > maxLeaf || config.Order > maxInternal {
			return nil, fmt.Errorf("bptree: order %d exceeds block capacity", config.Order)
		}
		maxLeaf, maxInternal = config.Order, config.Order
	}
	if maxLeaf < 2 || maxInternal < 2 {
		return nil, fmt.Errorf("bptree: block size %d too small", blockSize)
	}
	return &Tree{
		dev:         dev,
		alloc:       alloc,
		buf:         make([]byte, blockSize),
		maxLeaf:     maxLeaf,
		maxInternal: maxInternal,
	}, nil
}

// Root reports the current root block. It changes when the tree grows
// or shrinks in height, so callers persist it after mutations.
func (t *Tree) Root() aidb.BlockIndex { return t.root }

type pathElem struct {
	node  *node
	child int
}

// descend walks from the root to a leaf. upper selects the child for
// insertion (equal keys go right, appending after existing ones);
// otherwise the leftmost leaf that can hold key is chosen.
func (t *Tree) descend(key int64, upper bool) (*node, []pathElem, error) {
	n, err := t.readNode(t.root)
	if err != nil {
		return nil, nil, err
	}
	var path []pathElem
	for !n.leaf {
		child := len(n.keys)
		for i, sep := range n.keys {
			if key < sep || (!upper && key == sep) {
				child = i
				break
			}
		}
		path = append(path, pathElem{node: n, child: child})
		if n, err = t.readNode(aidb.BlockIndex(n.ptrs[child])); err != nil {
			return nil, nil, err
		}
	}
	return n, path, nil
}

// Search returns the row pointer of the first entry with key.
func (t *Tree) Search(key int64) (aidb.RowPointer, bool, error) {
	leaf, _, err := t.descend(key, false)
	if err != nil {
		return 0, false, err
	}
	for leaf != nil {
		for i, k := range leaf.keys {
			if k == key {
				return aidb.RowPointer(leaf.ptrs[i]), true, nil
			}
			if k > key {
				return 0, false, nil
			}
		}
		if leaf.next == aidb.NilBlock {
			break
		}
		if leaf, err = t.readNode(leaf.next); err != nil {
			return 0, false, err
		}
	}
	return 0, false, nil
}

// Insert adds an entry. Equal keys stack up in arrival order.
func (t *Tree) Insert(key int64, ptr aidb.RowPointer) error {
	leaf, path, err := t.descend(key, true)
	if err != nil {
		return err
	}
	at := len(leaf.keys)
	for i, k := range leaf.keys {
		if key < k {
			at = i
			break
		}
	}
	leaf.keys = insertAt(leaf.keys, at, key)
	leaf.ptrs = insertAt(leaf.ptrs, at, uint64(ptr))
	if len(leaf.keys) <= t.maxLeaf {
		return t.writeNode(leaf)
	}
	return t.splitLeaf(leaf, path)
}

func (t *Tree) splitLeaf(leaf *node, path []pathElem) error {
	at := splitPoint(leaf.keys)
	index, err := t.alloc.Allocate()
	if err != nil {
		return err
	}
	right := &node{
		index: index,
		leaf:  true,
		keys:  append([]int64(nil), leaf.keys[at:]...),
		ptrs:  append([]uint64(nil), leaf.ptrs[at:]...),
		next:  leaf.next,
		prev:  leaf.index,
	}
	leaf.keys = leaf.keys[:at]
	leaf.ptrs = leaf.ptrs[:at]
	leaf.next = right.index
	if right.next != aidb.NilBlock {
		after, err := t.readNode(right.next)
		if err != nil {
			return err
		}
		after.prev = right.index
		if err := t.writeNode(after); err != nil {
			return err
		}
	}
	if err := t.writeNode(right); err != nil {
		return err
	}
	if err := t.writeNode(leaf); err != nil {
		return err
	}
	return t.insertSeparator(right.keys[0], right.index, path)
}

// insertSeparator threads a promoted key up the descent path,
// splitting internal nodes as they overflow.
func (t *Tree) insertSeparator(sep int64, child aidb.BlockIndex, path []pathElem) error {
	for len(path) > 0 {
		parent := path[len(path)-1]
		path = path[:len(path)-1]
		n := parent.node
		n.keys = insertAt(n.keys, parent.child, sep)
		n.ptrs = insertAt(n.ptrs, parent.child+1, uint64(child))
		if len(n.keys) <= t.maxInternal {
			return t.writeNode(n)
		}
		mid := len(n.keys) / 2
		index, err := t.alloc.Allocate()
		if err != nil {
			return err
		}
		right := &node{
			index: index,
			keys:  append([]int64(nil), n.keys[mid+1:]...),
			ptrs:  append([]uint64(nil), n.ptrs[mid+1:]...),
		}
		sep = n.keys[mid]
		n.keys = n.keys[:mid]
		n.ptrs = n.ptrs[:mid+1]
		if err := t.writeNode(right); err != nil {
			return err
		}
		if err := t.writeNode(n); err != nil {
			return err
		}
		child = right.index
	}
	// The root itself split; grow the tree by one level.
	oldRoot := t.root
	index, err := t.alloc.Allocate()
	if err != nil {
		return err
	}
	root := &node{
		index: index,
		keys:  []int64{sep},
		ptrs:  []uint64{uint64(oldRoot), uint64(child)},
	}
	if err := t.writeNode(root); err != nil {
		return err
	}
	t.root = index
	return nil
}

// splitPoint picks a split index near the middle that keeps runs of
// equal keys together. Only a leaf holding a single key splits mid-run.
func splitPoint(keys []int64) int {
	mid := len(keys) / 2
	for d := 0; d < len(keys); d++ {
		if at := mid - d; at >= 1 && keys[at-1] != keys[at] {
			return at
		}
		if at := mid + d; at < len(keys) && keys[at-1] != keys[at] {
			return at
		}
	}
	return mid
}

func insertAt[T any](s []T, at int, v T) []T {
	s = append(s, v)
	copy(s[at+1:], s[at:])
	s[at] = v
	return s
}

func removeAt[T any](s []T, at int) []T {
	copy(s[at:], s[at+1:])
	return s[:len(s)-1]
}
