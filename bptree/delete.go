package bptree

import "github.com/NKID00/aidb"

// Delete removes the entry carrying key and ptr and reports whether
// one was found. The pointer disambiguates duplicate keys: only the
// matching entry goes, never a sibling with the same key. Underfull
// nodes borrow from a sibling when they can and merge otherwise; the
// root collapses when it runs out of separators.
func (t *Tree) Delete(key int64, ptr aidb.RowPointer) (bool, error) {
	leaf, path, err := t.descend(key, false)
	if err != nil {
		return false, err
	}
	at := -1
	for i, k := range leaf.keys {
		if k == key && aidb.RowPointer(leaf.ptrs[i]) == ptr {
			at = i
			break
		}
		if k > key {
			return false, nil
		}
	}
	if at < 0 {
		// The duplicate run can continue past this leaf, and a stale
		// separator can route equal keys past it too. Walk the sibling
		// links; entries found there shed no rebalance since the
		// descent path does not cover them.
		return t.deleteForward(leaf, key, ptr)
	}
	leaf.keys = removeAt(leaf.keys, at)
	leaf.ptrs = removeAt(leaf.ptrs, at)
	if len(path) == 0 || len(leaf.keys) >= t.maxLeaf/2 {
		return true, t.writeNode(leaf)
	}
	if err := t.rebalanceLeaf(leaf, path); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tree) deleteForward(leaf *node, key int64, ptr aidb.RowPointer) (bool, error) {
	for leaf.next != aidb.NilBlock {
		var err error
		if leaf, err = t.readNode(leaf.next); err != nil {
			return false, err
		}
		for i, k := range leaf.keys {
			if k == key && aidb.RowPointer(leaf.ptrs[i]) == ptr {
				leaf.keys = removeAt(leaf.keys, i)
				leaf.ptrs = removeAt(leaf.ptrs, i)
				return true, t.writeNode(leaf)
			}
			if k > key {
				return false, nil
			}
		}
	}
	return false, nil
}

func (t *Tree) rebalanceLeaf(leaf *node, path []pathElem) error {
	parent := path[len(path)-1]
	n, pos := parent.node, parent.child

	if pos > 0 {
		left, err := t.readNode(aidb.BlockIndex(n.ptrs[pos-1]))
		if err != nil {
			return err
		}
		if len(left.keys) > t.maxLeaf/2 {
			last := len(left.keys) - 1
			leaf.keys = insertAt(leaf.keys, 0, left.keys[last])
			leaf.ptrs = insertAt(leaf.ptrs, 0, left.ptrs[last])
			left.keys = left.keys[:last]
			left.ptrs = left.ptrs[:last]
			n.keys[pos-1] = leaf.keys[0]
			return writeAll(t, left, leaf, n)
		}
		// Merge leaf into its left sibling.
		left.keys = append(left.keys, leaf.keys...)
		left.ptrs = append(left.ptrs, leaf.ptrs...)
		left.next = leaf.next
		if err := t.relink(leaf.next, left.index); err != nil {
			return err
		}
		if err := t.writeNode(left); err != nil {
			return err
		}
		if err := t.alloc.Free(leaf.index); err != nil {
			return err
		}
		n.keys = removeAt(n.keys, pos-1)
		n.ptrs = removeAt(n.ptrs, pos)
		return t.rebalanceInternal(path)
	}

	right, err := t.readNode(aidb.BlockIndex(n.ptrs[pos+1]))
	if err != nil {
		return err
	}
	if len(right.keys) > t.maxLeaf/2 {
		leaf.keys = append(leaf.keys, right.keys[0])
		leaf.ptrs = append(leaf.ptrs, right.ptrs[0])
		right.keys = removeAt(right.keys, 0)
		right.ptrs = removeAt(right.ptrs, 0)
		n.keys[pos] = right.keys[0]
		return writeAll(t, leaf, right, n)
	}
	leaf.keys = append(leaf.keys, right.keys...)
	leaf.ptrs = append(leaf.ptrs, right.ptrs...)
	leaf.next = right.next
	if err := t.relink(right.next, leaf.index); err != nil {
		return err
	}
	if err := t.writeNode(leaf); err != nil {
		return err
	}
	if err := t.alloc.Free(right.index); err != nil {
		return err
	}
	n.keys = removeAt(n.keys, pos)
	n.ptrs = removeAt(n.ptrs, pos+1)
	return t.rebalanceInternal(path)
}

// rebalanceInternal repairs the deepest node on path after it lost a
// separator, walking toward the root as merges cascade.
func (t *Tree) rebalanceInternal(path []pathElem) error {
	for len(path) > 0 {
		n := path[len(path)-1].node
		path = path[:len(path)-1]

		if len(path) == 0 {
			if len(n.keys) == 0 {
				t.root = aidb.BlockIndex(n.ptrs[0])
				return t.alloc.Free(n.index)
			}
			return t.writeNode(n)
		}
		if len(n.keys) >= t.maxInternal/2 {
			return t.writeNode(n)
		}

		parent := path[len(path)-1]
		p, pos := parent.node, parent.child

		if pos > 0 {
			left, err := t.readNode(aidb.BlockIndex(p.ptrs[pos-1]))
			if err != nil {
				return err
			}
			if len(left.keys) > t.maxInternal/2 {
				last := len(left.keys) - 1
				n.keys = insertAt(n.keys, 0, p.keys[pos-1])
				n.ptrs = insertAt(n.ptrs, 0, left.ptrs[last+1])
				p.keys[pos-1] = left.keys[last]
				left.keys = left.keys[:last]
				left.ptrs = left.ptrs[:last+1]
				return writeAll(t, left, n, p)
			}
			left.keys = append(left.keys, p.keys[pos-1])
			left.keys = append(left.keys, n.keys...)
			left.ptrs = append(left.ptrs, n.ptrs...)
			if err := t.writeNode(left); err != nil {
				return err
			}
			if err := t.alloc.Free(n.index); err != nil {
				return err
			}
			p.keys = removeAt(p.keys, pos-1)
			p.ptrs = removeAt(p.ptrs, pos)
			continue
		}

		right, err := t.readNode(aidb.BlockIndex(p.ptrs[pos+1]))
		if err != nil {
			return err
		}
		if len(right.keys) > t.maxInternal/2 {
			n.keys = append(n.keys, p.keys[pos])
			n.ptrs = append(n.ptrs, right.ptrs[0])
			p.keys[pos] = right.keys[0]
			right.keys = removeAt(right.keys, 0)
			right.ptrs = removeAt(right.ptrs, 0)
			return writeAll(t, n, right, p)
		}
		n.keys = append(n.keys, p.keys[pos])
		n.keys = append(n.keys, right.keys...)
		n.ptrs = append(n.ptrs, right.ptrs...)
		if err := t.writeNode(n); err != nil {
			return err
		}
		if err := t.alloc.Free(right.index); err != nil {
			return err
		}
		p.keys = removeAt(p.keys, pos)
		p.ptrs = removeAt(p.ptrs, pos+1)
	}
	return nil
}

func (t *Tree) relink(index, prev aidb.BlockIndex) error {
	if index == aidb.NilBlock {
		return nil
	}
	after, err := t.readNode(index)
	if err != nil {
		return err
	}
	after.prev = prev
	return t.writeNode(after)
}

func writeAll(t *Tree, nodes ...*node) error {
	for _, n := range nodes {
		if err := t.writeNode(n); err != nil {
			return err
		}
	}
	return nil
}
