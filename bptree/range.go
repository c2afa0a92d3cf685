package bptree

import (
	"iter"

	"github.com/NKID00/aidb"
)

// Entry is one key/pointer pair yielded by Range.
type Entry struct {
	Key int64
	Ptr aidb.RowPointer
}

// Range yields entries with lo <= key <= hi in ascending key order,
// walking the leaf chain. The sequence restarts from lo every time it
// is ranged over; a read failure is yielded once and ends the scan.
func (t *Tree) Range(lo, hi int64) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		leaf, _, err := t.descend(lo, false)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		for {
			for i, k := range leaf.keys {
				if k < lo {
					continue
				}
				if k > hi {
					return
				}
				if !yield(Entry{Key: k, Ptr: aidb.RowPointer(leaf.ptrs[i])}, nil) {
					return
				}
			}
			if leaf.next == aidb.NilBlock {
				return
			}
			if leaf, err = t.readNode(leaf.next); err != nil {
				yield(Entry{}, err)
				return
			}
		}
	}
}
