package bptree

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/NKID00/aidb"
	"github.com/NKID00/aidb/alloc"
	"github.com/NKID00/aidb/block"
	"github.com/NKID00/aidb/mem"
	"github.com/stretchr/testify/require"
)

func newTree(t *testing.T, order int) (*Tree, *alloc.List) {
	t.Helper()
	var f mem.File
	dev, err := block.New(&f, 512, nil)
	require.NoError(t, err)
	_, err = dev.Grow() // block 0
	require.NoError(t, err)

	list, err := alloc.Load(dev, aidb.NilBlock, 0)
	require.NoError(t, err)
	tree, err := Create(dev, list, Config{Order: order})
	require.NoError(t, err)
	return tree, list
}

func collect(t *testing.T, tree *Tree, lo, hi int64) []Entry {
	t.Helper()
	var out []Entry
	for e, err := range tree.Range(lo, hi) {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestEmptyTree(t *testing.T) {
	tree, _ := newTree(t, 4)

	_, found, err := tree.Search(7)
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, collect(t, tree, -100, 100))

	removed, err := tree.Delete(7, 1)
	require.NoError(t, err)
	require.False(t, removed)
}

func TestInsertSearch(t *testing.T) {
	tree, _ := newTree(t, 4)

	for i := int64(0); i < 100; i++ {
		require.NoError(t, tree.Insert(i*3, aidb.RowPointer(i+1)))
	}
	for i := int64(0); i < 100; i++ {
		ptr, found, err := tree.Search(i * 3)
		require.NoError(t, err)
		require.True(t, found, "key %d", i*3)
		require.EqualValues(t, i+1, ptr)
	}
	_, found, err := tree.Search(1)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRootChangesOnSplit(t *testing.T) {
	tree, _ := newTree(t, 4)
	root := tree.Root()

	for i := int64(0); i < 10; i++ {
		require.NoError(t, tree.Insert(i, aidb.RowPointer(i)))
	}
	require.NotEqual(t, root, tree.Root())
}

func TestRangeOrderedAfterRandomInserts(t *testing.T) {
	tree, _ := newTree(t, 4)
	rng := rand.New(rand.NewSource(1))

	keys := rng.Perm(500)
	for i, k := range keys {
		require.NoError(t, tree.Insert(int64(k), aidb.RowPointer(i+1)))
	}

	got := collect(t, tree, 0, 499)
	require.Len(t, got, 500)
	for i, e := range got {
		require.EqualValues(t, i, e.Key)
	}
}

func TestRangeBounds(t *testing.T) {
	tree, _ := newTree(t, 4)
	for i := int64(0); i < 50; i++ {
		require.NoError(t, tree.Insert(i*2, aidb.RowPointer(i+1)))
	}

	got := collect(t, tree, 10, 20)
	want := []int64{10, 12, 14, 16, 18, 20}
	require.Len(t, got, len(want))
	for i, e := range got {
		require.Equal(t, want[i], e.Key)
	}

	// Bounds between keys and a restarted scan.
	got = collect(t, tree, 11, 13)
	require.Len(t, got, 1)
	require.EqualValues(t, 12, got[0].Key)
	got = collect(t, tree, 11, 13)
	require.Len(t, got, 1)

	require.Empty(t, collect(t, tree, 200, 300))
}

func TestNegativeKeys(t *testing.T) {
	tree, _ := newTree(t, 4)
	for _, k := range []int64{-5, 3, -40, 0, 17, -1} {
		require.NoError(t, tree.Insert(k, aidb.RowPointer(uint64(k)+100)))
	}

	got := collect(t, tree, -100, 100)
	keys := make([]int64, len(got))
	for i, e := range got {
		keys[i] = e.Key
	}
	require.Equal(t, []int64{-40, -5, -1, 0, 3, 17}, keys)
}

func TestDuplicatesKeepInsertionOrder(t *testing.T) {
	tree, _ := newTree(t, 4)

	for i := uint64(1); i <= 20; i++ {
		require.NoError(t, tree.Insert(7, aidb.RowPointer(i)))
	}
	require.NoError(t, tree.Insert(3, aidb.RowPointer(100)))
	require.NoError(t, tree.Insert(9, aidb.RowPointer(200)))

	got := collect(t, tree, 7, 7)
	require.Len(t, got, 20)
	for i, e := range got {
		require.EqualValues(t, i+1, e.Ptr)
	}

	// Search reports the oldest entry.
	ptr, found, err := tree.Search(7)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 1, ptr)
}

func TestDeleteMatchesPointerAmongDuplicates(t *testing.T) {
	tree, _ := newTree(t, 4)

	// A run of duplicates long enough to straddle several leaves.
	for i := uint64(1); i <= 20; i++ {
		require.NoError(t, tree.Insert(7, aidb.RowPointer(i)))
	}

	// Removing one entry by pointer must leave every other duplicate.
	removed, err := tree.Delete(7, 13)
	require.NoError(t, err)
	require.True(t, removed)

	got := collect(t, tree, 7, 7)
	require.Len(t, got, 19)
	for _, e := range got {
		require.NotEqualValues(t, 13, e.Ptr)
	}

	// The oldest entry survives a delete of the newest.
	removed, err = tree.Delete(7, 20)
	require.NoError(t, err)
	require.True(t, removed)
	ptr, found, err := tree.Search(7)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 1, ptr)

	// A pointer not in the tree removes nothing.
	removed, err = tree.Delete(7, 99)
	require.NoError(t, err)
	require.False(t, removed)
	require.Len(t, collect(t, tree, 7, 7), 18)
}

func TestDeleteSimple(t *testing.T) {
	tree, _ := newTree(t, 4)
	for i := int64(0); i < 10; i++ {
		require.NoError(t, tree.Insert(i, aidb.RowPointer(i+1)))
	}

	removed, err := tree.Delete(4, 5)
	require.NoError(t, err)
	require.True(t, removed)

	_, found, err := tree.Search(4)
	require.NoError(t, err)
	require.False(t, found)

	removed, err = tree.Delete(4, 5)
	require.NoError(t, err)
	require.False(t, removed)
	require.Len(t, collect(t, tree, 0, 9), 9)
}

func TestDeleteAllCollapsesRoot(t *testing.T) {
	tree, list := newTree(t, 4)

	for i := int64(0); i < 200; i++ {
		require.NoError(t, tree.Insert(i, aidb.RowPointer(i+1)))
	}
	freeBefore := list.Count()

	for i := int64(0); i < 200; i++ {
		removed, err := tree.Delete(i, aidb.RowPointer(i+1))
		require.NoError(t, err)
		require.True(t, removed, "key %d", i)
	}
	require.Empty(t, collect(t, tree, 0, 200))

	// The tree is a single empty leaf again; merges returned the rest.
	leaf, err := tree.readNode(tree.Root())
	require.NoError(t, err)
	require.True(t, leaf.leaf)
	require.Empty(t, leaf.keys)
	require.Greater(t, list.Count(), freeBefore)
}

func TestDeleteInterleaved(t *testing.T) {
	tree, _ := newTree(t, 4)
	rng := rand.New(rand.NewSource(2))

	keys := rng.Perm(300)
	for i, k := range keys {
		require.NoError(t, tree.Insert(int64(k), aidb.RowPointer(i+1)))
	}

	var kept []int64
	for i, k := range keys {
		if k%3 == 0 {
			removed, err := tree.Delete(int64(k), aidb.RowPointer(i+1))
			require.NoError(t, err)
			require.True(t, removed, "key %d", k)
		} else {
			kept = append(kept, int64(k))
		}
	}
	slices.Sort(kept)

	got := collect(t, tree, 0, 299)
	require.Len(t, got, len(kept))
	for i, e := range got {
		require.Equal(t, kept[i], e.Key)
	}
}

func TestFullFanoutFromBlockSize(t *testing.T) {
	tree, _ := newTree(t, 0)
	// (512-19)/16 = 30 entries per leaf.
	require.Equal(t, 30, tree.maxLeaf)

	for i := int64(0); i < 1000; i++ {
		require.NoError(t, tree.Insert(i, aidb.RowPointer(i+1)))
	}
	require.Len(t, collect(t, tree, 0, 999), 1000)
}

func TestCorruptNodeRejected(t *testing.T) {
	tree, _ := newTree(t, 4)
	require.NoError(t, tree.Insert(1, 1))

	buf := make([]byte, 512)
	buf[0] = 0xEE
	require.NoError(t, tree.dev.Write(tree.Root(), buf))

	_, _, err := tree.Search(1)
	require.ErrorIs(t, err, aidb.ErrIndexCorrupt)
}

func TestReopen(t *testing.T) {
	var f mem.File
	dev, err := block.New(&f, 512, nil)
	require.NoError(t, err)
	_, err = dev.Grow()
	require.NoError(t, err)
	list, err := alloc.Load(dev, aidb.NilBlock, 0)
	require.NoError(t, err)

	tree, err := Create(dev, list, Config{Order: 4})
	require.NoError(t, err)
	for i := int64(0); i < 50; i++ {
		require.NoError(t, tree.Insert(i, aidb.RowPointer(i+1)))
	}
	root := tree.Root()

	again, err := Open(dev, list, root, Config{Order: 4})
	require.NoError(t, err)
	ptr, found, err := again.Search(33)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 34, ptr)
}
