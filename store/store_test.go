package store

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/NKID00/aidb"
	"github.com/NKID00/aidb/mem"
	"github.com/NKID00/aidb/schema"
	"github.com/stretchr/testify/require"
)

func usersTable(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.CreateTable("users", []schema.Column{
		{Name: "id", Type: aidb.TypeInteger},
		{Name: "score", Type: aidb.TypeReal},
		{Name: "name", Type: aidb.TypeText},
	}))
}

func collectRows(t *testing.T, s *Store, table string) []Row {
	t.Helper()
	var out []Row
	for r, err := range s.Scan(table) {
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func TestCreateAndDescribe(t *testing.T) {
	var f mem.File
	s, err := Create(&f, 512)
	require.NoError(t, err)
	usersTable(t, s)

	require.Equal(t, []string{"users"}, s.Tables())

	def, err := s.Describe("users")
	require.NoError(t, err)
	require.Equal(t, "users", def.Name)
	require.Len(t, def.Columns, 3)
	require.Equal(t, aidb.TypeReal, def.Columns[1].Type)

	err = s.CreateTable("users", nil)
	require.ErrorIs(t, err, aidb.ErrTableExists)

	_, err = s.Describe("ghosts")
	require.ErrorIs(t, err, aidb.ErrTableNotFound)
}

func TestInsertGetScan(t *testing.T) {
	var f mem.File
	s, err := Create(&f, 512)
	require.NoError(t, err)
	usersTable(t, s)

	long := strings.Repeat("sesquipedalian ", 100)
	ptr1, err := s.Insert("users", []aidb.Value{aidb.Integer(1), aidb.Real(0.5), aidb.Text("ada")})
	require.NoError(t, err)
	ptr2, err := s.Insert("users", []aidb.Value{aidb.Integer(2), aidb.Null(), aidb.Text(long)})
	require.NoError(t, err)

	values, found, err := s.Get("users", ptr1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "ada", values[2].Text())
	require.Equal(t, 0.5, values[1].Float())

	values, found, err = s.Get("users", ptr2)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, values[1].IsNull())
	require.Equal(t, long, values[2].Text())

	rows := collectRows(t, s, "users")
	require.Len(t, rows, 2)
	require.Equal(t, ptr1, rows[0].Ptr)
	require.Equal(t, ptr2, rows[1].Ptr)
}

func TestConcurrentReaders(t *testing.T) {
	var f mem.File
	s, err := Create(&f, 512)
	require.NoError(t, err)
	usersTable(t, s)

	longA := strings.Repeat("alpha ", 300)
	longB := strings.Repeat("beta ", 400)
	ptrA, err := s.Insert("users", []aidb.Value{aidb.Integer(1), aidb.Real(1), aidb.Text(longA)})
	require.NoError(t, err)
	ptrB, err := s.Insert("users", []aidb.Value{aidb.Integer(2), aidb.Real(2), aidb.Text(longB)})
	require.NoError(t, err)

	// Readers resolving overflow chains in parallel must each see their
	// own row's bytes.
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				for _, want := range []struct {
					ptr  aidb.RowPointer
					text string
				}{{ptrA, longA}, {ptrB, longB}} {
					values, found, err := s.Get("users", want.ptr)
					if err != nil {
						errs <- err
						return
					}
					if !found || values[2].Text() != want.text {
						errs <- fmt.Errorf("row %v came back wrong", want.ptr)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestInsertSpillsAcrossDataBlocks(t *testing.T) {
	var f mem.File
	s, err := Create(&f, 512)
	require.NoError(t, err)
	usersTable(t, s)

	for i := range int64(100) {
		_, err := s.Insert("users", []aidb.Value{aidb.Integer(i), aidb.Real(float64(i)), aidb.Text("row")})
		require.NoError(t, err)
	}
	rows := collectRows(t, s, "users")
	require.Len(t, rows, 100)
	for i, r := range rows {
		require.EqualValues(t, i, r.Values[0].Int())
	}

	// 100 rows of 31 bytes do not fit one 512-byte block.
	blocks := make(map[aidb.BlockIndex]bool)
	for _, r := range rows {
		blocks[r.Ptr.Block()] = true
	}
	require.Greater(t, len(blocks), 1)
}

func TestRowShapeRejected(t *testing.T) {
	var f mem.File
	s, err := Create(&f, 512)
	require.NoError(t, err)
	usersTable(t, s)

	_, err = s.Insert("users", []aidb.Value{aidb.Integer(1)})
	require.ErrorIs(t, err, aidb.ErrRowShape)
	_, err = s.Insert("users", []aidb.Value{aidb.Text("x"), aidb.Real(1), aidb.Text("y")})
	require.ErrorIs(t, err, aidb.ErrRowShape)
}

func TestDelete(t *testing.T) {
	var f mem.File
	s, err := Create(&f, 512)
	require.NoError(t, err)
	usersTable(t, s)

	long := strings.Repeat("z", 3000)
	ptr, err := s.Insert("users", []aidb.Value{aidb.Integer(7), aidb.Real(1), aidb.Text(long)})
	require.NoError(t, err)
	_, err = s.Insert("users", []aidb.Value{aidb.Integer(8), aidb.Real(2), aidb.Text("keep")})
	require.NoError(t, err)

	freeBefore := s.alloc.Count()
	found, err := s.Delete("users", ptr)
	require.NoError(t, err)
	require.True(t, found)

	// The long text's chain went back to the free list.
	require.Greater(t, s.alloc.Count(), freeBefore)

	_, found, err = s.Get("users", ptr)
	require.NoError(t, err)
	require.False(t, found)

	found, err = s.Delete("users", ptr)
	require.NoError(t, err)
	require.False(t, found)

	rows := collectRows(t, s, "users")
	require.Len(t, rows, 1)
	require.EqualValues(t, 8, rows[0].Values[0].Int())
}

func TestBadPointer(t *testing.T) {
	var f mem.File
	s, err := Create(&f, 512)
	require.NoError(t, err)
	usersTable(t, s)

	_, _, err = s.Get("users", aidb.NewRowPointer(aidb.NilBlock, 0))
	require.ErrorIs(t, err, ErrPointer)

	def, err := s.Describe("users")
	require.NoError(t, err)
	_, _, err = s.Get("users", aidb.NewRowPointer(def.DataHead, 9))
	require.ErrorIs(t, err, ErrPointer)
}

func TestReopen(t *testing.T) {
	var f mem.File
	s, err := Create(&f, 512)
	require.NoError(t, err)
	usersTable(t, s)

	long := strings.Repeat("persistence ", 80)
	_, err = s.Insert("users", []aidb.Value{aidb.Integer(1), aidb.Real(1.5), aidb.Text(long)})
	require.NoError(t, err)
	id := s.Info().StoreID
	require.NoError(t, s.Sync())

	again, err := Open(&f, 512)
	require.NoError(t, err)
	require.Equal(t, id, again.Info().StoreID)
	require.Equal(t, []string{"users"}, again.Tables())

	rows := collectRows(t, again, "users")
	require.Len(t, rows, 1)
	require.Equal(t, long, rows[0].Values[2].Text())
}

func TestOpenWrongBlockSize(t *testing.T) {
	var f mem.File
	s, err := Create(&f, 512)
	require.NoError(t, err)
	usersTable(t, s)

	_, err = Open(&f, 1024)
	require.ErrorIs(t, err, aidb.ErrCorruptSuperBlock)
}

func TestFreedBlocksReused(t *testing.T) {
	var f mem.File
	s, err := Create(&f, 512)
	require.NoError(t, err)
	usersTable(t, s)

	long := strings.Repeat("y", 2000)
	ptr, err := s.Insert("users", []aidb.Value{aidb.Integer(1), aidb.Real(0), aidb.Text(long)})
	require.NoError(t, err)
	count := s.dev.Count()

	_, err = s.Delete("users", ptr)
	require.NoError(t, err)
	_, err = s.Insert("users", []aidb.Value{aidb.Integer(2), aidb.Real(0), aidb.Text(long)})
	require.NoError(t, err)

	// The second long text fits entirely in reclaimed blocks.
	require.Equal(t, count, s.dev.Count())
}

func TestInfo(t *testing.T) {
	var f mem.File
	s, err := Create(&f, 512)
	require.NoError(t, err)
	usersTable(t, s)

	info := s.Info()
	require.Equal(t, 512, info.BlockSize)
	require.Equal(t, 1, info.Tables)
	require.NotZero(t, info.StoreID)
	require.EqualValues(t, info.BlockCount, s.dev.Count())
	require.NotZero(t, info.IO.Writes)
	require.NotZero(t, info.IO.Grows)
}
