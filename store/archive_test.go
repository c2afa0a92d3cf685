package store

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/NKID00/aidb"
	"github.com/NKID00/aidb/disk"
	"github.com/NKID00/aidb/mem"
	"github.com/NKID00/aidb/schema"
	"github.com/stretchr/testify/require"
)

func populated(t *testing.T) *Store {
	t.Helper()
	var f mem.File
	s, err := Create(&f, 512, WithIndexOrder(4))
	require.NoError(t, err)
	usersTable(t, s)
	require.NoError(t, s.CreateIndex("users", "id", schema.IndexBTree))

	long := strings.Repeat("archive me ", 120)
	for i := range int64(30) {
		_, err := s.Insert("users", []aidb.Value{aidb.Integer(i), aidb.Real(float64(i) / 2), aidb.Text("row")})
		require.NoError(t, err)
	}
	ptr, err := s.Insert("users", []aidb.Value{aidb.Integer(99), aidb.Real(0), aidb.Text(long)})
	require.NoError(t, err)

	// Leave holes so the archive has gaps to reconstruct.
	_, err = s.Delete("users", ptr)
	require.NoError(t, err)
	return s
}

func TestArchiveRoundTrip(t *testing.T) {
	s := populated(t)

	var f mem.File
	restored, err := Restore(&f, 512, s.Blocks(), WithIndexOrder(4))
	require.NoError(t, err)

	require.Equal(t, s.Info().StoreID, restored.Info().StoreID)
	require.Equal(t, s.Tables(), restored.Tables())

	want := collectRows(t, s, "users")
	got := collectRows(t, restored, "users")
	require.Equal(t, len(want), len(got))
	for i := range want {
		require.Equal(t, want[i].Ptr, got[i].Ptr)
		require.Len(t, got[i].Values, len(want[i].Values))
		for j := range want[i].Values {
			require.True(t, want[i].Values[j].Equal(got[i].Values[j]),
				"row %d column %d", i, j)
		}
	}

	r, found, err := restored.Lookup("users", 17)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 17, r.Values[0].Int())

	// The restored store keeps growing from its rebuilt free list.
	_, err = restored.Insert("users", []aidb.Value{aidb.Integer(1000), aidb.Real(0), aidb.Text("post-restore")})
	require.NoError(t, err)
}

func TestArchiveSkipsFreeBlocks(t *testing.T) {
	s := populated(t)

	live := 0
	for _, err := range s.Blocks() {
		require.NoError(t, err)
		live++
	}
	require.Less(t, uint64(live), s.dev.Count())
	require.EqualValues(t, live, s.dev.Count()-s.alloc.Count())
}

func TestRestoreRejectsEmptyArchive(t *testing.T) {
	var f mem.File
	_, err := Restore(&f, 512, func(func(ArchiveBlock, error) bool) {})
	require.ErrorIs(t, err, aidb.ErrCorruptSuperBlock)
}

// faultDevice fails every read past block 0.
type faultDevice struct {
	aidb.Device
}

func (d faultDevice) Read(index aidb.BlockIndex, buf []byte) error {
	if index > 0 {
		return errors.New("device gone")
	}
	return d.Device.Read(index, buf)
}

func TestArchiveSurfacesReadFailure(t *testing.T) {
	s := populated(t)
	s.dev = faultDevice{s.dev}

	var failed error
	for _, err := range s.Blocks() {
		if err != nil {
			failed = err
			break
		}
	}
	require.ErrorContains(t, failed, "device gone")

	var f mem.File
	_, err := Restore(&f, 512, s.Blocks())
	require.ErrorContains(t, err, "device gone")
}

func TestDiskBackendParity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parity.aidb")
	file, err := disk.Open(path)
	require.NoError(t, err)

	s, err := Create(file, 4096)
	require.NoError(t, err)
	usersTable(t, s)

	long := strings.Repeat("on disk ", 1024)
	ptr, err := s.Insert("users", []aidb.Value{aidb.Integer(5), aidb.Real(2.5), aidb.Text(long)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	file, err = disk.Open(path)
	require.NoError(t, err)
	s, err = Open(file, 4096)
	require.NoError(t, err)
	defer s.Close()

	values, found, err := s.Get("users", ptr)
	require.NoError(t, err)
	require.True(t, found)
	require.EqualValues(t, 5, values[0].Int())
	require.Equal(t, 2.5, values[1].Float())
	require.Equal(t, long, values[2].Text())
}
