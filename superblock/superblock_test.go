package superblock

import (
	"testing"

	"github.com/NKID00/aidb"
	"github.com/NKID00/aidb/block"
	"github.com/NKID00/aidb/mem"
	"github.com/stretchr/testify/require"
)

func newDevice(t *testing.T) aidb.Device {
	t.Helper()
	var f mem.File
	dev, err := block.New(&f, 512, nil)
	require.NoError(t, err)
	_, err = dev.Grow() // block 0
	require.NoError(t, err)
	return dev
}

func TestRoundTrip(t *testing.T) {
	dev := newDevice(t)
	m := NewManager(dev)

	sb := New(512)
	sb.SchemaHead = 7
	sb.FreeHead = 42
	sb.FreeCount = 3
	require.NoError(t, m.Commit(sb))

	got, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, sb, got)
}

func TestLoadRejectsBadMagic(t *testing.T) {
	dev := newDevice(t)
	m := NewManager(dev)
	require.NoError(t, m.Commit(New(512)))

	buf := make([]byte, 512)
	require.NoError(t, dev.Read(0, buf))
	buf[0] = 'x'
	require.NoError(t, dev.Write(0, buf))

	_, err := m.Load()
	require.ErrorIs(t, err, aidb.ErrCorruptSuperBlock)
}

func TestLoadRejectsBadVersion(t *testing.T) {
	dev := newDevice(t)
	m := NewManager(dev)
	require.NoError(t, m.Commit(New(512)))

	buf := make([]byte, 512)
	require.NoError(t, dev.Read(0, buf))
	buf[4] = 0xFF
	require.NoError(t, dev.Write(0, buf))

	_, err := m.Load()
	require.ErrorIs(t, err, aidb.ErrCorruptSuperBlock)
}

func TestLoadRejectsBadChecksum(t *testing.T) {
	dev := newDevice(t)
	m := NewManager(dev)
	require.NoError(t, m.Commit(New(512)))

	buf := make([]byte, 512)
	require.NoError(t, dev.Read(0, buf))
	buf[20] ^= 0x01 // flip a bit inside SchemaHead
	require.NoError(t, dev.Write(0, buf))

	_, err := m.Load()
	require.ErrorIs(t, err, aidb.ErrCorruptSuperBlock)
}

func TestStoreIDSurvivesCommit(t *testing.T) {
	dev := newDevice(t)
	m := NewManager(dev)

	sb := New(512)
	id := sb.StoreID
	require.NoError(t, m.Commit(sb))

	got, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, id, got.StoreID)
}
