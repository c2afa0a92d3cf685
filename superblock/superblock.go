// Package superblock owns block 0: the store geometry and the root
// pointers every other structure is reached from.
package superblock

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/NKID00/aidb"
	"github.com/google/uuid"
)

type BlockIndex = aidb.BlockIndex

// Magic is the signature at the start of every aidb store.
var Magic = [4]byte{'a', 'i', 'd', 'b'}

// Version is the only on-disk format version this engine reads.
const Version uint16 = 1

// encodedSize is the fixed byte length of an encoded SuperBlock:
// magic(4) version(2) blockSize(4) blockCount(8) schemaHead(8)
// freeHead(8) freeCount(8) journalHead(8) storeID(16) crc(4).
const encodedSize = 70

// SuperBlock is the decoded content of block 0. All pointer fields are
// committed together; there is no partial update.
type SuperBlock struct {
	BlockSize  uint32
	BlockCount uint64

	// SchemaHead points to the first schema block, 0 if no tables.
	SchemaHead BlockIndex

	// FreeHead points to the most recently freed block, 0 if none.
	FreeHead  BlockIndex
	FreeCount uint64

	// JournalHead is reserved for the future write-ahead journal.
	JournalHead BlockIndex

	// StoreID identifies the store, assigned once at creation.
	StoreID uuid.UUID
}

// New returns the super block of a freshly formatted store: one block
// (itself), no tables, no free list.
func New(blockSize int) *SuperBlock {
	return &SuperBlock{
		BlockSize:  uint32(blockSize),
		BlockCount: 1,
		StoreID:    uuid.New(),
	}
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Encode serializes sb into buf, which must hold at least one block.
// Bytes past the encoded header are zeroed.
func (sb *SuperBlock) Encode(buf []byte) {
	clear(buf)
	copy(buf, Magic[:])
	binary.LittleEndian.PutUint16(buf[4:], Version)
	binary.LittleEndian.PutUint32(buf[6:], sb.BlockSize)
	binary.LittleEndian.PutUint64(buf[10:], sb.BlockCount)
	binary.LittleEndian.PutUint64(buf[18:], uint64(sb.SchemaHead))
	binary.LittleEndian.PutUint64(buf[26:], uint64(sb.FreeHead))
	binary.LittleEndian.PutUint64(buf[34:], sb.FreeCount)
	binary.LittleEndian.PutUint64(buf[42:], uint64(sb.JournalHead))
	copy(buf[50:], sb.StoreID[:])
	binary.LittleEndian.PutUint32(buf[66:], crc32.Checksum(buf[:66], castagnoli))
}

// Decode parses the content of block 0. It fails with
// aidb.ErrCorruptSuperBlock on a bad magic, version or checksum.
func Decode(buf []byte) (*SuperBlock, error) {
	if len(buf) < encodedSize {
		return nil, fmt.Errorf("%w: %d bytes", aidb.ErrCorruptSuperBlock, len(buf))
	}
	if [4]byte(buf[:4]) != Magic {
		return nil, fmt.Errorf("%w: magic %q", aidb.ErrCorruptSuperBlock, buf[:4])
	}
	if v := binary.LittleEndian.Uint16(buf[4:]); v != Version {
		return nil, fmt.Errorf("%w: version %d, want %d", aidb.ErrCorruptSuperBlock, v, Version)
	}
	if sum := binary.LittleEndian.Uint32(buf[66:]); sum != crc32.Checksum(buf[:66], castagnoli) {
		return nil, fmt.Errorf("%w: bad checksum", aidb.ErrCorruptSuperBlock)
	}

	sb := &SuperBlock{
		BlockSize:   binary.LittleEndian.Uint32(buf[6:]),
		BlockCount:  binary.LittleEndian.Uint64(buf[10:]),
		SchemaHead:  BlockIndex(binary.LittleEndian.Uint64(buf[18:])),
		FreeHead:    BlockIndex(binary.LittleEndian.Uint64(buf[26:])),
		FreeCount:   binary.LittleEndian.Uint64(buf[34:]),
		JournalHead: BlockIndex(binary.LittleEndian.Uint64(buf[42:])),
	}
	copy(sb.StoreID[:], buf[50:66])
	return sb, nil
}

// Manager loads and commits the super block through a device.
type Manager struct {
	dev aidb.Device
	buf []byte
}

func NewManager(dev aidb.Device) *Manager {
	return &Manager{dev: dev, buf: make([]byte, dev.BlockSize())}
}

// Load parses block 0 and cross-checks the recorded geometry against
// the device.
func (m *Manager) Load() (*SuperBlock, error) {
	if err := m.dev.Read(0, m.buf); err != nil {
		return nil, err
	}
	sb, err := Decode(m.buf)
	if err != nil {
		return nil, err
	}
	if int(sb.BlockSize) != m.dev.BlockSize() {
		return nil, fmt.Errorf("%w: block size %d, device uses %d",
			aidb.ErrCorruptSuperBlock, sb.BlockSize, m.dev.BlockSize())
	}
	if sb.BlockCount > m.dev.Count() {
		return nil, fmt.Errorf("%w: %d blocks recorded, backend holds %d",
			aidb.ErrCorruptSuperBlock, sb.BlockCount, m.dev.Count())
	}
	return sb, nil
}

// Commit rewrites block 0 with the current block count and syncs the
// device. All pointer fields land together in the single block write.
func (m *Manager) Commit(sb *SuperBlock) error {
	sb.BlockCount = m.dev.Count()
	sb.Encode(m.buf)
	if err := m.dev.Write(0, m.buf); err != nil {
		return err
	}
	return m.dev.Sync()
}
