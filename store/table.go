package store

import (
	"encoding/binary"
	"fmt"
	"iter"

	"github.com/NKID00/aidb"
	"github.com/NKID00/aidb/row"
	"github.com/NKID00/aidb/schema"
)

// Data block layout: next u64, row count u16, then packed rows.
const dataHeaderSize = 8 + 2

// CreateTable appends a table definition to the schema chain and
// allocates its first data block.
func (s *Store) CreateTable(name string, columns []schema.Column) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("%w: %s", aidb.ErrTableExists, name)
	}
	dataHead, err := s.alloc.Allocate()
	if err != nil {
		return err
	}
	if err := s.writeDataHeader(dataHead, aidb.NilBlock, 0, nil); err != nil {
		return err
	}
	blockIndex, err := s.alloc.Allocate()
	if err != nil {
		return err
	}
	def := &schema.TableDef{
		Name:     name,
		Columns:  columns,
		DataHead: dataHead,
		Block:    blockIndex,
	}
	if err := schema.Save(s.dev, def); err != nil {
		return err
	}
	if len(s.defs) == 0 {
		s.sb.SchemaHead = blockIndex
	} else {
		last := s.defs[len(s.defs)-1]
		last.Next = blockIndex
		if err := schema.Save(s.dev, last); err != nil {
			return err
		}
	}
	s.defs = append(s.defs, def)
	s.byName[name] = def
	s.logger.Info("table created", "table", name, "columns", len(columns))
	return s.commit()
}

// Tables lists table names in schema-chain order.
func (s *Store) Tables() []string {
	s.gate.RLock()
	defer s.gate.RUnlock()
	names := make([]string, len(s.defs))
	for i, def := range s.defs {
		names[i] = def.Name
	}
	return names
}

// Describe returns a copy of the named table's definition.
func (s *Store) Describe(name string) (schema.TableDef, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()
	def, err := s.lookupTable(name)
	if err != nil {
		return schema.TableDef{}, err
	}
	out := *def
	out.Columns = append([]schema.Column(nil), def.Columns...)
	return out, nil
}

// Insert appends a row and returns its pointer. The row lands in the
// first data block of the table's chain with room for it.
func (s *Store) Insert(table string, values []aidb.Value) (aidb.RowPointer, error) {
	s.gate.Lock()
	defer s.gate.Unlock()

	def, err := s.lookupTable(table)
	if err != nil {
		return 0, err
	}
	encoded, err := row.Encode(nil, values, def, s.texts)
	if err != nil {
		return 0, err
	}
	blockSize := s.dev.BlockSize()
	if dataHeaderSize+len(encoded) > blockSize {
		// Un-write any text chains the encoder already produced.
		if starts, err := row.Overflow(encoded, def); err == nil {
			for _, start := range starts {
				s.texts.Free(start)
			}
		}
		return 0, fmt.Errorf("%w: row of %d bytes exceeds block size %d", aidb.ErrRowShape, len(encoded), blockSize)
	}

	buf := make([]byte, blockSize)
	index := def.DataHead
	for {
		if err := s.dev.Read(index, buf); err != nil {
			return 0, err
		}
		next := aidb.BlockIndex(binary.LittleEndian.Uint64(buf[0:8]))
		count := int(binary.LittleEndian.Uint16(buf[8:10]))
		end, err := blockEnd(buf, def, count)
		if err != nil {
			return 0, err
		}
		if end+len(encoded) <= blockSize {
			copy(buf[end:], encoded)
			binary.LittleEndian.PutUint16(buf[8:10], uint16(count+1))
			if err := s.dev.Write(index, buf); err != nil {
				return 0, err
			}
			ptr := aidb.NewRowPointer(index, uint16(count))
			if err := s.indexInsert(def, values, ptr); err != nil {
				return 0, err
			}
			return ptr, s.commit()
		}
		if next != aidb.NilBlock {
			index = next
			continue
		}
		grown, err := s.alloc.Allocate()
		if err != nil {
			return 0, err
		}
		if err := s.writeDataHeader(grown, aidb.NilBlock, 0, nil); err != nil {
			return 0, err
		}
		binary.LittleEndian.PutUint64(buf[0:8], uint64(grown))
		if err := s.dev.Write(index, buf); err != nil {
			return 0, err
		}
		index = grown
	}
}

// Row is one live row yielded by Scan.
type Row struct {
	Ptr    aidb.RowPointer
	Values []aidb.Value
}

// Scan yields the table's live rows in storage order, skipping
// tombstones. The sequence restarts on every iteration; a decode or
// read failure is yielded once and ends the scan.
func (s *Store) Scan(table string) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		s.gate.RLock()
		defer s.gate.RUnlock()

		def, err := s.lookupTable(table)
		if err != nil {
			yield(Row{}, err)
			return
		}
		buf := make([]byte, s.dev.BlockSize())
		for index := def.DataHead; index != aidb.NilBlock; {
			if err := s.dev.Read(index, buf); err != nil {
				yield(Row{}, err)
				return
			}
			next := aidb.BlockIndex(binary.LittleEndian.Uint64(buf[0:8]))
			count := int(binary.LittleEndian.Uint16(buf[8:10]))
			off := dataHeaderSize
			for slot := 0; slot < count; slot++ {
				values, n, deleted, err := row.Decode(buf[off:], def, s.texts)
				if err != nil {
					yield(Row{}, fmt.Errorf("block %d slot %d: %w", index, slot, err))
					return
				}
				if !deleted {
					if !yield(Row{Ptr: aidb.NewRowPointer(index, uint16(slot)), Values: values}, nil) {
						return
					}
				}
				off += n
			}
			index = next
		}
	}
}

// Get resolves a row pointer. A tombstoned row reports found=false.
func (s *Store) Get(table string, ptr aidb.RowPointer) ([]aidb.Value, bool, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	def, err := s.lookupTable(table)
	if err != nil {
		return nil, false, err
	}
	buf := make([]byte, s.dev.BlockSize())
	off, err := s.locate(def, ptr, buf)
	if err != nil {
		return nil, false, err
	}
	values, _, deleted, err := row.Decode(buf[off:], def, s.texts)
	if err != nil {
		return nil, false, err
	}
	if deleted {
		return nil, false, nil
	}
	return values, true, nil
}

// Delete tombstones the row at ptr, releasing its text chains and its
// index entry. Deleting an already dead row reports found=false.
func (s *Store) Delete(table string, ptr aidb.RowPointer) (bool, error) {
	s.gate.Lock()
	defer s.gate.Unlock()

	def, err := s.lookupTable(table)
	if err != nil {
		return false, err
	}
	buf := make([]byte, s.dev.BlockSize())
	off, err := s.locate(def, ptr, buf)
	if err != nil {
		return false, err
	}
	values, _, deleted, err := row.Decode(buf[off:], def, s.texts)
	if err != nil {
		return false, err
	}
	if deleted {
		return false, nil
	}
	if err := s.indexDelete(def, values, ptr); err != nil {
		return false, err
	}
	starts, err := row.Overflow(buf[off:], def)
	if err != nil {
		return false, err
	}
	for _, start := range starts {
		if err := s.texts.Free(start); err != nil {
			return false, err
		}
	}
	if _, err := row.Delete(buf[off:], def); err != nil {
		return false, err
	}
	if err := s.dev.Write(ptr.Block(), buf); err != nil {
		return false, err
	}
	return true, s.commit()
}

// locate reads the row's data block into buf and returns the row's
// offset within it.
func (s *Store) locate(def *schema.TableDef, ptr aidb.RowPointer, buf []byte) (int, error) {
	if ptr.Block() == aidb.NilBlock {
		return 0, fmt.Errorf("%w: nil block", ErrPointer)
	}
	if err := s.dev.Read(ptr.Block(), buf); err != nil {
		return 0, err
	}
	count := int(binary.LittleEndian.Uint16(buf[8:10]))
	slot := int(ptr.Slot())
	if slot >= count {
		return 0, fmt.Errorf("%w: slot %d of %d in block %d", ErrPointer, slot, count, ptr.Block())
	}
	off := dataHeaderSize
	for i := 0; i < slot; i++ {
		n, _, err := row.Skip(buf[off:], def)
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}

func dataHeader(buf []byte) (next aidb.BlockIndex, count int) {
	next = aidb.BlockIndex(binary.LittleEndian.Uint64(buf[0:8]))
	count = int(binary.LittleEndian.Uint16(buf[8:10]))
	return next, count
}

// blockEnd walks count rows and returns the offset past the last one.
func blockEnd(buf []byte, def *schema.TableDef, count int) (int, error) {
	off := dataHeaderSize
	for i := 0; i < count; i++ {
		n, _, err := row.Skip(buf[off:], def)
		if err != nil {
			return 0, err
		}
		off += n
	}
	return off, nil
}

func (s *Store) writeDataHeader(index, next aidb.BlockIndex, count int, buf []byte) error {
	if buf == nil {
		buf = make([]byte, s.dev.BlockSize())
	} else {
		clear(buf)
	}
	binary.LittleEndian.PutUint64(buf[0:8], uint64(next))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(count))
	return s.dev.Write(index, buf)
}
