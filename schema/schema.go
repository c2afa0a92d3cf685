// Package schema encodes and decodes table definitions. Each table
// lives in its own schema block; the blocks form a singly-linked chain
// rooted in the super block.
package schema

import (
	"fmt"

	"github.com/NKID00/aidb"
)

type BlockIndex = aidb.BlockIndex

// MaxColumns is the widest table a row header can describe: the row's
// column-count byte is a signed 8-bit integer whose negative range
// marks tombstones.
const MaxColumns = 127

// IndexKind selects the index variant of a table, fixed at index
// creation.
type IndexKind uint8

const (
	IndexNone  IndexKind = 0
	IndexBTree IndexKind = 1
	IndexHash  IndexKind = 2
)

// Column is one column of a table. Column order is fixed once a table
// is created and determines row encoding order.
type Column struct {
	Name string
	Type aidb.DataType
}

// TableDef is the decoded content of one schema block.
type TableDef struct {
	Name    string
	Columns []Column

	// DataHead points to the table's first data block.
	DataHead BlockIndex

	// IndexRoot and IndexKind describe the table's secondary index, if
	// any. IndexColumn is the ordinal of the indexed column.
	IndexRoot   BlockIndex
	IndexKind   IndexKind
	IndexColumn uint16

	// Next links to the following schema block, 0 at the end of the
	// chain.
	Next BlockIndex

	// Block is the schema block holding this definition. Not encoded.
	Block BlockIndex
}

// Column returns the ordinal of the named column.
func (def *TableDef) Column(name string) (int, bool) {
	for i, col := range def.Columns {
		if col.Name == name {
			return i, true
		}
	}
	return 0, false
}

// EncodedSize returns the number of bytes Encode will produce.
func (def *TableDef) EncodedSize() int {
	// next(8) nameLen(8) name columnCount(8) dataHead(8) indexRoot(8)
	// indexKind(1) indexColumn(2)
	size := 8 + 8 + len(def.Name) + 8 + 8 + 8 + 1 + 2
	for _, col := range def.Columns {
		size += 8 + len(col.Name) + 1
	}
	return size
}

// Encode serializes def into buf, which must hold one block. It fails
// with aidb.ErrSchemaTooLarge if the definition does not fit, and
// rejects definitions beyond MaxColumns or with a non-column type.
func (def *TableDef) Encode(buf []byte) error {
	if len(def.Columns) > MaxColumns {
		return fmt.Errorf("%w: table %q has %d columns, limit %d",
			aidb.ErrSchemaTooLarge, def.Name, len(def.Columns), MaxColumns)
	}
	if def.EncodedSize() > len(buf) {
		return fmt.Errorf("%w: table %q needs %d bytes, block holds %d",
			aidb.ErrSchemaTooLarge, def.Name, def.EncodedSize(), len(buf))
	}
	for _, col := range def.Columns {
		if !col.Type.Valid() {
			return fmt.Errorf("%w: column %q has type %v", aidb.ErrSchemaDecode, col.Name, col.Type)
		}
	}

	clear(buf)
	w := writer{buf: buf}
	w.uint64(uint64(def.Next))
	w.string(def.Name)
	w.uint64(uint64(len(def.Columns)))
	for _, col := range def.Columns {
		w.string(col.Name)
		w.byte(byte(col.Type))
	}
	w.uint64(uint64(def.DataHead))
	w.uint64(uint64(def.IndexRoot))
	w.byte(byte(def.IndexKind))
	w.uint16(def.IndexColumn)
	return nil
}

// Decode parses one schema block. It fails with aidb.ErrSchemaDecode on
// an unrecognized type tag or a truncated record.
func Decode(buf []byte) (*TableDef, error) {
	r := reader{buf: buf}
	def := new(TableDef)

	def.Next = BlockIndex(r.uint64())
	def.Name = r.string()

	columns := r.uint64()
	if columns > MaxColumns {
		return nil, fmt.Errorf("%w: %d columns", aidb.ErrSchemaDecode, columns)
	}
	def.Columns = make([]Column, 0, columns)
	for range columns {
		name := r.string()
		tag := aidb.DataType(r.byte())
		if r.ok() && !tag.Valid() {
			return nil, fmt.Errorf("%w: column %q has unknown type tag %d", aidb.ErrSchemaDecode, name, tag)
		}
		def.Columns = append(def.Columns, Column{Name: name, Type: tag})
	}

	def.DataHead = BlockIndex(r.uint64())
	def.IndexRoot = BlockIndex(r.uint64())
	def.IndexKind = IndexKind(r.byte())
	def.IndexColumn = r.uint16()

	if !r.ok() {
		return nil, fmt.Errorf("%w: truncated record", aidb.ErrSchemaDecode)
	}
	if def.IndexKind > IndexHash {
		return nil, fmt.Errorf("%w: unknown index kind %d", aidb.ErrSchemaDecode, def.IndexKind)
	}
	return def, nil
}

// Load walks the schema chain from head and returns every table
// definition in chain order.
func Load(dev aidb.Device, head BlockIndex) ([]*TableDef, error) {
	var defs []*TableDef
	buf := make([]byte, dev.BlockSize())
	seen := make(map[BlockIndex]struct{})

	for index := head; index != aidb.NilBlock; {
		if _, ok := seen[index]; ok {
			return nil, fmt.Errorf("%w: schema chain loops at block %d", aidb.ErrSchemaDecode, index)
		}
		seen[index] = struct{}{}

		if err := dev.Read(index, buf); err != nil {
			return nil, err
		}
		def, err := Decode(buf)
		if err != nil {
			return nil, fmt.Errorf("schema block %d: %w", index, err)
		}
		def.Block = index
		defs = append(defs, def)
		index = def.Next
	}
	return defs, nil
}

// Save rewrites the schema block holding def.
func Save(dev aidb.Device, def *TableDef) error {
	buf := make([]byte, dev.BlockSize())
	if err := def.Encode(buf); err != nil {
		return err
	}
	return dev.Write(def.Block, buf)
}
