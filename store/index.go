package store

import (
	"fmt"

	"github.com/NKID00/aidb"
	"github.com/NKID00/aidb/bptree"
	"github.com/NKID00/aidb/hashidx"
	"github.com/NKID00/aidb/row"
	"github.com/NKID00/aidb/schema"
)

// CreateIndex builds a secondary index of the given kind over an
// integer column and backfills it from the table's live rows. One
// index per table; null values are not indexed.
func (s *Store) CreateIndex(table, column string, kind schema.IndexKind) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	def, err := s.lookupTable(table)
	if err != nil {
		return err
	}
	if def.IndexKind != schema.IndexNone {
		return fmt.Errorf("store: table %s already indexed", table)
	}
	ordinal, ok := def.Column(column)
	if !ok {
		return fmt.Errorf("store: table %s has no column %s", table, column)
	}
	if def.Columns[ordinal].Type != aidb.TypeInteger {
		return fmt.Errorf("store: column %s is %s, only integer columns are indexable",
			column, def.Columns[ordinal].Type)
	}

	var insert func(key int64, ptr aidb.RowPointer) error
	var root func() aidb.BlockIndex
	switch kind {
	case schema.IndexBTree:
		tree, err := bptree.Create(s.dev, s.alloc, bptree.Config{Order: s.indexOrder})
		if err != nil {
			return err
		}
		insert, root = tree.Insert, tree.Root
	case schema.IndexHash:
		h, err := hashidx.Create(s.dev, s.alloc, hashidx.Config{})
		if err != nil {
			return err
		}
		insert, root = h.Insert, h.Root
	default:
		return fmt.Errorf("store: unknown index kind %d", kind)
	}

	if err := s.walkLive(def, func(ptr aidb.RowPointer, values []aidb.Value) error {
		if values[ordinal].IsNull() {
			return nil
		}
		return insert(values[ordinal].Int(), ptr)
	}); err != nil {
		return err
	}

	def.IndexKind = kind
	def.IndexRoot = root()
	def.IndexColumn = uint16(ordinal)
	if err := schema.Save(s.dev, def); err != nil {
		return err
	}
	s.logger.Info("index created", "table", table, "column", column, "kind", int(kind))
	return s.commit()
}

// Lookup returns the first live row whose indexed column equals key,
// falling back to a scan on tables without an index.
func (s *Store) Lookup(table string, key int64) (Row, bool, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()

	def, err := s.lookupTable(table)
	if err != nil {
		return Row{}, false, err
	}
	switch def.IndexKind {
	case schema.IndexBTree:
		tree, err := bptree.Open(s.dev, s.alloc, def.IndexRoot, bptree.Config{Order: s.indexOrder})
		if err != nil {
			return Row{}, false, err
		}
		for entry, err := range tree.Range(key, key) {
			if err != nil {
				return Row{}, false, err
			}
			if r, live, err := s.liveRow(def, entry.Ptr); err != nil || live {
				return r, live, err
			}
		}
		return Row{}, false, nil
	case schema.IndexHash:
		h, err := hashidx.Open(s.dev, s.alloc, def.IndexRoot)
		if err != nil {
			return Row{}, false, err
		}
		ptr, found, err := h.Search(key)
		if err != nil || !found {
			return Row{}, false, err
		}
		return s.liveRow(def, ptr)
	}

	ordinal := -1
	for i, col := range def.Columns {
		if col.Type == aidb.TypeInteger {
			ordinal = i
			break
		}
	}
	if ordinal < 0 {
		return Row{}, false, fmt.Errorf("store: table %s has no integer column", table)
	}
	var match Row
	found := false
	err = s.walkLive(def, func(ptr aidb.RowPointer, values []aidb.Value) error {
		if !found && !values[ordinal].IsNull() && values[ordinal].Int() == key {
			match = Row{Ptr: ptr, Values: values}
			found = true
		}
		return nil
	})
	return match, found, err
}

func (s *Store) indexInsert(def *schema.TableDef, values []aidb.Value, ptr aidb.RowPointer) error {
	if def.IndexKind == schema.IndexNone {
		return nil
	}
	v := values[def.IndexColumn]
	if v.IsNull() {
		return nil
	}
	switch def.IndexKind {
	case schema.IndexBTree:
		tree, err := bptree.Open(s.dev, s.alloc, def.IndexRoot, bptree.Config{Order: s.indexOrder})
		if err != nil {
			return err
		}
		if err := tree.Insert(v.Int(), ptr); err != nil {
			return err
		}
		if tree.Root() != def.IndexRoot {
			def.IndexRoot = tree.Root()
			return schema.Save(s.dev, def)
		}
		return nil
	case schema.IndexHash:
		h, err := hashidx.Open(s.dev, s.alloc, def.IndexRoot)
		if err != nil {
			return err
		}
		return h.Insert(v.Int(), ptr)
	}
	return fmt.Errorf("%w: table %s has index kind %d", aidb.ErrIndexCorrupt, def.Name, def.IndexKind)
}

func (s *Store) indexDelete(def *schema.TableDef, values []aidb.Value, ptr aidb.RowPointer) error {
	if def.IndexKind == schema.IndexNone {
		return nil
	}
	v := values[def.IndexColumn]
	if v.IsNull() {
		return nil
	}
	switch def.IndexKind {
	case schema.IndexBTree:
		tree, err := bptree.Open(s.dev, s.alloc, def.IndexRoot, bptree.Config{Order: s.indexOrder})
		if err != nil {
			return err
		}
		if _, err := tree.Delete(v.Int(), ptr); err != nil {
			return err
		}
		if tree.Root() != def.IndexRoot {
			def.IndexRoot = tree.Root()
			return schema.Save(s.dev, def)
		}
		return nil
	case schema.IndexHash:
		h, err := hashidx.Open(s.dev, s.alloc, def.IndexRoot)
		if err != nil {
			return err
		}
		_, err = h.Delete(v.Int(), ptr)
		return err
	}
	return fmt.Errorf("%w: table %s has index kind %d", aidb.ErrIndexCorrupt, def.Name, def.IndexKind)
}

func (s *Store) liveRow(def *schema.TableDef, ptr aidb.RowPointer) (Row, bool, error) {
	buf := make([]byte, s.dev.BlockSize())
	off, err := s.locate(def, ptr, buf)
	if err != nil {
		return Row{}, false, err
	}
	values, _, deleted, err := row.Decode(buf[off:], def, s.texts)
	if err != nil || deleted {
		return Row{}, false, err
	}
	return Row{Ptr: ptr, Values: values}, true, nil
}

// walkLive visits every live row of a table in storage order. Callers
// hold the gate.
func (s *Store) walkLive(def *schema.TableDef, visit func(aidb.RowPointer, []aidb.Value) error) error {
	buf := make([]byte, s.dev.BlockSize())
	for index := def.DataHead; index != aidb.NilBlock; {
		if err := s.dev.Read(index, buf); err != nil {
			return err
		}
		next, count := dataHeader(buf)
		off := dataHeaderSize
		for slot := 0; slot < count; slot++ {
			values, n, deleted, err := row.Decode(buf[off:], def, s.texts)
			if err != nil {
				return fmt.Errorf("block %d slot %d: %w", index, slot, err)
			}
			if !deleted {
				if err := visit(aidb.NewRowPointer(index, uint16(slot)), values); err != nil {
					return err
				}
			}
			off += n
		}
		index = next
	}
	return nil
}
