package store

import (
	"fmt"
	"iter"

	"github.com/NKID00/aidb"
	"github.com/NKID00/aidb/alloc"
	"github.com/NKID00/aidb/block"
	"github.com/NKID00/aidb/superblock"
	"github.com/NKID00/aidb/text"
)

// ArchiveBlock is one element of a Blocks enumeration.
type ArchiveBlock struct {
	Index aidb.BlockIndex
	Data  []byte
}

// Blocks yields every in-use block with its content, in index order.
// Free blocks are skipped; feeding the sequence to Restore rebuilds an
// equivalent store. A read failure is yielded once and ends the
// sequence. The yielded slice is reused between iterations.
func (s *Store) Blocks() iter.Seq2[ArchiveBlock, error] {
	return func(yield func(ArchiveBlock, error) bool) {
		s.gate.RLock()
		defer s.gate.RUnlock()

		buf := make([]byte, s.dev.BlockSize())
		for index := aidb.BlockIndex(0); uint64(index) < s.dev.Count(); index++ {
			if index != 0 && !s.alloc.InUse(index) {
				continue
			}
			if err := s.dev.Read(index, buf); err != nil {
				yield(ArchiveBlock{}, err)
				return
			}
			if !yield(ArchiveBlock{Index: index, Data: buf}, nil) {
				return
			}
		}
	}
}

// Restore writes an archived block sequence into file and opens the
// result. Gaps in the sequence become free blocks; the free list and
// block count are rebuilt rather than trusted from the archive.
func Restore(file aidb.File, blockSize int, seq iter.Seq2[ArchiveBlock, error], options ...Option) (*Store, error) {
	c := newConfig(options)
	dev, err := block.New(file, blockSize, c.logger)
	if err != nil {
		return nil, err
	}
	s, err := assemble(dev, c)
	if err != nil {
		return nil, err
	}

	present := make(map[aidb.BlockIndex]bool)
	var last aidb.BlockIndex
	for b, err := range seq {
		if err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
		for uint64(b.Index) >= dev.Count() {
			if _, err := dev.Grow(); err != nil {
				return nil, err
			}
		}
		if err := s.dev.Write(b.Index, b.Data); err != nil {
			return nil, err
		}
		present[b.Index] = true
		if b.Index > last {
			last = b.Index
		}
	}
	if !present[0] {
		return nil, fmt.Errorf("%w: archive carries no super block", aidb.ErrCorruptSuperBlock)
	}

	buf := make([]byte, blockSize)
	if err := s.dev.Read(0, buf); err != nil {
		return nil, err
	}
	if s.sb, err = superblock.Decode(buf); err != nil {
		return nil, err
	}
	if int(s.sb.BlockSize) != blockSize {
		return nil, fmt.Errorf("%w: archive block size %d, want %d",
			aidb.ErrCorruptSuperBlock, s.sb.BlockSize, blockSize)
	}

	if s.alloc, err = alloc.Load(s.dev, aidb.NilBlock, 0); err != nil {
		return nil, err
	}
	for index := last; index > 0; index-- {
		if !present[index] {
			if err := s.alloc.Free(index); err != nil {
				return nil, err
			}
		}
	}
	s.texts = text.New(s.dev, s.alloc)
	if err := s.loadSchema(); err != nil {
		return nil, err
	}
	return s, s.commit()
}
