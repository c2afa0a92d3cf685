// Package store assembles the engine: a block device under a cache,
// the super block, the free list, text chains, the schema chain and
// the per-table indexes, behind one facade.
package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/NKID00/aidb"
	"github.com/NKID00/aidb/alloc"
	"github.com/NKID00/aidb/block"
	"github.com/NKID00/aidb/schema"
	"github.com/NKID00/aidb/superblock"
	"github.com/NKID00/aidb/text"
)

// ErrPointer reports a row pointer that does not resolve to a row.
var ErrPointer = errors.New("store: invalid row pointer")

// Store is a single-file storage engine. Any number of readers may
// run concurrently; mutations serialize through the write gate.
type Store struct {
	dev        aidb.Device
	raw        *block.Device[aidb.File]
	closer     io.Closer
	sbm        *superblock.Manager
	sb         *superblock.SuperBlock
	alloc      *alloc.List
	texts      *text.Chain
	gate       writeGate
	logger     *slog.Logger
	indexOrder int

	// defs keeps schema-chain order; byName indexes it.
	defs   []*schema.TableDef
	byName map[string]*schema.TableDef
}

type Option func(*config)

type config struct {
	logger      *slog.Logger
	cacheBlocks int
	indexOrder  int
}

// WithLogger routes device and engine diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithCacheBlocks caps the block cache at n blocks. 0 disables it.
func WithCacheBlocks(n int) Option {
	return func(c *config) { c.cacheBlocks = n }
}

// WithIndexOrder overrides the B+Tree fanout, mainly for tests.
func WithIndexOrder(order int) Option {
	return func(c *config) { c.indexOrder = order }
}

func newConfig(options []Option) *config {
	c := &config{
		logger:      slog.New(slog.DiscardHandler),
		cacheBlocks: 256,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Create formats file as an empty store with the given block size and
// opens it.
func Create(file aidb.File, blockSize int, options ...Option) (*Store, error) {
	c := newConfig(options)
	dev, err := block.New(file, blockSize, c.logger)
	if err != nil {
		return nil, err
	}
	if _, err := dev.Grow(); err != nil { // block 0
		return nil, err
	}
	s, err := assemble(dev, c)
	if err != nil {
		return nil, err
	}
	s.sb = superblock.New(blockSize)
	if s.alloc, err = alloc.Load(s.dev, aidb.NilBlock, 0); err != nil {
		return nil, err
	}
	s.texts = text.New(s.dev, s.alloc)
	s.byName = make(map[string]*schema.TableDef)
	if err := s.commit(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open attaches to an existing store, validating the super block
// against the device geometry.
func Open(file aidb.File, blockSize int, options ...Option) (*Store, error) {
	c := newConfig(options)
	dev, err := block.New(file, blockSize, c.logger)
	if err != nil {
		return nil, err
	}
	s, err := assemble(dev, c)
	if err != nil {
		return nil, err
	}
	if s.sb, err = s.sbm.Load(); err != nil {
		return nil, err
	}
	if s.alloc, err = alloc.Load(s.dev, s.sb.FreeHead, s.sb.FreeCount); err != nil {
		return nil, err
	}
	s.texts = text.New(s.dev, s.alloc)
	if err := s.loadSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadSchema() error {
	defs, err := schema.Load(s.dev, s.sb.SchemaHead)
	if err != nil {
		return err
	}
	s.defs = defs
	s.byName = make(map[string]*schema.TableDef, len(defs))
	for _, def := range defs {
		s.byName[def.Name] = def
	}
	return nil
}

func assemble(dev *block.Device[aidb.File], c *config) (*Store, error) {
	s := &Store{
		raw:        dev,
		closer:     dev,
		gate:       newGate(),
		logger:     c.logger,
		indexOrder: c.indexOrder,
	}
	s.dev = dev
	if c.cacheBlocks > 0 {
		s.dev = newCache(dev, c.cacheBlocks)
	}
	s.sbm = superblock.NewManager(s.dev)
	return s, nil
}

// commit folds the allocator state into the super block and writes it
// out. Callers hold the write gate.
func (s *Store) commit() error {
	s.sb.FreeHead = s.alloc.Head()
	s.sb.FreeCount = s.alloc.Count()
	return s.sbm.Commit(s.sb)
}

// Info describes the store. IO counts backend block I/O, so cache hits
// do not show up in it.
type Info struct {
	StoreID    uuid.UUID
	BlockSize  int
	BlockCount uint64
	FreeBlocks uint64
	Tables     int
	IO         block.Stats
}

func (s *Store) Info() Info {
	s.gate.RLock()
	defer s.gate.RUnlock()
	return Info{
		StoreID:    s.sb.StoreID,
		BlockSize:  s.dev.BlockSize(),
		BlockCount: s.dev.Count(),
		FreeBlocks: s.alloc.Count(),
		Tables:     len(s.defs),
		IO:         s.raw.Stats(),
	}
}

// Sync flushes the device.
func (s *Store) Sync() error {
	return s.dev.Sync()
}

// Close commits outstanding state and closes the backing file.
func (s *Store) Close() error {
	s.gate.Lock()
	defer s.gate.Unlock()
	if err := s.commit(); err != nil {
		return err
	}
	return s.closer.Close()
}

func (s *Store) lookupTable(name string) (*schema.TableDef, error) {
	def, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", aidb.ErrTableNotFound, name)
	}
	return def, nil
}
