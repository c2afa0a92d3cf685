package aidb

import "errors"

var (
	ErrClosed           = errors.New("closed")
	ErrReadOnly         = errors.New("read-only")
	ErrInvalidBlockSize = errors.New("invalid block size")

	// ErrBlockOutOfRange reports a read or write beyond the block count.
	ErrBlockOutOfRange = errors.New("block out of range")

	// ErrCorruptSuperBlock reports a bad magic signature, unknown format
	// version or failed checksum in block 0. The store is unusable.
	ErrCorruptSuperBlock = errors.New("corrupt super block")

	// ErrSchemaDecode reports an unrecognized type tag or truncated
	// record while decoding a schema block.
	ErrSchemaDecode = errors.New("bad schema record")

	// ErrSchemaTooLarge rejects a table definition that does not fit in
	// one schema block.
	ErrSchemaTooLarge = errors.New("schema record too large")

	// ErrRowShape rejects a row that does not match the table's column
	// definition.
	ErrRowShape = errors.New("row shape mismatch")

	// ErrTextChainTruncated reports a text chain that ends before its
	// declared length.
	ErrTextChainTruncated = errors.New("text chain truncated")

	// ErrDoubleFree reports freeing a block that is already free.
	ErrDoubleFree = errors.New("double free")

	// ErrBadFreeBlock reports a free-list entry that fails its stamp
	// checksum.
	ErrBadFreeBlock = errors.New("bad free block")

	// ErrIndexCorrupt reports an index block that fails a structural
	// invariant on read. The index is unusable; row data is not.
	ErrIndexCorrupt = errors.New("corrupt index block")

	ErrTableNotFound = errors.New("table not found")
	ErrTableExists   = errors.New("table exists")
)
